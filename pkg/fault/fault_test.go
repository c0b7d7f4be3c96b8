package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := Wrap(KindUpstream, "llm", "chat", "request failed", errors.New("boom"))
	wrapped := fmt.Errorf("engine: %w", base)

	if got := KindOf(wrapped); got != KindUpstream {
		t.Errorf("expected UPSTREAM, got %s", got)
	}
}

func TestKindOf_ContextErrors(t *testing.T) {
	if got := KindOf(context.DeadlineExceeded); got != KindTimeout {
		t.Errorf("deadline exceeded should classify as TIMEOUT, got %s", got)
	}
	if got := KindOf(context.Canceled); got != KindTimeout {
		t.Errorf("canceled should classify as TIMEOUT, got %s", got)
	}
}

func TestKindOf_Nil(t *testing.T) {
	if got := KindOf(nil); got != KindUnknown {
		t.Errorf("nil should classify as UNKNOWN, got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindUpstream, true},
		{KindTimeout, true},
		{KindRequest, false},
		{KindContract, false},
		{KindConflict, false},
		{KindNotFound, false},
		{KindClosed, false},
		{KindCorruptSource, false},
	}
	for _, tt := range tests {
		err := New(tt.kind, "test", "op", "msg")
		if got := Retryable(err); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindCorruptSource, "rag", "ingest", "bad pdf", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestKindString(t *testing.T) {
	if KindCorruptSource.String() != "CORRUPT_SOURCE" {
		t.Errorf("unexpected tag: %s", KindCorruptSource)
	}
	if Kind(99).String() != "UNKNOWN" {
		t.Errorf("out-of-range kind should be UNKNOWN")
	}
}
