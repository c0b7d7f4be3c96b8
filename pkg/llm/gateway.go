package llm

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
	"github.com/paideia-labs/paideia/pkg/observability"
)

const component = "llm"

// Gateway fronts a Provider with the process-wide concurrency cap, per-call
// timeouts, and the JSON output contract. It is safe for concurrent use and
// is the single throttle in front of the model.
type Gateway struct {
	provider Provider
	cfg      config.LLMConfig
	sem      *semaphore.Weighted

	// counter backfills token accounting for providers that do not report
	// usage. Nil when no encoding could be resolved.
	counter *TokenCounter
}

// NewGateway creates a Gateway over the given provider.
func NewGateway(provider Provider, cfg config.LLMConfig) *Gateway {
	cfg.SetDefaults()
	counter, err := NewTokenCounter(cfg.Model)
	if err != nil {
		counter = nil
	}
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		counter:  counter,
	}
}

// NewGatewayFromConfig builds the provider from configuration.
func NewGatewayFromConfig(cfg config.LLMConfig) (*Gateway, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(provider, cfg), nil
}

// Chat performs a synchronous single-turn completion. When opts.JSON is set
// the result text is the recovered JSON object; unrecoverable output fails
// with the contract kind.
func (g *Gateway) Chat(ctx context.Context, system, user string, opts Options) (*CompletionResult, error) {
	req := g.buildRequest(system, user, opts)

	ctx, cancel := g.withTimeout(ctx, opts)
	defer cancel()

	tracer := observability.GetTracer("paideia.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, req.Model),
			attribute.Bool("llm.json_mode", req.JSONMode),
		),
	)
	defer span.End()

	if err := g.acquire(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue wait exceeded budget")
		return nil, err
	}
	defer g.sem.Release(1)

	startTime := time.Now()
	result, err := g.provider.Complete(ctx, req)
	duration := time.Since(startTime)

	metrics := observability.GetGlobalMetrics()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordLLMCall(ctx, req.Model, duration, 0, 0, err)
		return nil, g.classify(err, "chat")
	}

	if g.counter != nil {
		if result.InputTokens == 0 {
			result.InputTokens = g.counter.Count(req.System) + g.counter.Count(req.User)
		}
		if result.OutputTokens == 0 {
			result.OutputTokens = g.counter.Count(result.Text)
		}
	}

	metrics.RecordLLMCall(ctx, req.Model, duration, result.InputTokens, result.OutputTokens, nil)
	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, result.InputTokens),
		attribute.Int(observability.AttrLLMTokensOut, result.OutputTokens),
	)

	if opts.JSON {
		recovered, rerr := RecoverJSON(result.Text, opts.RequiredFields)
		if rerr != nil {
			span.SetStatus(codes.Error, "json recovery failed")
			return nil, rerr
		}
		result.Text = recovered
	}

	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// ChatJSON is Chat with opts.JSON forced on, unmarshalling into target.
func (g *Gateway) ChatJSON(ctx context.Context, system, user string, opts Options, target any) (*CompletionResult, error) {
	opts.JSON = true
	result, err := g.Chat(ctx, system, user, opts)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(result.Text), target); err != nil {
		return nil, fault.Wrap(fault.KindContract, component, "chat", "recovered JSON does not match target schema", err)
	}
	return result, nil
}

// ChatStream performs a streaming single-turn completion. The returned
// channel is finite and ordered; it is closed after a done or error chunk.
func (g *Gateway) ChatStream(ctx context.Context, system, user string, opts Options) (<-chan StreamChunk, error) {
	req := g.buildRequest(system, user, opts)

	ctx, cancel := g.withTimeout(ctx, opts)

	tracer := observability.GetTracer("paideia.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMStream,
		trace.WithAttributes(attribute.String(observability.AttrLLMModel, req.Model)),
	)

	if err := g.acquire(ctx); err != nil {
		span.RecordError(err)
		span.End()
		cancel()
		return nil, err
	}

	upstream, err := g.provider.CompleteStream(ctx, req)
	if err != nil {
		g.sem.Release(1)
		span.RecordError(err)
		span.End()
		cancel()
		return nil, g.classify(err, "chat_stream")
	}

	outputCh := make(chan StreamChunk, 64)
	go func() {
		defer close(outputCh)
		defer cancel()
		defer span.End()
		defer g.sem.Release(1)

		startTime := time.Now()
		tokens := 0
		estimated := 0
		for chunk := range upstream {
			if chunk.Type == ChunkTypeError {
				chunk.Err = g.classify(chunk.Err, "chat_stream")
				span.RecordError(chunk.Err)
			}
			if chunk.Type == ChunkTypeText && g.counter != nil {
				estimated += g.counter.Count(chunk.Text)
			}
			if chunk.Type == ChunkTypeDone {
				tokens = chunk.Tokens
			}
			outputCh <- chunk
		}
		if tokens == 0 {
			tokens = estimated
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, req.Model, time.Since(startTime), 0, tokens, nil)
	}()

	return outputCh, nil
}

// ModelName returns the effective model tag.
func (g *Gateway) ModelName() string {
	return g.cfg.Model
}

// Close releases the provider.
func (g *Gateway) Close() error {
	return g.provider.Close()
}

// acquire admits the call under the process-wide cap. A caller whose budget
// expires while queued fails with the timeout kind.
func (g *Gateway) acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fault.Wrap(fault.KindTimeout, component, "acquire", "concurrency cap wait exceeded deadline", err)
	}
	return nil
}

func (g *Gateway) withTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(g.cfg.TimeoutSeconds) * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (g *Gateway) buildRequest(system, user string, opts Options) Request {
	req := Request{
		System:      system,
		User:        user,
		Model:       g.cfg.Model,
		Temperature: *g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		JSONMode:    opts.JSON,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

// classify maps provider errors onto fault kinds. Provider implementations
// already produce *fault.Error; anything else is treated by cause.
func (g *Gateway) classify(err error, op string) error {
	if err == nil {
		return nil
	}
	switch fault.KindOf(err) {
	case fault.KindUnknown:
		return fault.Wrap(fault.KindUpstream, component, op, "provider call failed", err)
	case fault.KindTimeout:
		return fault.Wrap(fault.KindTimeout, component, op, "deadline exceeded", err)
	default:
		return err
	}
}
