package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/paideia-labs/paideia/pkg/config"
	"github.com/paideia-labs/paideia/pkg/fault"
)

// NewStore creates a Store from configuration. The memory driver is for
// development and tests; everything else goes through database/sql.
func NewStore(cfg config.TraceStoreConfig) (Store, error) {
	cfg.SetDefaults()
	switch cfg.Driver {
	case config.TraceStoreMemory:
		return NewMemoryStore(), nil
	case config.TraceStoreSQLite, config.TraceStoreMySQL, config.TraceStorePostgres:
		store, err := NewSQLStore(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fault.New(fault.KindRequest, component, "new_store",
			fmt.Sprintf("unsupported trace store driver: %s", cfg.Driver))
	}
}

// BoundedStore caps the limit of every read so a caller cannot pull an
// unbounded slice of the trace in one call.
type BoundedStore struct {
	Store
	maxLimit int
}

// NewBoundedStore wraps a store with the configured read ceiling.
func NewBoundedStore(inner Store, maxLimit int) *BoundedStore {
	if maxLimit <= 0 {
		maxLimit = 500
	}
	return &BoundedStore{Store: inner, maxLimit: maxLimit}
}

func (b *BoundedStore) clamp(limit int) int {
	if limit <= 0 || limit > b.maxLimit {
		return b.maxLimit
	}
	return limit
}

func (b *BoundedStore) SessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	return b.Store.SessionMessages(ctx, sessionID, b.clamp(limit))
}

func (b *BoundedStore) StudentMessages(ctx context.Context, filter MessageFilter) ([]*Message, error) {
	filter.Limit = b.clamp(filter.Limit)
	return b.Store.StudentMessages(ctx, filter)
}

func (b *BoundedStore) JobsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*JobRecord, error) {
	return b.Store.JobsUpdatedBefore(ctx, cutoff)
}
