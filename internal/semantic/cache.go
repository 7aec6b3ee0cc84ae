package semantic

import (
	"context"
	"log/slog"
	"sync"
)

// EmbeddingStore is the optional cross-run cache tier. The Valkey client
// satisfies it; lookups are best-effort and a miss is never an error.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, text string) ([]float64, bool)
	StoreEmbedding(ctx context.Context, text string, vec []float64) error
}

// EmbeddingCache keys vectors by exact input text. The in-run tier is a
// sync.Map so concurrent misses on the same text may both compute, exactly
// one insert wins, and both callers get a usable vector.
type EmbeddingCache struct {
	mem   sync.Map
	store EmbeddingStore
}

// NewEmbeddingCache builds a cache over an optional persistent store.
// Pass nil for in-run caching only.
func NewEmbeddingCache(store EmbeddingStore) *EmbeddingCache {
	return &EmbeddingCache{store: store}
}

func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float64, bool) {
	if v, ok := c.mem.Load(text); ok {
		return v.([]float64), true
	}
	if c.store != nil {
		if vec, ok := c.store.GetEmbedding(ctx, text); ok {
			c.mem.Store(text, vec)
			return vec, true
		}
	}
	return nil, false
}

func (c *EmbeddingCache) Put(ctx context.Context, text string, vec []float64) {
	if _, loaded := c.mem.LoadOrStore(text, vec); loaded {
		return
	}
	if c.store != nil {
		if err := c.store.StoreEmbedding(ctx, text, vec); err != nil {
			slog.Warn("[Semantic] Failed to persist embedding",
				slog.String("error", err.Error()))
		}
	}
}
