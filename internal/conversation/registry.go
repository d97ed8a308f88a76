package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"wellnessgo/internal/storage"
)

// Registry hands out one Store per session. Idle stores fall out of memory and are
// reloaded from storage on the next request.
type Registry struct {
	mu     sync.Mutex
	kv     storage.KV
	opts   Options
	logger zerolog.Logger
	stores *cache.Cache
}

func NewRegistry(kv storage.KV, opts Options, idle time.Duration, logger zerolog.Logger) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		kv:     kv,
		opts:   opts,
		logger: logger,
		stores: cache.New(idle, idle/2),
	}
}

// Get returns the store of sessionID, loading it on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.stores.Get(sessionID); ok {
		store := v.(*Store)
		r.stores.SetDefault(sessionID, store)
		return store
	}
	store := NewStore(ctx, r.kv, sessionID, r.opts, r.logger)
	r.stores.SetDefault(sessionID, store)
	return store
}

// Forget drops the cached store for sessionID without touching storage.
func (r *Registry) Forget(sessionID string) {
	r.stores.Delete(sessionID)
}

// Len reports how many stores are cached.
func (r *Registry) Len() int {
	return r.stores.ItemCount()
}
