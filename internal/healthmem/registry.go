package healthmem

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"wellnessgo/internal/storage"
)

// Registry hands out one Memory per user id.
type Registry struct {
	mu       sync.Mutex
	kv       storage.KV
	patterns PatternTable
	logger   zerolog.Logger
	memories *cache.Cache
}

func NewRegistry(kv storage.KV, patterns PatternTable, idle time.Duration, logger zerolog.Logger) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Registry{
		kv:       kv,
		patterns: patterns,
		logger:   logger,
		memories: cache.New(idle, idle/2),
	}
}

func (r *Registry) Get(ctx context.Context, userID string) *Memory {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.memories.Get(userID); ok {
		mem := v.(*Memory)
		r.memories.SetDefault(userID, mem)
		return mem
	}
	mem := New(ctx, r.kv, userID, r.patterns, r.logger)
	r.memories.SetDefault(userID, mem)
	return mem
}
