package util

import (
	"sync"
	"time"
)

// LimiterRegistry manages a collection of limiters, one per key.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	rate     float64
	burst    int
	ttl      time.Duration
	stop     chan struct{}
	once     sync.Once
}

type limiterEntry struct {
	limiter  *Limiter
	lastUsed time.Time
}

// NewLimiterRegistry creates a new registry.
// rate: tokens per second.
// burst: burst size.
// ttl: how long to keep a limiter in memory after its last use.
func NewLimiterRegistry(r float64, b int, ttl time.Duration) *LimiterRegistry {
	reg := &LimiterRegistry{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    b,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go reg.cleanupLoop()
	return reg
}

// Get returns the limiter for the given key (e.g., a network file path).
func (r *LimiterRegistry) Get(key string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: NewLimiter(r.rate, r.burst),
		}
		r.limiters[key] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// Len reports how many keys currently hold a limiter.
func (r *LimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// Close stops the cleanup goroutine.
func (r *LimiterRegistry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *LimiterRegistry) cleanupLoop() {
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stop:
			return
		}
	}
}

func (r *LimiterRegistry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, entry := range r.limiters {
		if now.Sub(entry.lastUsed) > r.ttl {
			delete(r.limiters, key)
		}
	}
}
