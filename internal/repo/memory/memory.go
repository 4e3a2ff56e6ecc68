// Package memory holds process-local stores for single-instance deployments.
package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimitRepo is a fixed-window counter keyed by client.
type RateLimitRepo struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimitRepo() *RateLimitRepo {
	return &RateLimitRepo{windows: make(map[string]*window), now: time.Now}
}

func (r *RateLimitRepo) Allow(_ context.Context, key string, limit int, d time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	w, ok := r.windows[key]
	if !ok {
		w = &window{resetAt: now.Add(d)}
		r.windows[key] = w
	}
	w.count++
	return w.count <= limit, nil
}

func (r *RateLimitRepo) sweep(now time.Time) {
	for k, w := range r.windows {
		if !now.Before(w.resetAt) {
			delete(r.windows, k)
		}
	}
}

type entry struct {
	value     string
	expiresAt time.Time
}

// IdempotencyRepo keeps cached responses until their TTL passes.
type IdempotencyRepo struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewIdempotencyRepo() *IdempotencyRepo {
	return &IdempotencyRepo{entries: make(map[string]entry), now: time.Now}
}

func (r *IdempotencyRepo) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return "", nil
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.entries, key)
		return "", nil
	}
	return e.value, nil
}

// Reserve stores value only if key is absent or expired.
func (r *IdempotencyRepo) Reserve(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	r.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release deletes key only while it still holds value.
func (r *IdempotencyRepo) Release(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.value == value {
		delete(r.entries, key)
	}
	return nil
}

func (r *IdempotencyRepo) Set(_ context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = entry{value: value, expiresAt: r.now().Add(ttl)}
	return nil
}
