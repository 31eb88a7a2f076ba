// Package ratelimit implements per-(caller address, HTTP method) token bucket
// admission control.
package ratelimit

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class groups endpoints sharing one limit configuration.
type Class int

const (
	ClassRead Class = iota
	ClassMutating
)

func ClassForMethod(method string) Class {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return ClassMutating
	}
	return ClassRead
}

type EndpointLimit struct {
	Capacity   int
	RefillRate float64 // tokens per second
}

type Config struct {
	Mutating EndpointLimit
	Read     EndpointLimit
}

type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

type bucketKey struct {
	addr   string
	method string
}

type bucket struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// Limiter holds one bucket per key. Buckets are created lazily and never
// evicted.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
}

func New(cfg Config, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{cfg: cfg, now: now, buckets: make(map[bucketKey]*bucket)}
}

// TryAcquire refills the bucket for (addr, method) by the elapsed time and
// tries to take one token from it.
func (l *Limiter) TryAcquire(addr, method string, class Class) Decision {
	b := l.bucketFor(bucketKey{addr: addr, method: method}, class)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lim.AllowN(now, 1) {
		return Decision{Allowed: true, Remaining: int(math.Floor(b.lim.TokensAt(now)))}
	}
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfterSeconds: 1}
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{Allowed: false, RetryAfterSeconds: retryAfterSeconds(wait)}
}

// Reset drops every bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.buckets = make(map[bucketKey]*bucket)
	l.mu.Unlock()
}

func (l *Limiter) bucketFor(k bucketKey, class Class) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[k]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[k]; ok {
		return b
	}
	limit := l.cfg.Read
	if class == ClassMutating {
		limit = l.cfg.Mutating
	}
	b = &bucket{lim: rate.NewLimiter(rate.Limit(limit.RefillRate), limit.Capacity)}
	l.buckets[k] = b
	return b
}

func retryAfterSeconds(wait time.Duration) int {
	s := int(math.Ceil(float64(wait) / float64(time.Second)))
	if s < 1 {
		s = 1
	}
	return s
}
