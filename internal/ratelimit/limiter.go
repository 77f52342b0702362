// Package ratelimit guards tool invocation volume with token buckets scoped
// globally, per client, and per expensive operation class. One instance is
// shared by all concurrent runs for the process lifetime; tests construct
// isolated instances with widened limits instead of mutating it.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lucasmvf/pergola/pkg/domain"
)

// Config sets capacity per refill window for each bucket scope. A capacity
// of zero or less disables that scope.
type Config struct {
	Window            time.Duration
	GlobalCapacity    int
	ClientCapacity    int
	ExpensiveCapacity int
}

// DefaultConfig returns the process-wide production limits.
func DefaultConfig() Config {
	return Config{
		Window:            time.Minute,
		GlobalCapacity:    120,
		ClientCapacity:    60,
		ExpensiveCapacity: 10,
	}
}

// Op identifies one invocation for limiting purposes.
type Op struct {
	Name      string
	Expensive bool
}

// Error is the rate-limited failure, distinguished from hard failures and
// carrying retry guidance.
type Error struct {
	Scope      string
	Operation  string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("operation %q rate limited (%s bucket): retry in %s",
		e.Operation, e.Scope, e.RetryAfter.Round(time.Millisecond))
}

func (e *Error) Unwrap() error { return domain.ErrRateLimited }

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds the token buckets. Access is synchronized: buckets are
// checked and consumed atomically so concurrent callers cannot interleave a
// partial deduction.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	global    *rate.Limiter
	expensive *rate.Limiter
	clients   map[string]*clientEntry
}

// New creates a limiter with the given configuration.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		cfg:       cfg,
		global:    newBucket(cfg.GlobalCapacity, cfg.Window),
		expensive: newBucket(cfg.ExpensiveCapacity, cfg.Window),
		clients:   make(map[string]*clientEntry),
	}
}

func newBucket(capacity int, window time.Duration) *rate.Limiter {
	if capacity <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	// Burst equals capacity; refill is continuous over the window.
	return rate.NewLimiter(rate.Limit(float64(capacity)/window.Seconds()), capacity)
}

// CheckAndConsume deducts cost tokens from every applicable bucket, or
// fails with *Error naming the short bucket without consuming anything.
func (l *Limiter) CheckAndConsume(clientID string, op Op, cost int) error {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	buckets := []struct {
		scope  string
		bucket *rate.Limiter
	}{
		{"global", l.global},
		{"client", l.clientBucket(clientID, now)},
	}
	if op.Expensive {
		buckets = append(buckets, struct {
			scope  string
			bucket *rate.Limiter
		}{"expensive", l.expensive})
	}

	// All-or-nothing: verify every bucket before deducting from any.
	for _, b := range buckets {
		if b.bucket.TokensAt(now) < float64(cost) {
			return &Error{
				Scope:      b.scope,
				Operation:  op.Name,
				RetryAfter: retryAfter(b.bucket, cost, now),
			}
		}
	}
	for _, b := range buckets {
		b.bucket.AllowN(now, cost)
	}
	return nil
}

func (l *Limiter) clientBucket(clientID string, now time.Time) *rate.Limiter {
	entry, ok := l.clients[clientID]
	if !ok {
		entry = &clientEntry{limiter: newBucket(l.cfg.ClientCapacity, l.cfg.Window)}
		l.clients[clientID] = entry
		l.pruneLocked(now)
	}
	entry.lastSeen = now
	return entry.limiter
}

// pruneLocked drops client buckets idle for several windows. Runs lazily on
// new-client registration, so no background goroutine is needed.
func (l *Limiter) pruneLocked(now time.Time) {
	if len(l.clients) < 128 {
		return
	}
	idle := 3 * l.cfg.Window
	for id, entry := range l.clients {
		if now.Sub(entry.lastSeen) > idle {
			delete(l.clients, id)
		}
	}
}

func retryAfter(bucket *rate.Limiter, cost int, now time.Time) time.Duration {
	limit := bucket.Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	deficit := float64(cost) - bucket.TokensAt(now)
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / float64(limit) * float64(time.Second))
}
