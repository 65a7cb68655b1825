package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"iterate-orchestrator/internal/config"
	"iterate-orchestrator/pkg/concurrent"
	"iterate-orchestrator/pkg/response"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// WindowLimiter enforces a fixed-window quota: at most max calls to
// endpoint by principal within any windowSeconds-wide bucket. Unlike the
// token-bucket limiters in rate_limit.go, a window limiter's buckets are
// addressable per (principal, endpoint) pair with caller-supplied limits, so
// it fronts credit-charging operations where the quota varies by endpoint
// (10/min on prompt iteration).
type WindowLimiter interface {
	Allow(ctx context.Context, principal uuid.UUID, endpoint string, max int, windowSeconds int) (bool, error)
}

// NewWindowLimiter selects the Postgres-backed limiter when cfg.UsePostgres
// is set (durable across restarts, shared across replicas) or the
// in-memory limiter otherwise (single-process, zero setup).
func NewWindowLimiter(cfg config.RateLimitConfig, pool *pgxpool.Pool) WindowLimiter {
	if cfg.UsePostgres {
		return NewPostgresWindowLimiter(pool)
	}
	return NewMemoryWindowLimiter()
}

type windowCounter struct {
	windowStart int64
	count       int
}

// MemoryWindowLimiter keeps per-process window counters behind a mutex. A
// background goroutine reaps buckets whose window has closed so the map
// does not grow without bound across a long-lived process.
type MemoryWindowLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	stopChan chan struct{}
}

func NewMemoryWindowLimiter() *MemoryWindowLimiter {
	l := &MemoryWindowLimiter{
		counters: make(map[string]*windowCounter),
		stopChan: make(chan struct{}),
	}
	concurrent.SafeGo(l.runCleanup)
	return l
}

func (l *MemoryWindowLimiter) Allow(_ context.Context, principal uuid.UUID, endpoint string, max int, windowSeconds int) (bool, error) {
	if windowSeconds <= 0 {
		return false, fmt.Errorf("windowSeconds must be positive")
	}

	now := time.Now().Unix()
	windowStart := now - now%int64(windowSeconds)
	key := principal.String() + ":" + endpoint

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.counters[key]
	if !ok || entry.windowStart != windowStart {
		entry = &windowCounter{windowStart: windowStart, count: 0}
		l.counters[key] = entry
	}

	if entry.count >= max {
		return false, nil
	}
	entry.count++
	return true, nil
}

func (l *MemoryWindowLimiter) runCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupExpired()
		case <-l.stopChan:
			return
		}
	}
}

func (l *MemoryWindowLimiter) cleanupExpired() {
	cutoff := time.Now().Unix() - 3600

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.counters {
		if entry.windowStart < cutoff {
			delete(l.counters, key)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed_entries", removed).Msg("window rate limiter cleanup")
	}
}

func (l *MemoryWindowLimiter) Stop() {
	select {
	case l.stopChan <- struct{}{}:
	default:
	}
}

// PostgresWindowLimiter persists window counters in a shared table, so the
// quota holds across process restarts and across every replica of the
// control-plane API sitting behind the same database.
type PostgresWindowLimiter struct {
	pool *pgxpool.Pool
}

func NewPostgresWindowLimiter(pool *pgxpool.Pool) *PostgresWindowLimiter {
	return &PostgresWindowLimiter{pool: pool}
}

// Allow increments the counter for the current window in a single
// round-trip atomic upsert, then checks the count it got back. This beats
// a query-then-update-or-insert sequence: two concurrent requests racing
// the same window can never both read a stale pre-increment count.
func (l *PostgresWindowLimiter) Allow(ctx context.Context, principal uuid.UUID, endpoint string, max int, windowSeconds int) (bool, error) {
	if windowSeconds <= 0 {
		return false, fmt.Errorf("windowSeconds must be positive")
	}

	now := time.Now().Unix()
	windowStart := time.Unix(now-now%int64(windowSeconds), 0).UTC()

	const query = `
		INSERT INTO rate_limit_counters (principal_id, endpoint, window_start, request_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (principal_id, endpoint, window_start)
		DO UPDATE SET request_count = rate_limit_counters.request_count + 1
		RETURNING request_count`

	var count int
	if err := l.pool.QueryRow(ctx, query, principal, endpoint, windowStart).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count <= max, nil
}

// PrincipalWindowRateLimitMiddleware enforces a WindowLimiter quota for a
// single named endpoint, keyed by the authenticated principal. Unauthenticated
// requests are rejected upstream by the auth middleware, so GetPrincipalFromContext
// is assumed to succeed here.
func PrincipalWindowRateLimitMiddleware(limiter WindowLimiter, endpoint string, max int, windowSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipalFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "authentication required")
				return
			}

			allowed, err := limiter.Allow(r.Context(), principal.ID, endpoint, max, windowSeconds)
			if err != nil {
				log.Error().Err(err).Str("endpoint", endpoint).Msg("window rate limiter failed")
				response.InternalError(w, "Failed to check rate limit")
				return
			}
			if !allowed {
				response.TooManyRequests(w, "rate limit exceeded, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
