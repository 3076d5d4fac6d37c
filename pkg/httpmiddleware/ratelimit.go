package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests from limiting, e.g. signed webhooks
	// delivered from a small set of provider addresses.
	Skip func(*http.Request) bool
	// Store keeps the counters. If nil, an in-process sliding window
	// store is used, which is only accurate for a single replica.
	Store Store
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key.
type Store interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// entry tracks request counts across two adjacent windows for the sliding
// window algorithm.
type entry struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a sliding window Store kept in process memory.
type MemoryStore struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore creates a MemoryStore allowing limit requests per window.
func NewMemoryStore(limit int, window time.Duration) *MemoryStore {
	return &MemoryStore{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Allow implements Store.
func (s *MemoryStore) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{currStart: now}
		s.entries[key] = e
	}

	// Rotate window if the current window has elapsed.
	if now.Sub(e.currStart) >= s.window {
		e.prevCount = e.currCount
		e.prevStart = e.currStart
		e.currCount = 0
		e.currStart = now.Truncate(s.window)
		if now.Sub(e.prevStart) >= 2*s.window {
			e.prevCount = 0
		}
	}

	// Weight the previous window by its overlap with the sliding window.
	elapsed := now.Sub(e.currStart)
	overlapRatio := max(1.0-elapsed.Seconds()/s.window.Seconds(), 0)
	effectiveCount := e.prevCount*overlapRatio + e.currCount
	resetAt := e.currStart.Add(s.window)

	if effectiveCount >= float64(s.limit) {
		return Decision{ResetAt: resetAt}, nil
	}

	e.currCount++
	effectiveCount++

	return Decision{
		Allowed:   true,
		Remaining: max(int(float64(s.limit)-effectiveCount), 0),
		ResetAt:   resetAt,
	}, nil
}

// Cleanup removes entries whose windows have fully expired.
func (s *MemoryStore) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if now.Sub(e.currStart) >= 2*s.window {
			delete(s.entries, key)
		}
	}
}

// StartCleanup launches a background goroutine that periodically removes
// expired entries. It stops when ctx is cancelled.
func (s *MemoryStore) StartCleanup(ctx context.Context) {
	interval := 2 * s.window
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-key rate limit. When
// the limit is exceeded, it responds with 429 Too Many Requests and a JSON
// body. Every response includes X-RateLimit-Limit, X-RateLimit-Remaining,
// and X-RateLimit-Reset headers.
//
// Store errors let the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(cfg.Max, cfg.Window)
	}
	return rateLimitMiddleware(cfg)
}

// RateLimitWithCleanup is like RateLimit but, when no Store is configured,
// additionally starts a background goroutine that evicts expired in-memory
// entries every 2x the window duration. The goroutine stops when ctx is
// cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Store == nil {
		store := NewMemoryStore(cfg.Max, cfg.Window)
		store.StartCleanup(ctx)
		cfg.Store = store
	}
	return rateLimitMiddleware(cfg)
}

var rateLimitedBody = []byte(`{"ok":false,"error":"rate limit exceeded"}` + "\n")

func rateLimitMiddleware(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := cfg.KeyFunc(r)
			now := time.Now()

			d, err := cfg.Store.Allow(ctx, key, now)
			if err != nil {
				zctx.From(ctx).Warn("Rate limit store failed, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := max(d.ResetAt.Sub(now), 0)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write(rateLimitedBody)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request, checking
// X-Forwarded-For first, then X-Real-IP, then falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may contain a comma-separated list; use the first.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
