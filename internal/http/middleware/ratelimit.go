package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

// WindowResult is the state of one sliding window after a hit.
type WindowResult struct {
	Allowed bool
	// Count is the number of accepted hits in the window, including this one
	// when it was allowed.
	Count int
	// Reset is the time until the oldest accepted hit leaves the window.
	Reset time.Duration
}

// WindowStore records hits in a sliding-window log. A hit that would exceed
// limit is rejected and not recorded.
type WindowStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error)
}

// RateLimitConfig configures one limited route.
type RateLimitConfig struct {
	// Name scopes keys so each route keeps its own windows.
	Name       string
	Limit      int
	Window     time.Duration
	Store      WindowStore
	TrustProxy bool
	Logger     *logging.Logger
	Metrics    *metrics.IntakeMetrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

// RateLimit returns an HTTP middleware that rejects requests exceeding
// cfg.Limit within cfg.Window per client address with 429 Too Many Requests.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Store == nil {
		cfg.Store = NewMemoryWindowStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := strconv.Itoa(cfg.Limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, cfg.TrustProxy)
			res, err := cfg.Store.Hit(r.Context(), cfg.Name+":"+ip, cfg.Now(), cfg.Window, cfg.Limit)
			if err != nil {
				// Limiter outages must not take the forms down with them.
				cfg.Logger.Warn("rate limiter unavailable", "route", cfg.Name, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			reset := strconv.Itoa(ceilSeconds(res.Reset))
			h := w.Header()
			h.Set("RateLimit-Limit", limit)
			h.Set("RateLimit-Remaining", strconv.Itoa(max(cfg.Limit-res.Count, 0)))
			h.Set("RateLimit-Reset", reset)

			if !res.Allowed {
				cfg.Metrics.ObserveSubmission(cfg.Name, metrics.OutcomeRateLimited)
				cfg.Logger.Info("rate limit exceeded", "route", cfg.Name, "remote_ip", ip)
				h.Set("Retry-After", reset)
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address. With trustProxy the right-most
// X-Forwarded-For entry wins, since only one proxy hop is trusted.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
			hops := strings.Split(xff[len(xff)-1], ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// MemoryWindowStore keeps per-key hit logs in process memory.
type MemoryWindowStore struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	stop   chan struct{}
	closed sync.Once
}

// NewMemoryWindowStore creates a store and starts a background sweep that
// evicts keys whose windows have emptied.
func NewMemoryWindowStore() *MemoryWindowStore {
	s := &MemoryWindowStore{
		hits: make(map[string][]time.Time),
		stop: make(chan struct{}),
	}
	go s.cleanup(5*time.Minute, 10*time.Minute)
	return s
}

func (s *MemoryWindowStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := prune(s.hits[key], now.Add(-window))
	res := WindowResult{Count: len(log)}
	if len(log) < limit {
		log = append(log, now)
		res.Allowed = true
		res.Count = len(log)
	}
	if len(log) > 0 {
		res.Reset = log[0].Add(window).Sub(now)
		s.hits[key] = log
	} else {
		res.Reset = window
		delete(s.hits, key)
	}
	return res, nil
}

// Sweep drops hits older than maxAge and forgets empty keys.
func (s *MemoryWindowStore) Sweep(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-maxAge)
	for key, log := range s.hits {
		if log = prune(log, cutoff); len(log) == 0 {
			delete(s.hits, key)
		} else {
			s.hits[key] = log
		}
	}
}

// Close stops the background sweep.
func (s *MemoryWindowStore) Close() {
	s.closed.Do(func() { close(s.stop) })
}

func (s *MemoryWindowStore) keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func (s *MemoryWindowStore) cleanup(every, maxAge time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Sweep(now, maxAge)
		}
	}
}

// prune drops entries at or before cutoff. Logs are in insertion order.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0:0], log[i:]...)
}
