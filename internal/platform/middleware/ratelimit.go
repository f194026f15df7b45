package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long a caller's bucket is kept after its last request.
	// Zero means defaultLimiterIdleTTL.
	IdleTTL time.Duration
}

const (
	defaultLimiterIdleTTL = 10 * time.Minute
	limiterSweepInterval  = time.Minute
)

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleTTL:           defaultLimiterIdleTTL,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per caller key. Buckets idle for longer
// than idleTTL are swept on access, at most once per limiterSweepInterval.
type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	cfg       RateLimitConfig
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultLimiterIdleTTL
	}
	// A bucket must not be dropped before it has refilled, or eviction would
	// hand a throttled caller a fresh burst.
	if cfg.RequestsPerSecond > 0 {
		refill := time.Duration(float64(cfg.BurstSize) / cfg.RequestsPerSecond * float64(time.Second))
		if refill > ttl {
			ttl = refill
		}
	}
	return &limiterStore{
		limiters:  make(map[string]*limiterEntry),
		cfg:       cfg,
		idleTTL:   ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= limiterSweepInterval {
		s.sweep(now)
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops idle buckets. Callers hold s.mu.
func (s *limiterStore) sweep(now time.Time) {
	for key, e := range s.limiters {
		if now.Sub(e.lastSeen) > s.idleTTL {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

// rateLimitKey prefers the authenticated user so clinic staff behind one NAT
// do not share a bucket.
func rateLimitKey(c echo.Context) string {
	if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
		return "user:" + actor.UserID.String()
	}
	return "ip:" + c.RealIP()
}

// RateLimit rejects callers that exceed their token bucket with 429.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := store.get(rateLimitKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			remaining := int(limiter.TokensAt(time.Now()))
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			return next(c)
		}
	}
}
