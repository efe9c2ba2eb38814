package throttle

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
	"golang.org/x/time/rate"
)

const (
	DefaultRequests = 100
	DefaultWindow   = 15 * time.Minute
)

// Limiter keeps one token bucket per client key. A bucket holds Requests
// tokens and refills them evenly over Window.
type Limiter struct {
	requests int
	window   time.Duration
	idleTTL  time.Duration

	mu       sync.Mutex
	limiters map[string]*entry
	lastGC   time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter returns a limiter allowing requests per window for each key
func NewLimiter(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		requests: requests,
		window:   window,
		idleTTL:  2 * window,
		limiters: make(map[string]*entry),
	}
}

// Allow reports whether key may make a request at now
func (l *Limiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.collect(now)

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.requests)), l.requests),
		}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Size returns the number of tracked keys
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// collect drops buckets idle long enough to be full again
func (l *Limiter) collect(now time.Time) {
	if now.Sub(l.lastGC) < l.window {
		return
	}
	l.lastGC = now
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
}

type Config struct {
	Requests     int
	Window       time.Duration
	KeyFunc      func(router.Context) string
	ErrorHandler router.ErrorHandler
	Clock        func() time.Time
	Logger       accounts.Logger
}

// New returns a middleware that rejects clients over budget with 429
func New(config ...Config) router.MiddlewareFunc {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = accounts.DefaultLogger()
	}
	if cfg.ErrorHandler == nil {
		logger := cfg.Logger
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return accounts.WriteError(c, err, false, logger)
		}
	}

	limiter := NewLimiter(cfg.Requests, cfg.Window)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			key := cfg.KeyFunc(ctx)
			if !limiter.Allow(key, cfg.Clock()) {
				cfg.Logger.Warn("throttled request key=%s path=%s", key, ctx.OriginalURL())
				return cfg.ErrorHandler(ctx, accounts.ErrTooManyRequests)
			}
			return next(ctx)
		}
	}
}

// HeaderSource is the part of the request ClientKey reads
type HeaderSource interface {
	Header(key string) string
}

// ClientKey identifies the caller by its forwarded address
func ClientKey(ctx router.Context) string {
	return clientKey(ctx)
}

func clientKey(src HeaderSource) string {
	if fwd := src.Header("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(src.Header("X-Real-Ip")); real != "" {
		return real
	}
	return "anonymous"
}
