package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	// Sustained requests per second per key
	Rate float64
	// Requests allowed in a burst
	Burst int
	// Entries idle for this long are dropped
	IdleTTL time.Duration
	// KeyGenerator picks the bucket; an empty key bypasses the limiter
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig limits each client address.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:    20,
		Burst:   40,
		IdleTTL: 5 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}
}

// FrameRateLimiterConfig limits frame uploads per session, a little above
// the rate the session loop consumes them.
func FrameRateLimiterConfig(fps float64) RateLimiterConfig {
	if fps <= 0 {
		fps = 30
	}
	return RateLimiterConfig{
		Rate:    fps * 2,
		Burst:   int(fps*2) + 1,
		IdleTTL: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Params("id")
		},
	}
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	config   RateLimiterConfig
	limiters map[string]*keyLimiter
	mu       sync.Mutex
	done     chan struct{}
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.Rate <= 0 {
		config.Rate = def.Rate
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = def.KeyGenerator
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*keyLimiter),
		done:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// Handler returns the Fiber middleware handler
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.config.KeyGenerator(c)
		if key == "" {
			return c.Next()
		}

		limiter := rl.get(key, time.Now())

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Burst))
		if !limiter.Allow() {
			retry := time.Duration(float64(time.Second) / rl.config.Rate)
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			return domain.ErrRateLimitExceeded
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))

		return c.Next()
	}
}

func (rl *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst)}
		rl.limiters[key] = kl
	}
	kl.lastAccess = now
	return kl.limiter
}

// cleanup removes stale entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, kl := range rl.limiters {
		if now.Sub(kl.lastAccess) > rl.config.IdleTTL {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
