package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/types"
)

const (
	limiterIdleTTL      = 10 * time.Minute
	limiterSweepEvery   = time.Minute
	msgRateLimitReached = "Too many requests"
)

// RateLimitMiddleware 返回一个基于配置的限流中间件.
// key 为 global、ip 或 header:<name>，header 缺失时退回客户端 IP.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	keyMode := strings.ToLower(strings.TrimSpace(cfg.Key))

	if keyMode == "global" || keyMode == "" {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

		return func(c *gin.Context) {
			if !limiter.Allow() {
				reject(c)
				return
			}

			c.Next()
		}
	}

	limiters := newKeyedLimiters(cfg, time.Now)

	return func(c *gin.Context) {
		key := clientIP(c)

		if name, ok := strings.CutPrefix(keyMode, "header:"); ok {
			if v := c.GetHeader(name); v != "" {
				key = v
			}
		}

		if key == "" {
			key = "unknown"
		}

		if !limiters.get(key).Allow() {
			reject(c)
			return
		}

		c.Next()
	}
}

func reject(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{Error: msgRateLimitReached})
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiters 按键维护限流器，闲置超过 limiterIdleTTL 的条目在访问时顺带清理.
type keyedLimiters struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func newKeyedLimiters(cfg configs.RateLimitConfig, now func() time.Time) *keyedLimiters {
	return &keyedLimiters{
		rps:       rate.Limit(cfg.RPS),
		burst:     cfg.Burst,
		entries:   make(map[string]*limiterEntry),
		lastSweep: now(),
		now:       now,
	}
}

func (k *keyedLimiters) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()

	if now.Sub(k.lastSweep) >= limiterSweepEvery {
		for id, e := range k.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(k.entries, id)
			}
		}

		k.lastSweep = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.entries[key] = e
	}

	e.lastSeen = now

	return e.limiter
}

func (k *keyedLimiters) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.entries)
}

func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}

	return host
}
