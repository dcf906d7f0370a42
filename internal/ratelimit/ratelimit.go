package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JoelGonzalez08/TerraWeb/internal/middleware"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
)

type LimiterConfig struct {
	RPS   int
	Burst int
}

type RateLimiter struct {
	Redis  *redis.Client
	Prefix string
	Config LimiterConfig
}

func New(redis *redis.Client, prefix string, cfg LimiterConfig) *RateLimiter {
	return &RateLimiter{Redis: redis, Prefix: prefix, Config: cfg}
}

func (rl *RateLimiter) Middleware(keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.Prefix + ":" + keyFunc(r)
			allowed, err := rl.allow(r.Context(), key)
			if err != nil {
				apperrors.WriteError(w, apperrors.InternalServerError("rate limiter error", err))
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				apperrors.WriteError(w, apperrors.New(http.StatusTooManyRequests, "rate limit exceeded", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Token bucket in Redis. One Lua round trip keeps check-and-decrement atomic
// across server instances.
const tokenBucketScript = `
local tokens_key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local bucket = redis.call('HMGET', tokens_key, 'tokens', 'last')
local tokens = tonumber(bucket[1]) or max_tokens
local last = tonumber(bucket[2]) or now
local delta = math.max(0, now - last) / 1000
local refill = math.floor(delta * refill_rate)
tokens = math.min(max_tokens, tokens + refill)
if tokens > 0 then
  tokens = tokens - 1
  redis.call('HMSET', tokens_key, 'tokens', tokens, 'last', now)
  redis.call('EXPIRE', tokens_key, 2)
  return 1
else
  redis.call('HMSET', tokens_key, 'tokens', tokens, 'last', now)
  redis.call('EXPIRE', tokens_key, 2)
  return 0
end
`

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano() / int64(time.Millisecond)
	res, err := rl.Redis.Eval(ctx, tokenBucketScript, []string{key}, rl.Config.Burst, rl.Config.RPS, now).Result()
	if err != nil {
		slog.Error("redis eval error", "key", key, "error", err)
		return false, err
	}
	var allowed int64
	switch v := res.(type) {
	case int64:
		allowed = v
	case string:
		allowed, _ = strconv.ParseInt(v, 10, 64)
	}
	return allowed == 1, nil
}

// KeyByIP buckets by client address.
func KeyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// KeyBySessionOrIP buckets authenticated requests per user so a shared NAT
// does not starve unrelated accounts; anonymous requests fall back to IP.
func KeyBySessionOrIP(r *http.Request) string {
	if sess := middleware.GetSession(r); sess != nil {
		return sess.UserID
	}
	return KeyByIP(r)
}
