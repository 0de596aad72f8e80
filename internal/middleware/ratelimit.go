package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/graphuraprojects/agrirent/internal/config"
)

// tokenBucket refills refill_tokens every interval_ms up to capacity and
// takes one token per call.  State lives in a hash so every server instance
// shares the same bucket.
var tokenBucket = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])
    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + (intervals * refill_tokens))
        last_refill = last_refill + (intervals * interval_ms)
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)
    return { allowed, tokens, retry_after_ms }
`)

type decision struct {
    allowed    bool
    remaining  int64
    retryAfter time.Duration
}

type limiter struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

func (l limiter) take(ctx context.Context, key string, now time.Time) (decision, error) {
    vals, err := tokenBucket.Run(ctx, l.rdb, []string{key},
        now.UnixMilli(),
        l.cfg.Capacity,
        l.cfg.RefillTokens,
        l.cfg.RefillInterval.Milliseconds(),
        int64(l.cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return decision{}, err
    }
    if len(vals) != 3 {
        return decision{}, fmt.Errorf("unexpected limiter result %v", vals)
    }
    return decision{
        allowed:    vals[0] == 1,
        remaining:  vals[1],
        retryAfter: time.Duration(vals[2]) * time.Millisecond,
    }, nil
}

// NewTokenBucket limits requests per key (see buildRateKey).  Redis errors
// fail open: the request proceeds and the error is logged in debug mode.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    l := limiter{cfg: cfg, rdb: rdb}

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            d, err := l.take(c.Request().Context(), key, time.Now())
            if err != nil {
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
                }
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if !d.allowed {
                secs := int(math.Ceil(d.retryAfter.Seconds()))
                h.Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    c.Logger().Infof("[ratelimit] block key=%s retry=%s", key, d.retryAfter)
                }
                return deny(c, http.StatusTooManyRequests, "rate limit exceeded")
            }
            return next(c)
        }
    }
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    if cfg.Scope != "" {
        parts = append(parts, cfg.Scope)
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := identityKey(c)
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
