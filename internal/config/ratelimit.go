package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig configures one token bucket.  Scope separates buckets for
// different route groups (auth, payments) so that a burst of login attempts
// does not starve payment verification.
type RateLimitConfig struct {
    Enabled        bool
    Scope          string
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  A scoped variable such
// as RATE_LIMIT_AUTH_CAPACITY overrides the global RATE_LIMIT_CAPACITY.
func LoadRateLimitConfig(scope string) RateLimitConfig {
    scoped := func(k string) string {
        if scope == "" {
            return "RATE_LIMIT_" + k
        }
        sk := "RATE_LIMIT_" + strings.ToUpper(scope) + "_" + k
        if os.Getenv(sk) != "" {
            return sk
        }
        return "RATE_LIMIT_" + k
    }
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Scope:          scope,
        Capacity:       envInt(scoped("CAPACITY"), 30),
        RefillTokens:   envInt(scoped("REFILL_TOKENS"), 1),
        RefillInterval: envDur(scoped("REFILL_INTERVAL"), time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "agrirent:rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if def.Capacity < 1 {
        def.Capacity = 1
    }
    if def.RefillTokens < 1 {
        def.RefillTokens = 1
    }
    if def.RefillInterval <= 0 {
        def.RefillInterval = time.Second
    }
    // keep the bucket alive for at least a few refill periods
    if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
        def.TTL = minTTL
    }
    return def
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    switch os.Getenv(k) {
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if dur, err := time.ParseDuration(v); err == nil {
        return dur
    }
    return d
}
