package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/graphuraprojects/agrirent/internal/config"
    "github.com/graphuraprojects/agrirent/internal/model"
    "github.com/graphuraprojects/agrirent/internal/utils"
)

func newRedis(t *testing.T) *redis.Client {
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return rdb
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if token != "" {
        req.Header.Set("Authorization", "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
    e := echo.New()
    g := e.Group("", JWTAuth("s"), RequireRole(model.RoleOwner, model.RoleAdmin))
    g.GET("/who", func(c echo.Context) error {
        a, ok := Identity(c)
        require.True(t, ok)
        return c.JSON(http.StatusOK, map[string]any{"id": a.ID, "role": a.Role})
    })

    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/who", "").Code)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/who", "garbage").Code)

    farmer, err := utils.NewAccessToken("s", 1, model.RoleFarmer, 5)
    require.NoError(t, err)
    rec := serve(e, http.MethodGet, "/who", farmer.Token)
    assert.Equal(t, http.StatusForbidden, rec.Code)
    assert.JSONEq(t, `{"success":false,"message":"forbidden"}`, rec.Body.String())

    owner, err := utils.NewAccessToken("s", 7, model.RoleOwner, 5)
    require.NoError(t, err)
    rec = serve(e, http.MethodGet, "/who", owner.Token)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"id":7,"role":"owner"}`, rec.Body.String())
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled: true, Scope: "auth", Capacity: 2, RefillTokens: 1,
        RefillInterval: time.Minute, TTL: 5 * time.Minute, KeyStrategy: "ip", Prefix: "test:rl",
    }
    e := echo.New()
    e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb))

    assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", "").Code)
    assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", "").Code)
    rec := serve(e, http.MethodPost, "/login", "")
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRedisCacheHitAndPurge(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.CacheConfig{
        Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
        KeyStrategy: "route_query", Prefix: "test:cache", MaxBodyBytes: 1 << 20,
    }
    calls := 0
    e := echo.New()
    e.GET("/machines/:id", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
    }, NewRedisCache(cfg, rdb))
    e.PUT("/machines/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, PurgeCache(cfg, rdb))

    first := serve(e, http.MethodGet, "/machines/1", "")
    assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
    second := serve(e, http.MethodGet, "/machines/1", "")
    assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
    assert.JSONEq(t, first.Body.String(), second.Body.String())
    assert.Equal(t, 1, calls)

    // distinct ids do not share an entry
    other := serve(e, http.MethodGet, "/machines/2", "")
    assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"id":"2"}`, other.Body.String())

    serve(e, http.MethodPut, "/machines/1", "")
    assert.Equal(t, "MISS", serve(e, http.MethodGet, "/machines/1", "").Header().Get("X-Cache"))
    assert.Equal(t, 3, calls)
}
