package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/utils"
)

func limitedEcho(cfg config.RateLimitConfig) *echo.Echo {
	e := echo.New()
	e.GET("/exec", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(cfg, nil, zap.NewNop()))
	return e
}

func get(e *echo.Echo, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLocalTokenBucket(t *testing.T) {
	e := limitedEcho(config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 5 * time.Hour, KeyStrategy: "ip", Prefix: "rl",
	})

	for i := 0; i < 2; i++ {
		if rec := get(e, "/exec?action=quote", "10.0.0.1:1000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := get(e, "/exec?action=quote", "10.0.0.1:1000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	if rec := get(e, "/exec?action=quote", "10.0.0.2:1000"); rec.Code != http.StatusOK {
		t.Fatalf("other client limited: %d", rec.Code)
	}
}

func TestRateKeyPerAction(t *testing.T) {
	e := limitedEcho(config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 5 * time.Hour, KeyStrategy: "ip_action", Prefix: "rl",
	})
	if rec := get(e, "/exec?action=quote", "10.0.0.1:1000"); rec.Code != http.StatusOK {
		t.Fatalf("quote: %d", rec.Code)
	}
	if rec := get(e, "/exec?action=getAvailability", "10.0.0.1:1000"); rec.Code != http.StatusOK {
		t.Fatalf("getAvailability shares the quote bucket: %d", rec.Code)
	}
	if rec := get(e, "/exec?action=quote", "10.0.0.1:1000"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second quote: %d", rec.Code)
	}
}

func TestDisabledLimiterPassesThrough(t *testing.T) {
	e := limitedEcho(config.RateLimitConfig{Enabled: false})
	for i := 0; i < 5; i++ {
		if rec := get(e, "/exec", "10.0.0.1:1000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(CtxSubject).(string))
	}, JWTAuth("secret"), RequireRole(utils.RoleAdmin))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}

	guest, _ := utils.NewAccessToken("secret", "guest@example.com", "GUEST", 5)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+guest.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong role: %d", rec.Code)
	}

	admin, _ := utils.NewAccessToken("secret", "owner@example.com", utils.RoleAdmin, 5)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "owner@example.com" {
		t.Fatalf("admin: %d %s", rec.Code, rec.Body.String())
	}
}
