package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiterDropsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(idleLimiterTTL + time.Minute)
	assert.True(t, rl.Allow("b"))
	assert.Len(t, rl.limits, 1)
	assert.True(t, rl.Allow("a"))
}

func TestPerIPMiddleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(rate.Every(time.Hour), 1)
	e.POST("/api/chat", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, rl.PerIP())

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}
