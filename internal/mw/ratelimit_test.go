package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRL_AllowBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 2, time.Minute)
	assert.True(t, rl.Allow("k"))
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"))
}

func TestRL_SweepForgetsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, time.Minute)
	rl.Allow("k")
	rl.sweep(time.Now().Add(2 * time.Minute))
	assert.True(t, rl.Allow("k"))
}

func TestMiddleware_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(rate.Limit(0.001), 1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", "u1"); c.Next() })
	r.Use(rl.Middleware("user_id"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
