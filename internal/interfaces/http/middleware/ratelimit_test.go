package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinic/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppedClock lets tests move the limiter's clock
type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSteppedLimiter(limit int, every time.Duration) (*RateLimiter, *steppedClock) {
	clock := &steppedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, every)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		rl := NewRateLimiter(5, time.Minute)
		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("10.0.0.1"), "request %d should be allowed", i+1)
		}
		assert.False(t, rl.Allow("10.0.0.1"))
	})

	t.Run("separate budgets per client", func(t *testing.T) {
		rl := NewRateLimiter(2, time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("budget resets after the window", func(t *testing.T) {
		rl, clock := newSteppedLimiter(2, time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))

		clock.Advance(time.Minute)
		assert.True(t, rl.Allow("a"))
		assert.Equal(t, 1, rl.Remaining("a"))
	})

	t.Run("remaining counts down", func(t *testing.T) {
		rl := NewRateLimiter(5, time.Minute)
		assert.Equal(t, 5, rl.Remaining("new"))
		rl.Allow("new")
		rl.Allow("new")
		assert.Equal(t, 3, rl.Remaining("new"))
	})

	t.Run("idle clients are evicted", func(t *testing.T) {
		rl, clock := newSteppedLimiter(1, time.Minute)
		rl.Allow("a")
		clock.Advance(3 * time.Minute)
		rl.evict()

		rl.mu.Lock()
		_, kept := rl.clients["a"]
		rl.mu.Unlock()
		assert.False(t, kept)
	})

	t.Run("run stops with its context", func(t *testing.T) {
		rl := NewRateLimiter(1, time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			rl.Run(ctx)
			close(done)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})

	t.Run("concurrent access never exceeds the budget", func(t *testing.T) {
		rl := NewRateLimiter(100, time.Minute)
		var wg sync.WaitGroup
		var allowed atomic.Int32
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if rl.Allow("shared") {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(100), allowed.Load())
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	newRouter := func(rl *RateLimiter) *gin.Engine {
		router := gin.New()
		router.Use(RequestID(), RateLimit(rl))
		router.GET("/api/v1/invoices", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}
	get := func(router *gin.Engine, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("sets budget headers", func(t *testing.T) {
		router := newRouter(NewRateLimiter(3, time.Minute))
		w := get(router, "192.0.2.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("returns 429 with the error envelope when exhausted", func(t *testing.T) {
		router := newRouter(NewRateLimiter(1, time.Minute))
		assert.Equal(t, http.StatusOK, get(router, "192.0.2.2").Code)

		w := get(router, "192.0.2.2")
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		router := newRouter(NewRateLimiter(1, time.Minute))
		assert.Equal(t, http.StatusOK, get(router, "192.0.2.3").Code)
		assert.Equal(t, http.StatusTooManyRequests, get(router, "192.0.2.3").Code)
		assert.Equal(t, http.StatusOK, get(router, "192.0.2.4").Code)
	})
}
