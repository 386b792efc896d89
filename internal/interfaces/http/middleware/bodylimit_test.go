package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	newRouter := func(limit int64) *gin.Engine {
		router := gin.New()
		router.Use(RequestID(), BodyLimit(limit))
		router.POST("/raw", func(c *gin.Context) {
			if _, err := io.ReadAll(c.Request.Body); err != nil {
				c.String(http.StatusBadRequest, "read failed")
				return
			}
			c.String(http.StatusOK, "ok")
		})
		router.POST("/payments", func(c *gin.Context) {
			var req struct {
				Notes string `json:"notes"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				HandleValidationError(c, err)
				return
			}
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	serve := func(router *gin.Engine, path string, body string, streamed bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if streamed {
			req.ContentLength = -1
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("body within the limit", func(t *testing.T) {
		w := serve(newRouter(1024), "/raw", `{"amount":"10"}`, false)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared length over the limit", func(t *testing.T) {
		w := serve(newRouter(100), "/raw", strings.Repeat("x", 200), false)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")
		assert.Contains(t, w.Body.String(), "exceeds 100 bytes")
	})

	t.Run("streamed body fails while reading", func(t *testing.T) {
		w := serve(newRouter(50), "/raw", strings.Repeat("x", 100), true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("streamed body over the limit during binding", func(t *testing.T) {
		body := `{"notes":"` + strings.Repeat("x", 100) + `"}`
		w := serve(newRouter(50), "/payments", body, true)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")
	})

	t.Run("zero limit disables the check", func(t *testing.T) {
		w := serve(newRouter(0), "/raw", strings.Repeat("x", 4096), false)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
