package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newProtected(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		setup  func(r *http.Request)
		target string
		status int
	}{
		{name: "disabled", key: "", setup: func(*http.Request) {}, status: http.StatusOK},
		{name: "missing", key: "k", setup: func(*http.Request) {}, status: http.StatusUnauthorized},
		{name: "header", key: "k", setup: func(r *http.Request) { r.Header.Set("X-API-Key", "k") }, status: http.StatusOK},
		{name: "wrong header", key: "k", setup: func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, status: http.StatusForbidden},
		{name: "bearer", key: "k", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer k") }, status: http.StatusOK},
		{name: "basic is ignored", key: "k", setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic k") }, status: http.StatusUnauthorized},
		{name: "query", key: "k", target: "/ping?api_key=k", setup: func(*http.Request) {}, status: http.StatusOK},
		{name: "wrong query", key: "k", target: "/ping?api_key=x", setup: func(*http.Request) {}, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.target
			if target == "" {
				target = "/ping"
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			tt.setup(req)

			rec := httptest.NewRecorder()
			newProtected(tt.key).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
