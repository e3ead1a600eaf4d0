package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/roster/internal/httpapi"
)

func TestRateLimiter_perIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	done := make(chan struct{})
	defer close(done)

	r := gin.New()
	r.Use(httpapi.RateLimiter(1, 2, done))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := hit("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i+1, code)
		}
	}
	if code := hit("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", code)
	}
	if code := hit("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", code)
	}
}
