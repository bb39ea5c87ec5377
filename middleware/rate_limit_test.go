package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := &RateLimiter{
		windows:      make(map[string]*ipWindow),
		maxRequests:  3,
		windowPeriod: time.Minute,
	}

	for i := 0; i < 3; i++ {
		allowed, _, _ := rl.Allow("10.0.0.1")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	allowed, _, retryAfter := rl.Allow("10.0.0.1")
	if allowed {
		t.Fatal("fourth request should be blocked")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retry-after: %v", retryAfter)
	}

	// Independent IPs have independent windows.
	if allowed, _, _ := rl.Allow("10.0.0.2"); !allowed {
		t.Fatal("other IP should be unaffected")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := &RateLimiter{
		windows:      make(map[string]*ipWindow),
		maxRequests:  1,
		windowPeriod: time.Minute,
	}

	rl.Allow("10.0.0.1")
	if allowed, _, _ := rl.Allow("10.0.0.1"); allowed {
		t.Fatal("second request should be blocked")
	}

	// Age the window past its period.
	rl.mu.Lock()
	rl.windows["10.0.0.1"].FirstAt = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	if allowed, _, _ := rl.Allow("10.0.0.1"); !allowed {
		t.Fatal("request should be allowed after window reset")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := &RateLimiter{
		windows:      make(map[string]*ipWindow),
		maxRequests:  1,
		windowPeriod: time.Minute,
	}
	router := gin.New()
	router.GET("/data", RateLimitMiddleware(rl), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/data", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/data", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}
