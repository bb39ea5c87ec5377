package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newGuardedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", JWTAuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func signToken(t *testing.T, key string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"username": "operator",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func getGuarded(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// An empty signing secret means any client can mint a passing token, so
// the middleware must refuse to serve at all rather than verify against
// the empty key.
func TestJWTAuthEmptySecretRejectsEverything(t *testing.T) {
	router := newGuardedRouter("")

	// A token signed with the empty key would verify against an empty
	// secret; it must still be rejected.
	w := getGuarded(router, signToken(t, ""))
	if w.Code == http.StatusOK {
		t.Fatal("empty-key token must not reach the handler")
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unconfigured secret, got %d", w.Code)
	}

	if w := getGuarded(router, ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without token too, got %d", w.Code)
	}
}

func TestJWTAuthValidToken(t *testing.T) {
	router := newGuardedRouter("real-secret")

	if w := getGuarded(router, signToken(t, "real-secret")); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJWTAuthRejectsWrongKey(t *testing.T) {
	router := newGuardedRouter("real-secret")

	if w := getGuarded(router, signToken(t, "other-secret")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token signed with wrong key, got %d", w.Code)
	}
	if w := getGuarded(router, signToken(t, "")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for empty-key token against real secret, got %d", w.Code)
	}
	if w := getGuarded(router, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
	router := newGuardedRouter("real-secret")

	claims := jwt.MapClaims{
		"username": "operator",
		"exp":      time.Now().Add(-time.Hour).Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("real-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if w := getGuarded(router, expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", w.Code)
	}
}
