package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/testutil"
)

//nolint:gocyclo // Comprehensive integration test with multiple subtests
func TestAuthMiddleware(t *testing.T) {
	testSecret := "test-jwt-secret-12345"
	os.Setenv("JWT_SECRET", testSecret)
	defer os.Unsetenv("JWT_SECRET")

	newHandler := func(gotUserID *string) http.Handler {
		return middleware.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*gotUserID = middleware.UserID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("rejects request without Authorization header", func(t *testing.T) {
		var gotUserID string
		req := httptest.NewRequest(http.MethodPost, "/api/link/session", nil)
		w := httptest.NewRecorder()

		newHandler(&gotUserID).ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d: %s", w.Code, w.Body.String())
		}
		if gotUserID != "" {
			t.Error("Expected next handler NOT to be called")
		}
	})

	t.Run("rejects non-bearer scheme", func(t *testing.T) {
		var gotUserID string
		req := httptest.NewRequest(http.MethodPost, "/api/link/session", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()

		newHandler(&gotUserID).ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("rejects malformed token", func(t *testing.T) {
		var gotUserID string
		req := httptest.NewRequest(http.MethodPost, "/api/link/session", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()

		newHandler(&gotUserID).ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("rejects token signed with a different key", func(t *testing.T) {
		var gotUserID string
		token := testutil.SignTestToken(t, "some-other-secret", "user-1")

		req := httptest.NewRequest(http.MethodPost, "/api/link/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		newHandler(&gotUserID).ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d: %s", w.Code, w.Body.String())
		}
		if gotUserID != "" {
			t.Error("Expected next handler NOT to be called")
		}
	})

	t.Run("accepts valid token and exposes the subject as user ID", func(t *testing.T) {
		var gotUserID string
		token := testutil.SignTestToken(t, testSecret, "user-1")

		req := httptest.NewRequest(http.MethodPost, "/api/link/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		newHandler(&gotUserID).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if gotUserID != "user-1" {
			t.Errorf("Expected user ID 'user-1', got %q", gotUserID)
		}
	})

	t.Run("returns 500 when the secret is not configured", func(t *testing.T) {
		os.Unsetenv("JWT_SECRET")
		defer os.Setenv("JWT_SECRET", testSecret)

		var gotUserID string
		req := httptest.NewRequest(http.MethodPost, "/api/link/session", nil)
		req.Header.Set("Authorization", "Bearer "+testutil.SignTestToken(t, testSecret, "user-1"))
		w := httptest.NewRecorder()

		newHandler(&gotUserID).ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d: %s", w.Code, w.Body.String())
		}
	})
}
