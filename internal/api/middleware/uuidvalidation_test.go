package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/testutil"
)

func TestValidateUUIDParam(t *testing.T) {
	run := func(t *testing.T, params map[string]string) (*httptest.ResponseRecorder, bool) {
		t.Helper()

		handlerCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		})

		mw := middleware.ValidateUUIDParam("linkedItemId")(next)

		req := testutil.NewRequestWithURLParams(http.MethodPost, "/test", params)
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)

		return w, handlerCalled
	}

	t.Run("passes through valid UUID", func(t *testing.T) {
		w, handlerCalled := run(t, map[string]string{"linkedItemId": "550e8400-e29b-41d4-a716-446655440000"})

		if !handlerCalled {
			t.Error("Expected next handler to be called")
		}
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})

	t.Run("returns 400 for invalid UUID", func(t *testing.T) {
		w, handlerCalled := run(t, map[string]string{"linkedItemId": "invalid-id"})

		if handlerCalled {
			t.Error("Expected next handler NOT to be called")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("returns 400 for missing parameter", func(t *testing.T) {
		w, handlerCalled := run(t, nil)

		if handlerCalled {
			t.Error("Expected next handler NOT to be called")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}
