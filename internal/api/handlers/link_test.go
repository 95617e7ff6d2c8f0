package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/testutil"
)

// newAuthRequest builds a JSON request carrying an authenticated user and
// optional chi URL parameters, the shape handlers see behind the middleware
// stack.
func newAuthRequest(t *testing.T, method, path, userID string, body any, params map[string]string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))

	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for key, value := range params {
			rctx.URLParams.Add(key, value)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	return req
}

func setupLinkHandler(t *testing.T) (*sql.DB, *testutil.MockPlaidClient, *LinkHandler) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	v := testutil.NewTestVault(t)
	mock := testutil.NewMockPlaidClient()
	linkService := testutil.NewTestLinkService(t, db, v, mock)
	credentialService := testutil.NewTestCredentialService(t, db, v, mock)

	return db, mock, NewLinkHandler(linkService, credentialService)
}

func TestLinkHandler_StartSession(t *testing.T) {
	t.Run("returns the session token and expiry", func(t *testing.T) {
		_, mock, handler := setupLinkHandler(t)

		req := newAuthRequest(t, http.MethodPost, "/api/link/session", "user-1", nil, nil)
		w := httptest.NewRecorder()

		handler.StartSession(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var session model.LinkSession
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&session)

		if session.SessionToken != mock.MockLinkToken.Token {
			t.Errorf("sessionToken = %q, want the aggregator's token", session.SessionToken)
		}
		if session.Expiry.IsZero() {
			t.Error("Expected expiry to be set")
		}
	})

	t.Run("maps aggregator unavailability to 502", func(t *testing.T) {
		_, mock, handler := setupLinkHandler(t)
		mock.LinkTokenErr = fmt.Errorf("%w: http 503", apperrors.ErrAggregatorUnavailable)

		req := newAuthRequest(t, http.MethodPost, "/api/link/session", "user-1", nil, nil)
		w := httptest.NewRecorder()

		handler.StartSession(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("Expected 502, got %d: %s", w.Code, w.Body.String())
		}
		assertErrorKind(t, w.Body.String(), apperrors.KindAggregatorUnavailable)
	})
}

func TestLinkHandler_ExchangeToken(t *testing.T) {
	startSession := func(t *testing.T, handler *LinkHandler, userID string) {
		t.Helper()
		req := newAuthRequest(t, http.MethodPost, "/api/link/session", userID, nil, nil)
		w := httptest.NewRecorder()
		handler.StartSession(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("StartSession failed: %d %s", w.Code, w.Body.String())
		}
	}

	t.Run("stores the item and reports the initial sync", func(t *testing.T) {
		db, _, handler := setupLinkHandler(t)
		startSession(t, handler, "user-1")

		body := map[string]string{"publicToken": "public-sandbox-token"}
		req := newAuthRequest(t, http.MethodPost, "/api/link/exchange", "user-1", body, nil)
		w := httptest.NewRecorder()

		handler.ExchangeToken(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var result LinkResultResponse
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&result)

		if result.Item.InstitutionName != "First Platypus Bank" {
			t.Errorf("institutionName = %q, want 'First Platypus Bank'", result.Item.InstitutionName)
		}
		if result.Sync.AccountsUpserted != 2 || result.Sync.HoldingsUpserted != 3 {
			t.Errorf("sync = (%d, %d), want (2, 3)", result.Sync.AccountsUpserted, result.Sync.HoldingsUpserted)
		}
		testutil.AssertRowCount(t, db, "linked_item", 1)
	})

	t.Run("rejects a missing public token", func(t *testing.T) {
		_, _, handler := setupLinkHandler(t)

		body := map[string]string{"publicToken": "  "}
		req := newAuthRequest(t, http.MethodPost, "/api/link/exchange", "user-1", body, nil)
		w := httptest.NewRecorder()

		handler.ExchangeToken(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("rejects an invalid JSON body", func(t *testing.T) {
		_, _, handler := setupLinkHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/link/exchange", strings.NewReader("{not json"))
		req = req.WithContext(middleware.WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()

		handler.ExchangeToken(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("replayed completion returns 409 and keeps one item", func(t *testing.T) {
		db, _, handler := setupLinkHandler(t)
		startSession(t, handler, "user-1")

		body := map[string]string{"publicToken": "public-sandbox-token"}

		first := httptest.NewRecorder()
		handler.ExchangeToken(first, newAuthRequest(t, http.MethodPost, "/api/link/exchange", "user-1", body, nil))
		if first.Code != http.StatusCreated {
			t.Fatalf("First exchange failed: %d %s", first.Code, first.Body.String())
		}

		second := httptest.NewRecorder()
		handler.ExchangeToken(second, newAuthRequest(t, http.MethodPost, "/api/link/exchange", "user-1", body, nil))

		if second.Code != http.StatusConflict {
			t.Errorf("Expected 409 for replay, got %d: %s", second.Code, second.Body.String())
		}
		assertErrorKind(t, second.Body.String(), apperrors.KindInvalidToken)
		testutil.AssertRowCount(t, db, "linked_item", 1)
	})

	t.Run("expired session returns 400", func(t *testing.T) {
		db, _, handler := setupLinkHandler(t)
		testutil.NewLinkAttempt("user-1").Expired().Build(t, db)

		body := map[string]string{"publicToken": "public-sandbox-token"}
		req := newAuthRequest(t, http.MethodPost, "/api/link/exchange", "user-1", body, nil)
		w := httptest.NewRecorder()

		handler.ExchangeToken(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
		assertErrorKind(t, w.Body.String(), apperrors.KindInvalidToken)
	})

	t.Run("invalid token from the aggregator returns 400", func(t *testing.T) {
		db, mock, handler := setupLinkHandler(t)
		mock.WithExchangeError(fmt.Errorf("%w: INVALID_PUBLIC_TOKEN", apperrors.ErrInvalidToken))
		startSession(t, handler, "user-1")

		body := map[string]string{"publicToken": "public-expired-token"}
		req := newAuthRequest(t, http.MethodPost, "/api/link/exchange", "user-1", body, nil)
		w := httptest.NewRecorder()

		handler.ExchangeToken(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
		testutil.AssertRowCount(t, db, "linked_item", 0)
	})
}

func TestLinkHandler_CancelSession(t *testing.T) {
	_, _, handler := setupLinkHandler(t)

	req := newAuthRequest(t, http.MethodPost, "/api/link/cancel", "user-1", nil, nil)
	w := httptest.NewRecorder()

	handler.CancelSession(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLinkHandler_SandboxLink(t *testing.T) {
	t.Run("links the sandbox institution end to end", func(t *testing.T) {
		db, _, handler := setupLinkHandler(t)

		body := map[string]string{"institutionId": "ins_109508"}
		req := newAuthRequest(t, http.MethodPost, "/api/link/sandbox", "user-1", body, nil)
		w := httptest.NewRecorder()

		handler.SandboxLink(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
		}
		testutil.AssertRowCount(t, db, "linked_item", 1)
	})

	t.Run("rejects a malformed institution ID", func(t *testing.T) {
		_, _, handler := setupLinkHandler(t)

		body := map[string]string{"institutionId": "vanguard"}
		req := newAuthRequest(t, http.MethodPost, "/api/link/sandbox", "user-1", body, nil)
		w := httptest.NewRecorder()

		handler.SandboxLink(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestLinkHandler_ListItems(t *testing.T) {
	db, _, handler := setupLinkHandler(t)

	testutil.NewLinkedItem("user-1").WithInstitutionName("Vanguard").WithCredential("sealed-secret-material", 1).Build(t, db)
	testutil.NewLinkedItem("user-2").WithInstitutionName("Fidelity").Build(t, db)

	req := newAuthRequest(t, http.MethodGet, "/api/link/items", "user-1", nil, nil)
	w := httptest.NewRecorder()

	handler.ListItems(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var items []model.LinkedItem
	//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
	json.NewDecoder(w.Body).Decode(&items)

	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].InstitutionName != "Vanguard" {
		t.Errorf("institutionName = %q, want 'Vanguard'", items[0].InstitutionName)
	}
}

func TestLinkHandler_ListItems_NeverExposesCredentials(t *testing.T) {
	db, _, handler := setupLinkHandler(t)

	testutil.NewLinkedItem("user-1").WithCredential("sealed-secret-material", 1).Build(t, db)

	req := newAuthRequest(t, http.MethodGet, "/api/link/items", "user-1", nil, nil)
	w := httptest.NewRecorder()

	handler.ListItems(w, req)

	if strings.Contains(w.Body.String(), "sealed-secret-material") {
		t.Error("Response leaked stored credential material")
	}
}

func TestLinkHandler_DeleteItem(t *testing.T) {
	db, _, handler := setupLinkHandler(t)

	// The builder's default ciphertext is not decryptable, so the delete
	// also exercises the best-effort aggregator cleanup path.
	item := testutil.NewLinkedItem("user-1").Build(t, db)
	account := testutil.NewAccount("user-1").WithLinkedItem(item.ID).Build(t, db)
	testutil.NewHolding(account.ID).Build(t, db)

	deleteReq := func() *http.Request {
		return newAuthRequest(t, http.MethodDelete, "/api/link/items/"+item.ID, "user-1", nil,
			map[string]string{"linkedItemId": item.ID})
	}

	t.Run("cascades accounts and holdings", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.DeleteItem(w, deleteReq())

		if w.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
		}
		testutil.AssertRowCount(t, db, "linked_item", 0)
		testutil.AssertRowCount(t, db, "account", 0)
		testutil.AssertRowCount(t, db, "holding", 0)
	})

	t.Run("deleting an absent item still succeeds", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.DeleteItem(w, deleteReq())

		if w.Code != http.StatusNoContent {
			t.Errorf("Expected 204, got %d: %s", w.Code, w.Body.String())
		}
	})
}

// assertErrorKind decodes an error response body and checks its kind field.
func assertErrorKind(t *testing.T, body, wantKind string) {
	t.Helper()

	var response struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		t.Fatalf("Failed to decode error response %q: %v", body, err)
	}
	if response.Kind != wantKind {
		t.Errorf("Error kind = %q, want %q", response.Kind, wantKind)
	}
}
