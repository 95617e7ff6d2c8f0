package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/testutil"
)

func setupPortfolioHandler(t *testing.T) (*sql.DB, *PortfolioHandler) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	return db, NewPortfolioHandler(testutil.NewTestPortfolioService(t, db))
}

func TestPortfolioHandler_Portfolio(t *testing.T) {
	t.Run("returns accounts with nested holdings", func(t *testing.T) {
		db, handler := setupPortfolioHandler(t)

		account := testutil.NewAccount("user-1").WithName("Brokerage").Build(t, db)
		testutil.NewHolding(account.ID).WithSymbol("AAPL").Build(t, db)
		testutil.NewHolding(account.ID).WithSymbol("VTI").Build(t, db)
		testutil.NewAccount("user-2").Build(t, db)

		req := newAuthRequest(t, http.MethodGet, "/api/portfolio", "user-1", nil, nil)
		w := httptest.NewRecorder()

		handler.Portfolio(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var portfolio []model.PortfolioAccount
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&portfolio)

		if len(portfolio) != 1 {
			t.Fatalf("Expected 1 account, got %d", len(portfolio))
		}
		if portfolio[0].Name != "Brokerage" {
			t.Errorf("name = %q, want 'Brokerage'", portfolio[0].Name)
		}
		if len(portfolio[0].Holdings) != 2 {
			t.Errorf("Expected 2 holdings, got %d", len(portfolio[0].Holdings))
		}
	})

	t.Run("empty portfolio serializes as an empty list", func(t *testing.T) {
		_, handler := setupPortfolioHandler(t)

		req := newAuthRequest(t, http.MethodGet, "/api/portfolio", "user-1", nil, nil)
		w := httptest.NewRecorder()

		handler.Portfolio(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if body := w.Body.String(); body == "null\n" || body == "null" {
			t.Error("Expected an empty list, got null")
		}
	})
}

func TestPortfolioHandler_Account(t *testing.T) {
	accountRequest := func(t *testing.T, userID, accountID string) *http.Request {
		t.Helper()
		return newAuthRequest(t, http.MethodGet, "/api/portfolio/"+accountID, userID, nil,
			map[string]string{"accountId": accountID})
	}

	t.Run("returns the account with its holdings", func(t *testing.T) {
		db, handler := setupPortfolioHandler(t)

		account := testutil.NewAccount("user-1").Build(t, db)
		testutil.NewHolding(account.ID).WithSymbol("AAPL").Build(t, db)

		w := httptest.NewRecorder()
		handler.Account(w, accountRequest(t, "user-1", account.ID))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var got model.PortfolioAccount
		//nolint:errcheck // Test assertion - decode failure would cause test to fail anyway
		json.NewDecoder(w.Body).Decode(&got)

		if got.ID != account.ID {
			t.Errorf("id = %q, want %q", got.ID, account.ID)
		}
		if len(got.Holdings) != 1 || got.Holdings[0].Symbol != "AAPL" {
			t.Errorf("holdings = %v, want one AAPL holding", got.Holdings)
		}
	})

	t.Run("unknown account returns 404", func(t *testing.T) {
		_, handler := setupPortfolioHandler(t)

		w := httptest.NewRecorder()
		handler.Account(w, accountRequest(t, "user-1", testutil.MakeID()))

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
		assertErrorKind(t, w.Body.String(), apperrors.KindNotFound)
	})

	t.Run("another user's account returns 404", func(t *testing.T) {
		db, handler := setupPortfolioHandler(t)

		account := testutil.NewAccount("user-2").Build(t, db)

		w := httptest.NewRecorder()
		handler.Account(w, accountRequest(t, "user-1", account.ID))

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}
