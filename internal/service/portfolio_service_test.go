package service_test

import (
	"errors"
	"testing"

	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/testutil"
)

func TestPortfolioService_GetPortfolio(t *testing.T) {
	db := testutil.SetupTestDB(t)
	portfolioService := testutil.NewTestPortfolioService(t, db)

	t.Run("returns empty portfolio for user with no accounts", func(t *testing.T) {
		portfolio, err := portfolioService.GetPortfolio("user-empty")
		if err != nil {
			t.Fatalf("GetPortfolio() failed: %v", err)
		}
		if len(portfolio) != 0 {
			t.Errorf("GetPortfolio() = %d accounts, want 0", len(portfolio))
		}
	})

	t.Run("nests holdings under their accounts", func(t *testing.T) {
		brokerage := testutil.NewAccount("user-1").WithName("Brokerage").Build(t, db)
		ira := testutil.NewAccount("user-1").WithName("Retirement").Build(t, db)
		testutil.NewHolding(brokerage.ID).WithSymbol("AAPL").Build(t, db)
		testutil.NewHolding(brokerage.ID).WithSymbol("VTI").Build(t, db)

		portfolio, err := portfolioService.GetPortfolio("user-1")
		if err != nil {
			t.Fatalf("GetPortfolio() failed: %v", err)
		}
		if len(portfolio) != 2 {
			t.Fatalf("GetPortfolio() = %d accounts, want 2", len(portfolio))
		}

		for _, entry := range portfolio {
			switch entry.ID {
			case brokerage.ID:
				if len(entry.Holdings) != 2 {
					t.Errorf("Brokerage holdings = %d, want 2", len(entry.Holdings))
				}
			case ira.ID:
				if entry.Holdings == nil {
					t.Error("Empty account returned nil holdings, want empty list")
				}
				if len(entry.Holdings) != 0 {
					t.Errorf("Retirement holdings = %d, want 0", len(entry.Holdings))
				}
			default:
				t.Errorf("Unexpected account %s in portfolio", entry.ID)
			}
		}
	})

	t.Run("never returns another user's accounts", func(t *testing.T) {
		other := testutil.NewAccount("user-2").Build(t, db)
		testutil.NewHolding(other.ID).Build(t, db)

		portfolio, err := portfolioService.GetPortfolio("user-1")
		if err != nil {
			t.Fatalf("GetPortfolio() failed: %v", err)
		}
		for _, entry := range portfolio {
			if entry.ID == other.ID {
				t.Error("Portfolio leaked another user's account")
			}
		}
	})
}

func TestPortfolioService_GetAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	portfolioService := testutil.NewTestPortfolioService(t, db)

	account := testutil.NewAccount("user-1").WithName("Brokerage").Build(t, db)
	holding := testutil.NewHolding(account.ID).WithSymbol("AAPL").Build(t, db)

	t.Run("returns the account with its holdings", func(t *testing.T) {
		got, err := portfolioService.GetAccount("user-1", account.ID)
		if err != nil {
			t.Fatalf("GetAccount() failed: %v", err)
		}
		if got.Name != "Brokerage" {
			t.Errorf("Name = %q, want 'Brokerage'", got.Name)
		}
		if len(got.Holdings) != 1 || got.Holdings[0].Symbol != holding.Symbol {
			t.Errorf("Holdings = %v, want the single AAPL position", got.Holdings)
		}
	})

	t.Run("reports foreign accounts as not found", func(t *testing.T) {
		_, err := portfolioService.GetAccount("user-2", account.ID)
		if !errors.Is(err, apperrors.ErrAccountNotFound) {
			t.Errorf("GetAccount() by another user = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("reports unknown accounts as not found", func(t *testing.T) {
		_, err := portfolioService.GetAccount("user-1", testutil.MakeID())
		if !errors.Is(err, apperrors.ErrAccountNotFound) {
			t.Errorf("GetAccount() = %v, want ErrAccountNotFound", err)
		}
	})
}
