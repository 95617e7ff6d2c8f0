package service

import (
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/repository"
)

// PortfolioService serves the read side of the portfolio store: accounts with
// their holdings as the last completed sync left them. It never talks to the
// aggregator, so reads stay fast and available while syncs run or fail.
type PortfolioService struct {
	accountRepo *repository.AccountRepository
	holdingRepo *repository.HoldingRepository
}

// NewPortfolioService creates a new PortfolioService with the provided
// repository dependencies.
func NewPortfolioService(accountRepo *repository.AccountRepository, holdingRepo *repository.HoldingRepository) *PortfolioService {
	return &PortfolioService{
		accountRepo: accountRepo,
		holdingRepo: holdingRepo,
	}
}

// GetPortfolio retrieves every account owned by the user together with its
// holdings, ordered by institution and account name. Accounts without
// holdings appear with an empty holdings list, never a null one.
//
// Parameters:
//   - userID: owner whose portfolio to load
//
// Returns the accounts with holdings attached, or an error if loading fails.
func (s *PortfolioService) GetPortfolio(userID string) ([]model.PortfolioAccount, error) {
	accounts, err := s.accountRepo.ListAccounts(userID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.holdingRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string][]model.Holding)
	for _, holding := range holdings {
		byAccount[holding.AccountID] = append(byAccount[holding.AccountID], holding)
	}

	portfolio := make([]model.PortfolioAccount, 0, len(accounts))
	for _, account := range accounts {
		group := byAccount[account.ID]
		if group == nil {
			group = []model.Holding{}
		}
		portfolio = append(portfolio, model.PortfolioAccount{
			Account:  account,
			Holdings: group,
		})
	}

	return portfolio, nil
}

// GetAccount retrieves a single account with its holdings. Accounts owned by
// other users are reported as not found.
func (s *PortfolioService) GetAccount(userID, accountID string) (model.PortfolioAccount, error) {
	account, err := s.accountRepo.GetByID(userID, accountID)
	if err != nil {
		return model.PortfolioAccount{}, err
	}

	holdings, err := s.holdingRepo.ListByAccount(account.ID)
	if err != nil {
		return model.PortfolioAccount{}, err
	}

	return model.PortfolioAccount{Account: account, Holdings: holdings}, nil
}
