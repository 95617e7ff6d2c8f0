package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/plaid"
	"github.com/portview/portfolio-backend/internal/repository"
)

// Fetch retry policy: up to three attempts total, exponential backoff from
// 500ms. Only transient aggregator failures are retried.
const (
	syncFetchRetries = 2
	syncRetryBase    = 500 * time.Millisecond
)

// SyncService reconciles the local portfolio store against the aggregator's
// current snapshot, one linked item at a time. Runs are serialized per
// (user, item) through an in-memory lock table; a second caller gets
// apperrors.ErrSyncInProgress instead of blocking. Within a run each external
// account is reconciled in its own SQL transaction, so one failing account
// group never poisons its siblings.
type SyncService struct {
	db                *sql.DB
	linkedItemRepo    *repository.LinkedItemRepository
	accountRepo       *repository.AccountRepository
	holdingRepo       *repository.HoldingRepository
	credentialService *CredentialService
	plaidClient       plaid.Client

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewSyncService creates a new SyncService with the provided dependencies.
func NewSyncService(
	db *sql.DB,
	linkedItemRepo *repository.LinkedItemRepository,
	accountRepo *repository.AccountRepository,
	holdingRepo *repository.HoldingRepository,
	credentialService *CredentialService,
	plaidClient plaid.Client,
) *SyncService {
	return &SyncService{
		db:                db,
		linkedItemRepo:    linkedItemRepo,
		accountRepo:       accountRepo,
		holdingRepo:       holdingRepo,
		credentialService: credentialService,
		plaidClient:       plaidClient,
		inFlight:          make(map[string]struct{}),
	}
}

// Sync fetches the current accounts and holdings for a linked item and
// reconciles the store against them. The fetched snapshot is authoritative:
// rows are upserted by external identity and holdings that disappeared
// upstream are deleted. Re-running against identical upstream data changes
// derived values not at all and row counts not at all.
//
// A fetch-phase failure aborts before any write; the run still returns a
// SyncResult whose error entries carry the failure kind, because the engine
// itself completed. Unknown items, foreign items, and undecryptable
// credentials are returned as Go errors instead.
func (s *SyncService) Sync(ctx context.Context, userID, linkedItemID string) (model.SyncResult, error) {
	item, err := s.linkedItemRepo.GetByID(userID, linkedItemID)
	if err != nil {
		return model.SyncResult{}, err
	}

	if !s.acquire(item.UserID, item.ItemID) {
		return model.SyncResult{}, apperrors.ErrSyncInProgress
	}
	defer s.release(item.UserID, item.ItemID)

	accessToken, err := s.credentialService.Load(userID, linkedItemID)
	if err != nil {
		return model.SyncResult{}, err
	}

	result := model.SyncResult{Errors: []model.SyncError{}}

	accounts, holdings, err := s.fetchSnapshot(ctx, accessToken)
	if err != nil {
		log.Printf("Sync fetch failed for item %s: %v", item.ID, err)
		result.Errors = append(result.Errors, model.SyncError{
			Kind:    apperrors.Kind(err),
			Message: "failed to fetch snapshot from aggregator",
		})
		return result, nil
	}

	securities := holdings.SecurityByID()

	holdingsByAccount := make(map[string][]plaid.Holding)
	for _, h := range holdings.Holdings {
		holdingsByAccount[h.AccountID] = append(holdingsByAccount[h.AccountID], h)
	}

	knownAccounts := make(map[string]bool, len(accounts))
	for _, acct := range accounts {
		knownAccounts[acct.AccountID] = true
	}

	// Holdings naming an account the accounts response does not contain are
	// skipped rather than guessed at.
	for accountID := range holdingsByAccount {
		if !knownAccounts[accountID] {
			result.Errors = append(result.Errors, model.SyncError{
				ExternalAccountID: accountID,
				Kind:              apperrors.KindInternal,
				Message:           "holdings reference an account missing from the accounts snapshot",
			})
		}
	}

	for _, acct := range accounts {
		upserted, err := s.syncAccount(ctx, item, acct, holdingsByAccount[acct.AccountID], securities)
		if err != nil {
			log.Printf("Sync of account %s failed: %v", acct.AccountID, err)
			result.Errors = append(result.Errors, model.SyncError{
				ExternalAccountID: acct.AccountID,
				Kind:              apperrors.Kind(err),
				Message:           "failed to reconcile account",
			})
			continue
		}
		result.AccountsUpserted++
		result.HoldingsUpserted += upserted
	}

	return result, nil
}

// acquire takes the per (user, item) sync slot. Returns false when a sync
// for the same pair is already running.
func (s *SyncService) acquire(userID, itemID string) bool {
	key := userID + "/" + itemID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *SyncService) release(userID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID+"/"+itemID)
}

// fetchSnapshot retrieves accounts and holdings under the retry policy. The
// whole pair is retried together so the two halves always come from the same
// attempt.
func (s *SyncService) fetchSnapshot(ctx context.Context, accessToken string) ([]plaid.Account, plaid.HoldingsResult, error) {
	var accounts []plaid.Account
	var holdings plaid.HoldingsResult

	backoff := retry.WithMaxRetries(syncFetchRetries, retry.NewExponential(syncRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		accounts, err = s.plaidClient.GetAccounts(ctx, accessToken)
		if err != nil {
			return markRetryable(err)
		}
		holdings, err = s.plaidClient.GetHoldings(ctx, accessToken)
		if err != nil {
			return markRetryable(err)
		}
		return nil
	})
	if err != nil {
		return nil, plaid.HoldingsResult{}, err
	}

	return accounts, holdings, nil
}

// markRetryable flags transient aggregator failures for the backoff loop.
// Terminal failures pass through untouched and stop it.
func markRetryable(err error) error {
	if errors.Is(err, apperrors.ErrAggregatorUnavailable) {
		return retry.RetryableError(err)
	}
	return err
}

// syncAccount reconciles one external account and its holdings inside a
// single transaction. On any failure the transaction rolls back and the
// account group is untouched.
func (s *SyncService) syncAccount(ctx context.Context, item model.LinkedItem, acct plaid.Account, group []plaid.Holding, securities map[string]plaid.Security) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	accountRepo := s.accountRepo.WithTx(tx)
	holdingRepo := s.holdingRepo.WithTx(tx)

	name := acct.Name
	if name == "" {
		name = acct.OfficialName
	}

	account := model.Account{
		UserID:            item.UserID,
		LinkedItemID:      &item.ID,
		ExternalAccountID: acct.AccountID,
		Name:              name,
		Type:              model.NormalizeAccountType(acct.Type, acct.Subtype),
		Institution:       item.InstitutionName,
		TotalValue:        round(acct.CurrentBalance()),
	}

	stored, err := accountRepo.UpsertAccount(ctx, account)
	if err != nil {
		return 0, err
	}

	keepSymbols := make([]string, 0, len(group))
	upserted := 0
	for _, h := range group {
		holding := buildHolding(stored.ID, h, securities[h.SecurityID])
		if _, err := holdingRepo.UpsertHolding(ctx, holding); err != nil {
			return 0, err
		}
		keepSymbols = append(keepSymbols, holding.Symbol)
		upserted++
	}

	if _, err := holdingRepo.DeleteHoldingsNotIn(ctx, stored.ID, keepSymbols); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit account sync: %w", err)
	}

	return upserted, nil
}

// buildHolding maps one aggregator holding to a storable row, recomputing
// every derived field from shares, average cost and price:
//
//	avg_cost      = cost_basis / quantity (rounded)
//	total_value   = round(shares * current_price)
//	gain_loss     = round(total_value - shares * avg_cost)
//	gain_loss_pct = round(gain_loss / (shares * avg_cost) * 100), 0 when costless
func buildHolding(accountID string, h plaid.Holding, sec plaid.Security) model.Holding {
	symbol := sec.TickerSymbol
	if symbol == "" {
		// Unnamed securities keep a stable identity via their aggregator ID.
		symbol = h.SecurityID
	}

	price := h.InstitutionPrice
	if price == 0 && sec.ClosePrice != nil {
		price = *sec.ClosePrice
	}

	avgCost := 0.0
	if h.CostBasis != nil && h.Quantity > 0 {
		avgCost = round(*h.CostBasis / h.Quantity)
	}

	totalValue := round(h.Quantity * price)
	cost := h.Quantity * avgCost
	gainLoss := round(totalValue - cost)

	gainLossPct := 0.0
	if cost > 0 {
		gainLossPct = round(gainLoss / cost * 100)
	}

	return model.Holding{
		AccountID:    accountID,
		Symbol:       symbol,
		SecurityName: sec.Name,
		Shares:       h.Quantity,
		AvgCost:      avgCost,
		CurrentPrice: price,
		TotalValue:   totalValue,
		GainLoss:     gainLoss,
		GainLossPct:  gainLossPct,
	}
}
