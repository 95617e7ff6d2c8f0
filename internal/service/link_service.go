package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/plaid"
	"github.com/portview/portfolio-backend/internal/repository"
)

// defaultSessionTTL bounds a link attempt's lifetime when the aggregator
// does not report an expiration for the session token.
const defaultSessionTTL = 30 * time.Minute

// LinkService drives the account-linking handshake: open a link session,
// trade the resulting public token for a durable credential, and run the
// first sync. Each session is tracked as a link attempt so a public token
// can be redeemed exactly once.
type LinkService struct {
	plaidClient       plaid.Client
	credentialService *CredentialService
	syncService       *SyncService
	attemptRepo       *repository.LinkAttemptRepository
	environment       string
}

// NewLinkService creates a new LinkService with the provided dependencies.
// environment selects aggregator behavior; sandbox-only operations refuse to
// run under anything else.
func NewLinkService(
	plaidClient plaid.Client,
	credentialService *CredentialService,
	syncService *SyncService,
	attemptRepo *repository.LinkAttemptRepository,
	environment string,
) *LinkService {
	return &LinkService{
		plaidClient:       plaidClient,
		credentialService: credentialService,
		syncService:       syncService,
		attemptRepo:       attemptRepo,
		environment:       environment,
	}
}

// StartSession opens a new link session for the user and records the attempt
// that the eventual token exchange will consume. Starting a new session does
// not cancel earlier ones; the exchange claims the newest active attempt.
//
// Parameters:
//   - ctx: context for the aggregator call
//   - userID: owner of the session
//
// Returns the session token for the client-side link flow and its expiry.
func (s *LinkService) StartSession(ctx context.Context, userID string) (model.LinkSession, error) {
	var token plaid.LinkToken

	backoff := retry.WithMaxRetries(syncFetchRetries, retry.NewExponential(syncRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		token, err = s.plaidClient.CreateLinkToken(ctx, userID)
		return markRetryable(err)
	})
	if err != nil {
		return model.LinkSession{}, err
	}

	expiry := token.Expiration
	if expiry.IsZero() {
		expiry = time.Now().UTC().Add(defaultSessionTTL)
	}

	if _, err := s.attemptRepo.Insert(ctx, userID, expiry); err != nil {
		return model.LinkSession{}, err
	}

	return model.LinkSession{SessionToken: token.Token, Expiry: expiry}, nil
}

// CompleteExchange redeems a public token from a finished link flow. It
// claims the user's newest active attempt, trades the token for an access
// token, stores the encrypted credential, and runs the first sync.
//
// The claim happens before the aggregator call, so replaying the same public
// token finds no active attempt and fails without touching the aggregator. A
// failed first sync does not fail the link; the item is stored and its result
// carries the error entries.
func (s *LinkService) CompleteExchange(ctx context.Context, userID, publicToken string) (model.LinkedItem, model.SyncResult, error) {
	attempt, err := s.attemptRepo.ClaimNewestActive(ctx, userID)
	if err != nil {
		return model.LinkedItem{}, model.SyncResult{}, err
	}

	exchange, err := s.plaidClient.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		s.failAttempt(ctx, attempt.ID, err)
		return model.LinkedItem{}, model.SyncResult{}, err
	}

	item, err := s.credentialService.Save(ctx, userID, exchange.ItemID, exchange.InstitutionName, exchange.AccessToken)
	if err != nil {
		s.failAttempt(ctx, attempt.ID, err)
		return model.LinkedItem{}, model.SyncResult{}, err
	}

	result, err := s.syncService.Sync(ctx, userID, item.ID)
	if err != nil {
		// The credential is stored and usable, so the link still succeeds.
		// The caller sees the failure in the result and can sync again later.
		log.Printf("Initial sync for item %s failed: %v", item.ID, err)
		result = model.SyncResult{Errors: []model.SyncError{{
			Kind:    apperrors.Kind(err),
			Message: "initial sync failed",
		}}}
	}

	if err := s.attemptRepo.MarkState(ctx, attempt.ID, model.LinkAttemptSynced, ""); err != nil {
		log.Printf("Failed to mark link attempt %s synced: %v", attempt.ID, err)
	}

	return item, result, nil
}

// Cancel abandons the user's newest active link attempt. Cancelling with no
// active attempt is a no-op.
func (s *LinkService) Cancel(ctx context.Context, userID string) error {
	if _, err := s.attemptRepo.CancelNewestActive(ctx, userID); err != nil {
		return err
	}
	return nil
}

// ExpireStaleAttempts fails every attempt whose session outlived its expiry.
// Returns the number of attempts expired.
func (s *LinkService) ExpireStaleAttempts(ctx context.Context) (int64, error) {
	return s.attemptRepo.ExpireStale(ctx, time.Now().UTC())
}

// SandboxLink links a sandbox institution end to end without a client-side
// flow: mint a public token directly, then run the normal exchange path.
// query optionally narrows the institution by name; institutionID pins one
// explicitly and wins over query.
//
// Refused outside the sandbox environment.
func (s *LinkService) SandboxLink(ctx context.Context, userID, query, institutionID string) (model.LinkedItem, model.SyncResult, error) {
	if s.environment != "sandbox" {
		return model.LinkedItem{}, model.SyncResult{}, fmt.Errorf("%w: sandbox linking is disabled in the %s environment", apperrors.ErrAggregatorRejected, s.environment)
	}

	if institutionID == "" && query != "" {
		institutions, err := s.plaidClient.SearchInstitutions(ctx, query)
		if err != nil {
			return model.LinkedItem{}, model.SyncResult{}, err
		}
		if len(institutions) == 0 {
			return model.LinkedItem{}, model.SyncResult{}, fmt.Errorf("%w: no institution matches %q", apperrors.ErrAggregatorRejected, query)
		}
		institutionID = institutions[0].InstitutionID
	}

	publicToken, err := s.plaidClient.SandboxCreatePublicToken(ctx, institutionID)
	if err != nil {
		return model.LinkedItem{}, model.SyncResult{}, err
	}

	// The exchange path claims an attempt, so mint one for it to consume.
	if _, err := s.attemptRepo.Insert(ctx, userID, time.Now().UTC().Add(defaultSessionTTL)); err != nil {
		return model.LinkedItem{}, model.SyncResult{}, err
	}

	return s.CompleteExchange(ctx, userID, publicToken)
}

func (s *LinkService) failAttempt(ctx context.Context, attemptID string, cause error) {
	reason := apperrors.Kind(cause)
	if err := s.attemptRepo.MarkState(ctx, attemptID, model.LinkAttemptFailed, reason); err != nil {
		log.Printf("Failed to mark link attempt %s failed: %v", attemptID, err)
	}
}
