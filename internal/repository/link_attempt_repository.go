package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
)

// LinkAttemptRepository provides data access methods for the link_attempt
// table, the persisted state machine of the linking flow. State transitions
// are conditional updates so that concurrent completions cannot claim the
// same attempt twice.
type LinkAttemptRepository struct {
	db *sql.DB
}

// NewLinkAttemptRepository creates a new LinkAttemptRepository with the provided database connection.
func NewLinkAttemptRepository(db *sql.DB) *LinkAttemptRepository {
	return &LinkAttemptRepository{db: db}
}

// Insert creates a new attempt in awaiting_completion with the given expiry.
func (s *LinkAttemptRepository) Insert(ctx context.Context, userID string, expiresAt time.Time) (model.LinkAttempt, error) {
	now := time.Now().UTC()
	attempt := model.LinkAttempt{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     model.LinkAttemptAwaitingCompletion,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO link_attempt (id, user_id, state, reason, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.UserID,
		attempt.State,
		attempt.Reason,
		attempt.ExpiresAt.Format(time.RFC3339),
		attempt.CreatedAt.Format(time.RFC3339),
		attempt.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to insert link_attempt: %w", err)
	}

	return attempt, nil
}

// ClaimNewestActive atomically moves the user's newest unexpired
// awaiting_completion attempt to exchanging and returns it. When the newest
// awaiting attempt exists but its session has expired, it is failed and
// apperrors.ErrInvalidToken is returned: the flow must restart. When no
// awaiting attempt exists at all (never started, already consumed, or
// cancelled) it returns apperrors.ErrNoActiveAttempt. The conditional update
// inside one transaction is what rejects replayed completions: of two racing
// claims, exactly one sees rows affected.
func (s *LinkAttemptRepository) ClaimNewestActive(ctx context.Context, userID string) (model.LinkAttempt, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, user_id, state, reason, expires_at, created_at, updated_at
		FROM link_attempt
		WHERE user_id = ? AND state = ? AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var attempt model.LinkAttempt
	var expiresAtStr, createdAtStr, updatedAtStr string

	err = tx.QueryRowContext(ctx, selectQuery, userID, model.LinkAttemptAwaitingCompletion, now.Format(time.RFC3339)).Scan(
		&attempt.ID,
		&attempt.UserID,
		&attempt.State,
		&attempt.Reason,
		&expiresAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return model.LinkAttempt{}, s.failExpired(ctx, tx, userID, now)
	}
	if err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to query link_attempt table: %w", err)
	}

	updateQuery := `
		UPDATE link_attempt
		SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`

	result, err := tx.ExecContext(ctx, updateQuery,
		model.LinkAttemptExchanging,
		now.Format(time.RFC3339),
		attempt.ID,
		model.LinkAttemptAwaitingCompletion,
	)
	if err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to claim link_attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost the race to a concurrent claim.
		return model.LinkAttempt{}, apperrors.ErrNoActiveAttempt
	}

	if err := tx.Commit(); err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to commit claim: %w", err)
	}

	attempt.State = model.LinkAttemptExchanging
	attempt.UpdatedAt = now

	if attempt.ExpiresAt, err = ParseTime(expiresAtStr); err != nil {
		return model.LinkAttempt{}, err
	}
	if attempt.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.LinkAttempt{}, err
	}

	return attempt, nil
}

// failExpired classifies a claim that found no unexpired awaiting attempt.
// An awaiting attempt past its expiry is moved to failed and reported as an
// invalid token; no awaiting attempt at all means the session was consumed,
// cancelled, or never started.
func (s *LinkAttemptRepository) failExpired(ctx context.Context, tx *sql.Tx, userID string, now time.Time) error {
	query := `
		SELECT id FROM link_attempt
		WHERE user_id = ? AND state = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var staleID string
	err := tx.QueryRowContext(ctx, query, userID, model.LinkAttemptAwaitingCompletion).Scan(&staleID)
	if err == sql.ErrNoRows {
		return apperrors.ErrNoActiveAttempt
	}
	if err != nil {
		return fmt.Errorf("failed to query link_attempt table: %w", err)
	}

	updateQuery := `
		UPDATE link_attempt
		SET state = ?, reason = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`

	if _, err := tx.ExecContext(ctx, updateQuery,
		model.LinkAttemptFailed,
		"link session expired",
		now.Format(time.RFC3339),
		staleID,
		model.LinkAttemptAwaitingCompletion,
	); err != nil {
		return fmt.Errorf("failed to expire link_attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit expiry: %w", err)
	}

	return fmt.Errorf("%w: link session expired", apperrors.ErrInvalidToken)
}

// MarkState moves an attempt to a new state with an optional reason.
func (s *LinkAttemptRepository) MarkState(ctx context.Context, attemptID, state, reason string) error {
	query := `
		UPDATE link_attempt
		SET state = ?, reason = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		state,
		reason,
		time.Now().UTC().Format(time.RFC3339),
		attemptID,
	)
	if err != nil {
		return fmt.Errorf("failed to update link_attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrNoActiveAttempt
	}

	return nil
}

// CancelNewestActive moves the user's newest active attempt to cancelled.
// Returns the number of attempts cancelled; zero is not an error, so
// cancelling with nothing in flight stays idempotent.
func (s *LinkAttemptRepository) CancelNewestActive(ctx context.Context, userID string) (int64, error) {
	now := time.Now().UTC()

	query := `
		UPDATE link_attempt
		SET state = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM link_attempt
			WHERE user_id = ? AND state = ? AND expires_at > ?
			ORDER BY created_at DESC
			LIMIT 1
		)
	`

	result, err := s.db.ExecContext(ctx, query,
		model.LinkAttemptCancelled,
		now.Format(time.RFC3339),
		userID,
		model.LinkAttemptAwaitingCompletion,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel link_attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ExpireStale fails every awaiting_completion attempt whose expiry has
// passed. Returns the number of attempts swept.
func (s *LinkAttemptRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE link_attempt
		SET state = ?, reason = ?, updated_at = ?
		WHERE state = ? AND expires_at <= ?
	`

	result, err := s.db.ExecContext(ctx, query,
		model.LinkAttemptFailed,
		"link session expired",
		now.UTC().Format(time.RFC3339),
		model.LinkAttemptAwaitingCompletion,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire link_attempts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// GetByID retrieves one attempt scoped to its owner.
func (s *LinkAttemptRepository) GetByID(userID, attemptID string) (model.LinkAttempt, error) {
	query := `
		SELECT id, user_id, state, reason, expires_at, created_at, updated_at
		FROM link_attempt
		WHERE id = ? AND user_id = ?
	`

	var attempt model.LinkAttempt
	var expiresAtStr, createdAtStr, updatedAtStr string

	err := s.db.QueryRow(query, attemptID, userID).Scan(
		&attempt.ID,
		&attempt.UserID,
		&attempt.State,
		&attempt.Reason,
		&expiresAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return model.LinkAttempt{}, apperrors.ErrNoActiveAttempt
	}
	if err != nil {
		return model.LinkAttempt{}, fmt.Errorf("failed to query link_attempt: %w", err)
	}

	if attempt.ExpiresAt, err = ParseTime(expiresAtStr); err != nil {
		return model.LinkAttempt{}, err
	}
	if attempt.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.LinkAttempt{}, err
	}
	if attempt.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
		return model.LinkAttempt{}, err
	}

	return attempt, nil
}
