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

// AccountRepository provides data access methods for the account table.
// Sync reconciliation writes accounts inside per-account transactions, so the
// repository can be rebound to a transaction with WithTx.
type AccountRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewAccountRepository creates a new AccountRepository with the provided database connection.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *AccountRepository) getQuerier() interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// UpsertAccount inserts or updates an account keyed on
// (user_id, external_account_id) and returns the stored row. Existing rows
// keep their ID and created_at; everything else is replaced by the fetched
// snapshot.
func (r *AccountRepository) UpsertAccount(ctx context.Context, account model.Account) (model.Account, error) {
	now := time.Now().UTC()

	query := `
		SELECT id, created_at
		FROM account
		WHERE user_id = ? AND external_account_id = ?
	`

	var existingID, createdAtStr string
	err := r.getQuerier().QueryRowContext(ctx, query, account.UserID, account.ExternalAccountID).Scan(
		&existingID,
		&createdAtStr,
	)

	switch {
	case err == sql.ErrNoRows:
		account.ID = uuid.New().String()
		account.CreatedAt = now
		account.UpdatedAt = now

		insertQuery := `
			INSERT INTO account (id, user_id, linked_item_id, external_account_id, name, type, institution, total_value, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.getQuerier().ExecContext(ctx, insertQuery,
			account.ID,
			account.UserID,
			account.LinkedItemID,
			account.ExternalAccountID,
			account.Name,
			account.Type,
			account.Institution,
			account.TotalValue,
			account.CreatedAt.Format(time.RFC3339),
			account.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return model.Account{}, fmt.Errorf("failed to insert account: %w", err)
		}

	case err != nil:
		return model.Account{}, fmt.Errorf("failed to query account table: %w", err)

	default:
		account.ID = existingID
		account.UpdatedAt = now
		if account.CreatedAt, err = ParseTime(createdAtStr); err != nil {
			return model.Account{}, err
		}

		updateQuery := `
			UPDATE account
			SET linked_item_id = ?, name = ?, type = ?, institution = ?, total_value = ?, updated_at = ?
			WHERE id = ?
		`
		_, err := r.getQuerier().ExecContext(ctx, updateQuery,
			account.LinkedItemID,
			account.Name,
			account.Type,
			account.Institution,
			account.TotalValue,
			account.UpdatedAt.Format(time.RFC3339),
			account.ID,
		)
		if err != nil {
			return model.Account{}, fmt.Errorf("failed to update account: %w", err)
		}
	}

	return account, nil
}

// GetByID retrieves one account scoped to its owner.
func (r *AccountRepository) GetByID(userID, accountID string) (model.Account, error) {
	query := `
		SELECT id, user_id, linked_item_id, external_account_id, name, type, institution, total_value, created_at, updated_at
		FROM account
		WHERE id = ? AND user_id = ?
	`

	var account model.Account
	var createdAtStr, updatedAtStr string

	err := r.getQuerier().QueryRow(query, accountID, userID).Scan(
		&account.ID,
		&account.UserID,
		&account.LinkedItemID,
		&account.ExternalAccountID,
		&account.Name,
		&account.Type,
		&account.Institution,
		&account.TotalValue,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return model.Account{}, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}

	if account.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.Account{}, err
	}
	if account.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
		return model.Account{}, err
	}

	return account, nil
}

// ListAccounts retrieves all accounts owned by a user, grouped by institution
// for a stable presentation order. Returns an empty slice when the user has
// no synced accounts.
func (r *AccountRepository) ListAccounts(userID string) ([]model.Account, error) {
	query := `
		SELECT id, user_id, linked_item_id, external_account_id, name, type, institution, total_value, created_at, updated_at
		FROM account
		WHERE user_id = ?
		ORDER BY institution ASC, name ASC
	`

	rows, err := r.getQuerier().Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account table: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}

	for rows.Next() {
		var account model.Account
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.LinkedItemID,
			&account.ExternalAccountID,
			&account.Name,
			&account.Type,
			&account.Institution,
			&account.TotalValue,
			&createdAtStr,
			&updatedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account table results: %w", err)
		}

		if account.CreatedAt, err = ParseTime(createdAtStr); err != nil {
			return nil, err
		}
		if account.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
			return nil, err
		}

		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account table: %w", err)
	}

	return accounts, nil
}
