package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portview/portfolio-backend/internal/model"
)

// HoldingRepository provides data access methods for the holding table.
// Like AccountRepository it participates in the per-account sync transactions
// via WithTx.
type HoldingRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewHoldingRepository creates a new HoldingRepository with the provided database connection.
func NewHoldingRepository(db *sql.DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

func (r *HoldingRepository) WithTx(tx *sql.Tx) *HoldingRepository {
	return &HoldingRepository{
		db: r.db,
		tx: tx,
	}
}

func (r *HoldingRepository) getQuerier() interface {
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

// UpsertHolding inserts or updates a holding keyed on (account_id, symbol)
// and returns the stored row. Existing rows keep their ID and created_at.
// Derived fields arrive already computed; the repository stores what it is
// given.
func (r *HoldingRepository) UpsertHolding(ctx context.Context, holding model.Holding) (model.Holding, error) {
	now := time.Now().UTC()

	query := `
		SELECT id, created_at
		FROM holding
		WHERE account_id = ? AND symbol = ?
	`

	var existingID, createdAtStr string
	err := r.getQuerier().QueryRowContext(ctx, query, holding.AccountID, holding.Symbol).Scan(
		&existingID,
		&createdAtStr,
	)

	switch {
	case err == sql.ErrNoRows:
		holding.ID = uuid.New().String()
		holding.CreatedAt = now
		holding.UpdatedAt = now

		insertQuery := `
			INSERT INTO holding (id, account_id, symbol, security_name, shares, avg_cost, current_price, total_value, gain_loss, gain_loss_pct, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.getQuerier().ExecContext(ctx, insertQuery,
			holding.ID,
			holding.AccountID,
			holding.Symbol,
			holding.SecurityName,
			holding.Shares,
			holding.AvgCost,
			holding.CurrentPrice,
			holding.TotalValue,
			holding.GainLoss,
			holding.GainLossPct,
			holding.CreatedAt.Format(time.RFC3339),
			holding.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return model.Holding{}, fmt.Errorf("failed to insert holding: %w", err)
		}

	case err != nil:
		return model.Holding{}, fmt.Errorf("failed to query holding table: %w", err)

	default:
		holding.ID = existingID
		holding.UpdatedAt = now
		if holding.CreatedAt, err = ParseTime(createdAtStr); err != nil {
			return model.Holding{}, err
		}

		updateQuery := `
			UPDATE holding
			SET security_name = ?, shares = ?, avg_cost = ?, current_price = ?, total_value = ?, gain_loss = ?, gain_loss_pct = ?, updated_at = ?
			WHERE id = ?
		`
		_, err := r.getQuerier().ExecContext(ctx, updateQuery,
			holding.SecurityName,
			holding.Shares,
			holding.AvgCost,
			holding.CurrentPrice,
			holding.TotalValue,
			holding.GainLoss,
			holding.GainLossPct,
			holding.UpdatedAt.Format(time.RFC3339),
			holding.ID,
		)
		if err != nil {
			return model.Holding{}, fmt.Errorf("failed to update holding: %w", err)
		}
	}

	return holding, nil
}

// DeleteHoldingsNotIn removes holdings of an account whose symbols are absent
// from the fetched snapshot, making the snapshot authoritative. An empty
// keepSymbols clears the account. Returns the number of rows removed.
func (r *HoldingRepository) DeleteHoldingsNotIn(ctx context.Context, accountID string, keepSymbols []string) (int64, error) {
	query := `DELETE FROM holding WHERE account_id = ?`
	args := []any{accountID}

	if len(keepSymbols) > 0 {
		placeholders := make([]string, len(keepSymbols))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		//#nosec G202 -- Safe: placeholders are generated programmatically, not from user input
		query += ` AND symbol NOT IN (` + strings.Join(placeholders, ",") + `)`
		for _, symbol := range keepSymbols {
			args = append(args, symbol)
		}
	}

	result, err := r.getQuerier().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale holdings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ListByAccount retrieves the holdings of one account ordered by symbol.
// Ownership of the account must already be established by the caller.
func (r *HoldingRepository) ListByAccount(accountID string) ([]model.Holding, error) {
	query := `
		SELECT id, account_id, symbol, security_name, shares, avg_cost, current_price, total_value, gain_loss, gain_loss_pct, created_at, updated_at
		FROM holding
		WHERE account_id = ?
		ORDER BY symbol ASC
	`

	return r.queryHoldings(query, accountID)
}

// ListByUser retrieves all holdings across a user's accounts, joined through
// the account table so the user_id scope is enforced in SQL.
func (r *HoldingRepository) ListByUser(userID string) ([]model.Holding, error) {
	query := `
		SELECT h.id, h.account_id, h.symbol, h.security_name, h.shares, h.avg_cost, h.current_price, h.total_value, h.gain_loss, h.gain_loss_pct, h.created_at, h.updated_at
		FROM holding h
		INNER JOIN account a ON a.id = h.account_id
		WHERE a.user_id = ?
		ORDER BY h.account_id ASC, h.symbol ASC
	`

	return r.queryHoldings(query, userID)
}

func (r *HoldingRepository) queryHoldings(query string, args ...any) ([]model.Holding, error) {
	rows, err := r.getQuerier().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holding table: %w", err)
	}
	defer rows.Close()

	holdings := []model.Holding{}

	for rows.Next() {
		var holding model.Holding
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&holding.ID,
			&holding.AccountID,
			&holding.Symbol,
			&holding.SecurityName,
			&holding.Shares,
			&holding.AvgCost,
			&holding.CurrentPrice,
			&holding.TotalValue,
			&holding.GainLoss,
			&holding.GainLossPct,
			&createdAtStr,
			&updatedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding table results: %w", err)
		}

		if holding.CreatedAt, err = ParseTime(createdAtStr); err != nil {
			return nil, err
		}
		if holding.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
			return nil, err
		}

		holdings = append(holdings, holding)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding table: %w", err)
	}

	return holdings, nil
}
