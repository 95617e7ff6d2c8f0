package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
)

// LinkedItemRepository provides data access methods for the linked_item table.
// The encrypted credential columns are read and written only here; nothing
// above the credential service ever sees ciphertext.
type LinkedItemRepository struct {
	db *sql.DB
}

// NewLinkedItemRepository creates a new LinkedItemRepository with the provided database connection.
func NewLinkedItemRepository(db *sql.DB) *LinkedItemRepository {
	return &LinkedItemRepository{db: db}
}

// Insert stores a new linked item together with its encrypted credential.
// The repository assigns the row ID and timestamps. A UNIQUE violation on
// (user_id, item_id) maps to apperrors.ErrDuplicateItem, which callers hit
// when two first links race on the same external item.
func (s *LinkedItemRepository) Insert(ctx context.Context, item model.LinkedItem, cred model.EncryptedCredential) (model.LinkedItem, error) {
	now := time.Now().UTC()
	item.ID = uuid.New().String()
	item.CreatedAt = now
	item.UpdatedAt = now

	query := `
		INSERT INTO linked_item (id, user_id, item_id, institution_name, access_token_encrypted, key_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		item.ItemID,
		item.InstitutionName,
		cred.Ciphertext,
		cred.KeyVersion,
		item.CreatedAt.Format(time.RFC3339),
		item.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.LinkedItem{}, apperrors.ErrDuplicateItem
		}
		return model.LinkedItem{}, fmt.Errorf("failed to insert linked_item: %w", err)
	}

	return item, nil
}

// UpdateCredential replaces the ciphertext and institution metadata of an
// existing linked item. Used on re-link, when a fresh exchange produced a new
// access token for an item the user already linked.
func (s *LinkedItemRepository) UpdateCredential(ctx context.Context, linkedItemID, institutionName string, cred model.EncryptedCredential) error {
	query := `
		UPDATE linked_item
		SET institution_name = ?, access_token_encrypted = ?, key_version = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		institutionName,
		cred.Ciphertext,
		cred.KeyVersion,
		time.Now().UTC().Format(time.RFC3339),
		linkedItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update linked_item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrItemNotFound
	}

	return nil
}

// GetByID retrieves one linked item scoped to its owner. Rows owned by other
// users are indistinguishable from absent rows.
func (s *LinkedItemRepository) GetByID(userID, linkedItemID string) (model.LinkedItem, error) {
	query := `
		SELECT id, user_id, item_id, institution_name, created_at, updated_at
		FROM linked_item
		WHERE id = ? AND user_id = ?
	`

	var item model.LinkedItem
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRow(query, linkedItemID, userID).Scan(
		&item.ID,
		&item.UserID,
		&item.ItemID,
		&item.InstitutionName,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return model.LinkedItem{}, apperrors.ErrItemNotFound
	}
	if err != nil {
		return model.LinkedItem{}, fmt.Errorf("failed to query linked_item: %w", err)
	}

	if item.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.LinkedItem{}, err
	}
	if item.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
		return model.LinkedItem{}, err
	}

	return item, nil
}

// GetByUserAndItem retrieves a linked item by its external item identifier,
// scoped to the owner. Used to detect re-links during an exchange.
func (s *LinkedItemRepository) GetByUserAndItem(userID, itemID string) (model.LinkedItem, error) {
	query := `
		SELECT id, user_id, item_id, institution_name, created_at, updated_at
		FROM linked_item
		WHERE user_id = ? AND item_id = ?
	`

	var item model.LinkedItem
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRow(query, userID, itemID).Scan(
		&item.ID,
		&item.UserID,
		&item.ItemID,
		&item.InstitutionName,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return model.LinkedItem{}, apperrors.ErrItemNotFound
	}
	if err != nil {
		return model.LinkedItem{}, fmt.Errorf("failed to query linked_item: %w", err)
	}

	if item.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.LinkedItem{}, err
	}
	if item.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
		return model.LinkedItem{}, err
	}

	return item, nil
}

// GetCredential retrieves a linked item together with its encrypted
// credential, scoped to the owner.
func (s *LinkedItemRepository) GetCredential(userID, linkedItemID string) (model.LinkedItem, model.EncryptedCredential, error) {
	query := `
		SELECT id, user_id, item_id, institution_name, access_token_encrypted, key_version, created_at, updated_at
		FROM linked_item
		WHERE id = ? AND user_id = ?
	`

	var item model.LinkedItem
	var cred model.EncryptedCredential
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRow(query, linkedItemID, userID).Scan(
		&item.ID,
		&item.UserID,
		&item.ItemID,
		&item.InstitutionName,
		&cred.Ciphertext,
		&cred.KeyVersion,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return model.LinkedItem{}, model.EncryptedCredential{}, apperrors.ErrItemNotFound
	}
	if err != nil {
		return model.LinkedItem{}, model.EncryptedCredential{}, fmt.Errorf("failed to query linked_item: %w", err)
	}

	if item.CreatedAt, err = ParseTime(createdAtStr); err != nil {
		return model.LinkedItem{}, model.EncryptedCredential{}, err
	}
	if item.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
		return model.LinkedItem{}, model.EncryptedCredential{}, err
	}

	return item, cred, nil
}

// ListByUser retrieves all linked items owned by a user, newest first.
// Returns an empty slice when the user has no linked items.
func (s *LinkedItemRepository) ListByUser(userID string) ([]model.LinkedItem, error) {
	query := `
		SELECT id, user_id, item_id, institution_name, created_at, updated_at
		FROM linked_item
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked_item table: %w", err)
	}
	defer rows.Close()

	items := []model.LinkedItem{}

	for rows.Next() {
		var item model.LinkedItem
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ItemID,
			&item.InstitutionName,
			&createdAtStr,
			&updatedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked_item table results: %w", err)
		}

		if item.CreatedAt, err = ParseTime(createdAtStr); err != nil {
			return nil, err
		}
		if item.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked_item table: %w", err)
	}

	return items, nil
}

// ListAll retrieves every linked item across all users, oldest first. Used by
// the scheduled refresh.
func (s *LinkedItemRepository) ListAll() ([]model.LinkedItem, error) {
	query := `
		SELECT id, user_id, item_id, institution_name, created_at, updated_at
		FROM linked_item
		ORDER BY created_at ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked_item table: %w", err)
	}
	defer rows.Close()

	items := []model.LinkedItem{}

	for rows.Next() {
		var item model.LinkedItem
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ItemID,
			&item.InstitutionName,
			&createdAtStr,
			&updatedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked_item table results: %w", err)
		}

		if item.CreatedAt, err = ParseTime(createdAtStr); err != nil {
			return nil, err
		}
		if item.UpdatedAt, err = ParseTime(updatedAtStr); err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked_item table: %w", err)
	}

	return items, nil
}

// Delete removes a linked item scoped to its owner. Accounts and holdings go
// with it via foreign key cascade. Deleting an absent item is not an error,
// which keeps revocation idempotent.
func (s *LinkedItemRepository) Delete(ctx context.Context, userID, linkedItemID string) error {
	query := `DELETE FROM linked_item WHERE id = ? AND user_id = ?`

	if _, err := s.db.ExecContext(ctx, query, linkedItemID, userID); err != nil {
		return fmt.Errorf("failed to delete linked_item: %w", err)
	}

	return nil
}
