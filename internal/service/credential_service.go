package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/plaid"
	"github.com/portview/portfolio-backend/internal/repository"
	"github.com/portview/portfolio-backend/internal/vault"
)

// CredentialService owns the lifecycle of aggregator access tokens. It is
// the only layer that handles token plaintext outside the aggregator client:
// tokens are sealed into the vault on save and unsealed on load, and neither
// plaintext nor ciphertext ever reaches a handler or a log line.
type CredentialService struct {
	linkedItemRepo *repository.LinkedItemRepository
	vault          *vault.Vault
	plaidClient    plaid.Client
}

// NewCredentialService creates a new CredentialService with the provided dependencies.
func NewCredentialService(linkedItemRepo *repository.LinkedItemRepository, v *vault.Vault, plaidClient plaid.Client) *CredentialService {
	return &CredentialService{
		linkedItemRepo: linkedItemRepo,
		vault:          v,
		plaidClient:    plaidClient,
	}
}

// Save encrypts an access token under the primary vault key and stores it
// for (userID, itemID). Save is only reachable from a completed exchange, so
// an existing row means the user re-linked the same institution item: the
// ciphertext and metadata are replaced in place and the linked item keeps
// its identity. A UNIQUE race from a concurrent first link surfaces as
// apperrors.ErrDuplicateItem.
func (s *CredentialService) Save(ctx context.Context, userID, itemID, institutionName, accessToken string) (model.LinkedItem, error) {
	ciphertext, keyVersion, err := s.vault.Encrypt(accessToken)
	if err != nil {
		return model.LinkedItem{}, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	cred := model.EncryptedCredential{Ciphertext: ciphertext, KeyVersion: keyVersion}

	existing, err := s.linkedItemRepo.GetByUserAndItem(userID, itemID)
	switch {
	case err == nil:
		// Re-link. An empty institution name from a failed metadata lookup
		// must not erase the one we already know.
		if institutionName == "" {
			institutionName = existing.InstitutionName
		}
		if err := s.linkedItemRepo.UpdateCredential(ctx, existing.ID, institutionName, cred); err != nil {
			return model.LinkedItem{}, err
		}
		existing.InstitutionName = institutionName
		return existing, nil

	case errors.Is(err, apperrors.ErrItemNotFound):
		item := model.LinkedItem{
			UserID:          userID,
			ItemID:          itemID,
			InstitutionName: institutionName,
		}
		return s.linkedItemRepo.Insert(ctx, item, cred)

	default:
		return model.LinkedItem{}, err
	}
}

// Load returns the decrypted access token for a linked item, scoped to its
// owner. A missing row and a row owned by someone else are both
// apperrors.ErrItemNotFound; a rotated-away key version is apperrors.ErrVault.
func (s *CredentialService) Load(userID, linkedItemID string) (string, error) {
	_, cred, err := s.linkedItemRepo.GetCredential(userID, linkedItemID)
	if err != nil {
		return "", err
	}
	return s.vault.Decrypt(cred.Ciphertext, cred.KeyVersion)
}

// Revoke removes a linked item and its credential. The aggregator-side
// revocation is best effort: a dead aggregator or an undecryptable
// credential still lets the local delete proceed, and deleting an absent
// item succeeds, so Revoke is idempotent. Accounts and holdings fall away
// via foreign key cascade.
func (s *CredentialService) Revoke(ctx context.Context, userID, linkedItemID string) error {
	item, cred, err := s.linkedItemRepo.GetCredential(userID, linkedItemID)
	if errors.Is(err, apperrors.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if accessToken, decErr := s.vault.Decrypt(cred.Ciphertext, cred.KeyVersion); decErr != nil {
		log.Printf("Revoking linked item %s without aggregator cleanup: %v", item.ID, decErr)
	} else if remErr := s.plaidClient.RemoveItem(ctx, accessToken); remErr != nil {
		log.Printf("Failed to remove item %s at aggregator: %v", item.ItemID, remErr)
	}

	return s.linkedItemRepo.Delete(ctx, userID, linkedItemID)
}

// GetByID retrieves one linked item scoped to its owner.
func (s *CredentialService) GetByID(userID, linkedItemID string) (model.LinkedItem, error) {
	return s.linkedItemRepo.GetByID(userID, linkedItemID)
}

// ListByUser retrieves the user's linked items, newest first.
func (s *CredentialService) ListByUser(userID string) ([]model.LinkedItem, error) {
	return s.linkedItemRepo.ListByUser(userID)
}
