package testutil

import (
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/portview/portfolio-backend/internal/plaid"
	"github.com/portview/portfolio-backend/internal/repository"
	"github.com/portview/portfolio-backend/internal/service"
	"github.com/portview/portfolio-backend/internal/vault"
)

// GenerateVaultKey generates a fresh base64url-encoded Fernet key for tests.
//
// Example usage:
//
//	v, _ := vault.New([]string{"1:" + testutil.GenerateVaultKey(t)})
func GenerateVaultKey(t *testing.T) string {
	t.Helper()

	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("Failed to generate fernet key: %v", err)
	}
	return key.Encode()
}

// NewTestVault creates a vault from the given "version:key" entries, or a
// single-key vault under version 1 when none are given.
func NewTestVault(t *testing.T, entries ...string) *vault.Vault {
	t.Helper()

	if len(entries) == 0 {
		entries = []string{"1:" + GenerateVaultKey(t)}
	}

	v, err := vault.New(entries)
	if err != nil {
		t.Fatalf("Failed to create test vault: %v", err)
	}
	return v
}

func NewTestCredentialService(t *testing.T, db *sql.DB, v *vault.Vault, client plaid.Client) *service.CredentialService {
	t.Helper()

	linkedItemRepo := repository.NewLinkedItemRepository(db)

	return service.NewCredentialService(
		linkedItemRepo,
		v,
		client,
	)
}

func NewTestSyncService(t *testing.T, db *sql.DB, v *vault.Vault, client plaid.Client) *service.SyncService {
	t.Helper()

	linkedItemRepo := repository.NewLinkedItemRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	holdingRepo := repository.NewHoldingRepository(db)
	credentialService := service.NewCredentialService(linkedItemRepo, v, client)

	return service.NewSyncService(
		db,
		linkedItemRepo,
		accountRepo,
		holdingRepo,
		credentialService,
		client,
	)
}

// NewTestLinkService wires a LinkService against the sandbox environment so
// sandbox-only operations are testable.
func NewTestLinkService(t *testing.T, db *sql.DB, v *vault.Vault, client plaid.Client) *service.LinkService {
	t.Helper()

	credentialService := NewTestCredentialService(t, db, v, client)
	syncService := NewTestSyncService(t, db, v, client)
	attemptRepo := repository.NewLinkAttemptRepository(db)

	return service.NewLinkService(
		client,
		credentialService,
		syncService,
		attemptRepo,
		"sandbox",
	)
}

func NewTestPortfolioService(t *testing.T, db *sql.DB) *service.PortfolioService {
	t.Helper()

	accountRepo := repository.NewAccountRepository(db)
	holdingRepo := repository.NewHoldingRepository(db)

	return service.NewPortfolioService(
		accountRepo,
		holdingRepo,
	)
}

func NewTestRefreshService(t *testing.T, db *sql.DB, v *vault.Vault, client plaid.Client) *service.RefreshService {
	t.Helper()

	linkedItemRepo := repository.NewLinkedItemRepository(db)
	syncService := NewTestSyncService(t, db, v, client)

	return service.NewRefreshService(
		linkedItemRepo,
		syncService,
	)
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db)
}

// SignTestToken signs an HS256 bearer token for the given subject, the same
// shape the auth middleware verifies.
//
// Example usage:
//
//	token := testutil.SignTestToken(t, "test-secret", "user-1")
//	req.Header.Set("Authorization", "Bearer "+token)
func SignTestToken(t *testing.T, secret, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return token
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
