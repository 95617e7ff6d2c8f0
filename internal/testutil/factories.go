package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/portview/portfolio-backend/internal/model"
)

// LinkedItemBuilder provides a fluent interface for creating test linked items.
//
// Example usage:
//
//	// Simple creation with defaults
//	item := testutil.NewLinkedItem("user-1").Build(t, db)
//
//	// Customized item
//	item := testutil.NewLinkedItem("user-1").
//	    WithInstitutionName("Vanguard").
//	    WithCredential(ciphertext, 2).
//	    Build(t, db)
type LinkedItemBuilder struct {
	ID              string
	UserID          string
	ItemID          string
	InstitutionName string
	Ciphertext      string
	KeyVersion      int
}

// NewLinkedItem creates a LinkedItemBuilder with sensible defaults. The
// default credential ciphertext is not decryptable; tests that need a
// working credential set one with WithCredential.
func NewLinkedItem(userID string) *LinkedItemBuilder {
	return &LinkedItemBuilder{
		ID:              MakeID(),
		UserID:          userID,
		ItemID:          "item-" + randomAlphanumeric(8),
		InstitutionName: "Test Institution",
		Ciphertext:      "opaque-test-ciphertext",
		KeyVersion:      1,
	}
}

// WithID sets a custom ID.
func (b *LinkedItemBuilder) WithID(id string) *LinkedItemBuilder {
	b.ID = id
	return b
}

// WithItemID sets a custom external item ID.
func (b *LinkedItemBuilder) WithItemID(itemID string) *LinkedItemBuilder {
	b.ItemID = itemID
	return b
}

// WithInstitutionName sets a custom institution name.
func (b *LinkedItemBuilder) WithInstitutionName(name string) *LinkedItemBuilder {
	b.InstitutionName = name
	return b
}

// WithCredential sets the stored ciphertext and key version.
func (b *LinkedItemBuilder) WithCredential(ciphertext string, keyVersion int) *LinkedItemBuilder {
	b.Ciphertext = ciphertext
	b.KeyVersion = keyVersion
	return b
}

// Build creates the linked item in the database and returns it.
func (b *LinkedItemBuilder) Build(t *testing.T, db *sql.DB) model.LinkedItem {
	t.Helper()

	now := time.Now().UTC()

	query := `
		INSERT INTO linked_item (id, user_id, item_id, institution_name, access_token_encrypted, key_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.UserID, b.ItemID, b.InstitutionName, b.Ciphertext, b.KeyVersion,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Failed to create test linked item: %v", err)
	}

	return model.LinkedItem{
		ID:              b.ID,
		UserID:          b.UserID,
		ItemID:          b.ItemID,
		InstitutionName: b.InstitutionName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AccountBuilder provides a fluent interface for creating test accounts.
//
// Example usage:
//
//	account := testutil.NewAccount("user-1").
//	    WithName("Brokerage").
//	    WithLinkedItem(item.ID).
//	    Build(t, db)
type AccountBuilder struct {
	ID                string
	UserID            string
	LinkedItemID      *string
	ExternalAccountID string
	Name              string
	Type              string
	Institution       string
	TotalValue        float64
}

// NewAccount creates an AccountBuilder with sensible defaults.
func NewAccount(userID string) *AccountBuilder {
	return &AccountBuilder{
		ID:                MakeID(),
		UserID:            userID,
		ExternalAccountID: "acct-" + randomAlphanumeric(8),
		Name:              "Test Account",
		Type:              model.AccountTypeBrokerage,
		Institution:       "Test Institution",
		TotalValue:        1000.0,
	}
}

// WithLinkedItem attaches the account to a linked item.
func (b *AccountBuilder) WithLinkedItem(linkedItemID string) *AccountBuilder {
	b.LinkedItemID = &linkedItemID
	return b
}

// WithExternalAccountID sets a custom external account ID.
func (b *AccountBuilder) WithExternalAccountID(externalID string) *AccountBuilder {
	b.ExternalAccountID = externalID
	return b
}

// WithName sets a custom name.
func (b *AccountBuilder) WithName(name string) *AccountBuilder {
	b.Name = name
	return b
}

// WithType sets the account type.
func (b *AccountBuilder) WithType(accountType string) *AccountBuilder {
	b.Type = accountType
	return b
}

// WithInstitution sets the institution name.
func (b *AccountBuilder) WithInstitution(institution string) *AccountBuilder {
	b.Institution = institution
	return b
}

// WithTotalValue sets the account's total value.
func (b *AccountBuilder) WithTotalValue(value float64) *AccountBuilder {
	b.TotalValue = value
	return b
}

// Build creates the account in the database and returns it.
func (b *AccountBuilder) Build(t *testing.T, db *sql.DB) model.Account {
	t.Helper()

	now := time.Now().UTC()

	query := `
		INSERT INTO account (id, user_id, linked_item_id, external_account_id, name, type, institution, total_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.UserID, b.LinkedItemID, b.ExternalAccountID, b.Name, b.Type,
		b.Institution, b.TotalValue, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return model.Account{
		ID:                b.ID,
		UserID:            b.UserID,
		LinkedItemID:      b.LinkedItemID,
		ExternalAccountID: b.ExternalAccountID,
		Name:              b.Name,
		Type:              b.Type,
		Institution:       b.Institution,
		TotalValue:        b.TotalValue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// HoldingBuilder provides a fluent interface for creating test holdings.
// Derived fields default to values consistent with shares, avg cost and
// price, so stored rows satisfy the same arithmetic the sync writes.
type HoldingBuilder struct {
	ID           string
	AccountID    string
	Symbol       string
	SecurityName string
	Shares       float64
	AvgCost      float64
	CurrentPrice float64
}

// NewHolding creates a HoldingBuilder with sensible defaults.
func NewHolding(accountID string) *HoldingBuilder {
	return &HoldingBuilder{
		ID:           MakeID(),
		AccountID:    accountID,
		Symbol:       MakeSymbol("TST"),
		SecurityName: "Test Security",
		Shares:       10,
		AvgCost:      100.0,
		CurrentPrice: 110.0,
	}
}

// WithSymbol sets a custom symbol.
func (b *HoldingBuilder) WithSymbol(symbol string) *HoldingBuilder {
	b.Symbol = symbol
	return b
}

// WithShares sets the share count.
func (b *HoldingBuilder) WithShares(shares float64) *HoldingBuilder {
	b.Shares = shares
	return b
}

// WithAvgCost sets the average cost per share.
func (b *HoldingBuilder) WithAvgCost(avgCost float64) *HoldingBuilder {
	b.AvgCost = avgCost
	return b
}

// WithCurrentPrice sets the current price per share.
func (b *HoldingBuilder) WithCurrentPrice(price float64) *HoldingBuilder {
	b.CurrentPrice = price
	return b
}

// Build creates the holding in the database and returns it. total_value,
// gain_loss and gain_loss_pct are computed from the configured fields.
func (b *HoldingBuilder) Build(t *testing.T, db *sql.DB) model.Holding {
	t.Helper()

	now := time.Now().UTC()

	totalValue := b.Shares * b.CurrentPrice
	cost := b.Shares * b.AvgCost
	gainLoss := totalValue - cost
	gainLossPct := 0.0
	if cost > 0 {
		gainLossPct = gainLoss / cost * 100
	}

	query := `
		INSERT INTO holding (id, account_id, symbol, security_name, shares, avg_cost, current_price, total_value, gain_loss, gain_loss_pct, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.AccountID, b.Symbol, b.SecurityName, b.Shares, b.AvgCost,
		b.CurrentPrice, totalValue, gainLoss, gainLossPct,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Failed to create test holding: %v", err)
	}

	return model.Holding{
		ID:           b.ID,
		AccountID:    b.AccountID,
		Symbol:       b.Symbol,
		SecurityName: b.SecurityName,
		Shares:       b.Shares,
		AvgCost:      b.AvgCost,
		CurrentPrice: b.CurrentPrice,
		TotalValue:   totalValue,
		GainLoss:     gainLoss,
		GainLossPct:  gainLossPct,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LinkAttemptBuilder provides a fluent interface for creating link attempts.
type LinkAttemptBuilder struct {
	ID        string
	UserID    string
	State     string
	Reason    string
	ExpiresAt time.Time
}

// NewLinkAttempt creates a LinkAttemptBuilder in the awaiting_completion
// state, expiring 30 minutes from now.
func NewLinkAttempt(userID string) *LinkAttemptBuilder {
	return &LinkAttemptBuilder{
		ID:        MakeID(),
		UserID:    userID,
		State:     model.LinkAttemptAwaitingCompletion,
		ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
	}
}

// WithState sets the attempt state.
func (b *LinkAttemptBuilder) WithState(state string) *LinkAttemptBuilder {
	b.State = state
	return b
}

// WithExpiresAt sets the expiry timestamp.
func (b *LinkAttemptBuilder) WithExpiresAt(expiresAt time.Time) *LinkAttemptBuilder {
	b.ExpiresAt = expiresAt
	return b
}

// Expired marks the attempt as already past its expiry.
func (b *LinkAttemptBuilder) Expired() *LinkAttemptBuilder {
	b.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	return b
}

// Build creates the link attempt in the database and returns it.
func (b *LinkAttemptBuilder) Build(t *testing.T, db *sql.DB) model.LinkAttempt {
	t.Helper()

	now := time.Now().UTC()

	query := `
		INSERT INTO link_attempt (id, user_id, state, reason, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.UserID, b.State, b.Reason,
		b.ExpiresAt.Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Failed to create test link attempt: %v", err)
	}

	return model.LinkAttempt{
		ID:        b.ID,
		UserID:    b.UserID,
		State:     b.State,
		Reason:    b.Reason,
		ExpiresAt: b.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
