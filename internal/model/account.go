package model

import (
	"strings"
	"time"
)

// Account types recognized by the engine. Aggregator subtypes outside this
// set normalize to investment or other.
const (
	AccountTypeBrokerage  = "brokerage"
	AccountTypeIRA        = "ira"
	AccountType401K       = "401k"
	AccountTypeRoth       = "roth"
	AccountTypeInvestment = "investment"
	AccountTypeOther      = "other"
)

// NormalizeAccountType maps an aggregator account type/subtype pair onto the
// engine's account types. The subtype wins when recognized; otherwise any
// investment-class account becomes "investment" and the rest "other".
func NormalizeAccountType(accountType, subtype string) string {
	switch strings.ToLower(strings.TrimSpace(subtype)) {
	case "brokerage":
		return AccountTypeBrokerage
	case "ira":
		return AccountTypeIRA
	case "401k":
		return AccountType401K
	case "roth":
		return AccountTypeRoth
	}
	if strings.ToLower(strings.TrimSpace(accountType)) == "investment" {
		return AccountTypeInvestment
	}
	return AccountTypeOther
}

// Account represents a synced external account from the database.
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"-"`
	LinkedItemID      *string   `json:"linkedItemId,omitempty"`
	ExternalAccountID string    `json:"externalAccountId"`
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	Institution       string    `json:"institution"`
	TotalValue        float64   `json:"totalValue"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// PortfolioAccount is an account with its holdings nested, the unit of the
// portfolio read surface.
type PortfolioAccount struct {
	Account
	Holdings []Holding `json:"holdings"`
}
