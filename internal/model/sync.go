package model

// SyncResult summarizes one reconciliation run. Errors is always non-nil so
// it serializes as an empty list rather than null.
type SyncResult struct {
	AccountsUpserted int         `json:"accountsUpserted"`
	HoldingsUpserted int         `json:"holdingsUpserted"`
	Errors           []SyncError `json:"errors"`
}

// SyncError is one non-fatal failure recorded during a sync run. Kind is a
// stable taxonomy string; Message is short and free of secret material.
type SyncError struct {
	ExternalAccountID string `json:"externalAccountId,omitempty"`
	Kind              string `json:"kind"`
	Message           string `json:"message"`
}
