package model

import "time"

// LinkedItem represents one linked aggregator connection from the database.
// The encrypted credential columns live in the same row but are carried
// separately (EncryptedCredential) so they never reach a response encoder.
type LinkedItem struct {
	ID              string    `json:"id"`
	UserID          string    `json:"-"`
	ItemID          string    `json:"itemId"`
	InstitutionName string    `json:"institutionName"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EncryptedCredential is a vaulted access token and the key version it was
// sealed under. Only the repository and credential service ever see it.
type EncryptedCredential struct {
	Ciphertext string `json:"-"`
	KeyVersion int    `json:"-"`
}
