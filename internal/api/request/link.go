package request

// ExchangeTokenRequest represents the request body for completing a link
// flow. The public token comes from the client-side link UI and is
// single-use.
type ExchangeTokenRequest struct {
	PublicToken string `json:"publicToken"`
}

// SandboxLinkRequest represents the request body for a sandbox link.
// Both fields are optional: institutionId pins an institution explicitly,
// query searches one by name, and leaving both empty links the default
// sandbox institution.
type SandboxLinkRequest struct {
	Query         string `json:"query,omitempty"`
	InstitutionID string `json:"institutionId,omitempty"`
}
