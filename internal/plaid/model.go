package plaid

import "time"

// LinkToken is a single-use link session token handed to the client-side
// Link flow, valid until Expiration.
type LinkToken struct {
	Token      string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
}

// ExchangeResult is the outcome of exchanging a public token: the durable
// access secret, the external item identifier, and the institution name
// resolved from item metadata. InstitutionName may be empty when the
// metadata lookup fails; the exchange itself is still valid.
type ExchangeResult struct {
	AccessToken     string
	ItemID          string
	InstitutionName string
}

// Balances carries the monetary state of an external account. Current and
// Available are pointers because the aggregator omits them for some account
// types.
type Balances struct {
	Available       *float64 `json:"available"`
	Current         *float64 `json:"current"`
	Limit           *float64 `json:"limit"`
	ISOCurrencyCode string   `json:"iso_currency_code"`
}

// Account is one external account as reported by the aggregator.
type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Mask         string   `json:"mask"`
	Balances     Balances `json:"balances"`
}

// CurrentBalance returns the current balance, or zero when the aggregator
// did not report one.
func (a Account) CurrentBalance() float64 {
	if a.Balances.Current == nil {
		return 0
	}
	return *a.Balances.Current
}

// Holding is one investment position. Security metadata (symbol, name) lives
// in the parallel securities list and is joined by SecurityID.
type Holding struct {
	AccountID        string   `json:"account_id"`
	SecurityID       string   `json:"security_id"`
	Quantity         float64  `json:"quantity"`
	InstitutionPrice float64  `json:"institution_price"`
	InstitutionValue float64  `json:"institution_value"`
	CostBasis        *float64 `json:"cost_basis"`
}

// Security describes one instrument referenced by holdings.
type Security struct {
	SecurityID   string   `json:"security_id"`
	TickerSymbol string   `json:"ticker_symbol"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	ClosePrice   *float64 `json:"close_price"`
}

// HoldingsResult is the complete current holdings snapshot for an item,
// together with the securities needed to resolve symbols and names.
type HoldingsResult struct {
	Holdings   []Holding  `json:"holdings"`
	Securities []Security `json:"securities"`
}

// SecurityByID builds a lookup table from the securities list.
func (r HoldingsResult) SecurityByID() map[string]Security {
	m := make(map[string]Security, len(r.Securities))
	for _, s := range r.Securities {
		m[s.SecurityID] = s
	}
	return m
}

// Institution is an entry from an institution search.
type Institution struct {
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
}

// Wire envelopes. Request bodies embed the client credentials, which the
// client fills in before sending.

type linkTokenCreateRequest struct {
	ClientID     string        `json:"client_id"`
	Secret       string        `json:"secret"`
	ClientName   string        `json:"client_name"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	User         linkTokenUser `json:"user"`
	Products     []string      `json:"products"`
}

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type linkTokenCreateResponse struct {
	LinkToken  string    `json:"link_token"`
	Expiration time.Time `json:"expiration"`
	RequestID  string    `json:"request_id"`
}

type publicTokenExchangeRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

type publicTokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

type accessTokenRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

type itemGetResponse struct {
	Item struct {
		ItemID        string `json:"item_id"`
		InstitutionID string `json:"institution_id"`
	} `json:"item"`
	RequestID string `json:"request_id"`
}

type institutionGetByIDRequest struct {
	ClientID      string   `json:"client_id"`
	Secret        string   `json:"secret"`
	InstitutionID string   `json:"institution_id"`
	CountryCodes  []string `json:"country_codes"`
}

type institutionGetByIDResponse struct {
	Institution Institution `json:"institution"`
	RequestID   string      `json:"request_id"`
}

type accountsGetResponse struct {
	Accounts  []Account `json:"accounts"`
	RequestID string    `json:"request_id"`
}

type holdingsGetResponse struct {
	Accounts   []Account  `json:"accounts"`
	Holdings   []Holding  `json:"holdings"`
	Securities []Security `json:"securities"`
	RequestID  string     `json:"request_id"`
}

type itemRemoveResponse struct {
	RequestID string `json:"request_id"`
}

type institutionsSearchRequest struct {
	ClientID     string   `json:"client_id"`
	Secret       string   `json:"secret"`
	Query        string   `json:"query"`
	Products     []string `json:"products"`
	CountryCodes []string `json:"country_codes"`
}

type institutionsSearchResponse struct {
	Institutions []Institution `json:"institutions"`
	RequestID    string        `json:"request_id"`
}

type sandboxPublicTokenCreateRequest struct {
	ClientID        string   `json:"client_id"`
	Secret          string   `json:"secret"`
	InstitutionID   string   `json:"institution_id"`
	InitialProducts []string `json:"initial_products"`
}

type sandboxPublicTokenCreateResponse struct {
	PublicToken string `json:"public_token"`
	RequestID   string `json:"request_id"`
}
