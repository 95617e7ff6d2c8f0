package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/portview/portfolio-backend/internal/apperrors"
)

// Aggregator environments. The development environment shares the sandbox
// host; only production talks to the live API.
const (
	hostSandbox    = "https://sandbox.plaid.com"
	hostProduction = "https://production.plaid.com"
)

// Link session defaults sent with every link token request.
const (
	linkClientName = "Portfolio App"
	linkLanguage   = "en"
)

// DefaultSandboxInstitutionID is the aggregator's test brokerage. Sandbox
// link requests that do not name an institution fall back to it.
const DefaultSandboxInstitutionID = "ins_109508"

var (
	productInvestments = []string{"investments"}
	countryCodes       = []string{"US"}
)

// Client defines the interface for talking to the account aggregator.
// This interface enables dependency injection and testing with mock implementations.
type Client interface {
	// CreateLinkToken opens a link session for a user and returns the
	// single-use token the client-side link flow needs.
	CreateLinkToken(ctx context.Context, userID string) (LinkToken, error)

	// ExchangePublicToken trades a public token from a completed link flow
	// for a durable access token and the item it identifies.
	ExchangePublicToken(ctx context.Context, publicToken string) (ExchangeResult, error)

	// GetAccounts fetches the current accounts for an item.
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)

	// GetHoldings fetches the current investment holdings for an item,
	// together with the securities needed to resolve them.
	GetHoldings(ctx context.Context, accessToken string) (HoldingsResult, error)

	// RemoveItem invalidates the access token at the aggregator.
	RemoveItem(ctx context.Context, accessToken string) error

	// SearchInstitutions looks up investment institutions by name.
	SearchInstitutions(ctx context.Context, query string) ([]Institution, error)

	// SandboxCreatePublicToken mints a public token directly, bypassing the
	// client-side link flow. Sandbox only.
	SandboxCreatePublicToken(ctx context.Context, institutionID string) (string, error)
}

// APIError is a structured error returned by the aggregator API. It wraps one
// of the apperrors sentinels so callers classify with errors.Is while the
// aggregator's own code and type stay available for logging.
type APIError struct {
	StatusCode     int
	ErrorType      string
	ErrorCode      string
	DisplayMessage string
	sentinel       error
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("aggregator returned http %d", e.StatusCode)
	}
	return fmt.Sprintf("aggregator error %s (%s)", e.ErrorCode, e.ErrorType)
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

// classify maps an aggregator failure to the engine's error taxonomy.
// Server-side and rate-limit failures are transient; token errors invalidate
// the link flow; everything else is a terminal rejection.
func classify(status int, errorType, errorCode string) error {
	if status >= http.StatusInternalServerError {
		return apperrors.ErrAggregatorUnavailable
	}
	switch errorType {
	case "API_ERROR", "RATE_LIMIT_EXCEEDED":
		return apperrors.ErrAggregatorUnavailable
	}
	switch errorCode {
	case "INVALID_PUBLIC_TOKEN", "INVALID_LINK_TOKEN", "EXPIRED_LINK_TOKEN":
		return apperrors.ErrInvalidToken
	}
	return apperrors.ErrAggregatorRejected
}

type apiErrorBody struct {
	ErrorType      string  `json:"error_type"`
	ErrorCode      string  `json:"error_code"`
	ErrorMessage   string  `json:"error_message"`
	DisplayMessage *string `json:"display_message"`
}

func newAPIError(status int, body []byte) *APIError {
	var parsed apiErrorBody
	// Non-JSON bodies still classify by status code alone.
	_ = json.Unmarshal(body, &parsed)

	apiErr := &APIError{
		StatusCode:     status,
		ErrorType:      parsed.ErrorType,
		ErrorCode:      parsed.ErrorCode,
		DisplayMessage: parsed.ErrorMessage,
		sentinel:       classify(status, parsed.ErrorType, parsed.ErrorCode),
	}
	if parsed.DisplayMessage != nil && *parsed.DisplayMessage != "" {
		apiErr.DisplayMessage = *parsed.DisplayMessage
	}
	return apiErr
}

// APIClient provides methods for calling the aggregator's REST API.
// It wraps an HTTP client and bounds every call with a request timeout.
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	timeout    time.Duration
}

// NewAPIClient creates a new aggregator client for the given environment.
// Any environment other than "production" resolves to the sandbox host.
//
// Parameters:
//   - clientID: API client identifier issued by the aggregator
//   - secret: API secret for the chosen environment
//   - environment: "sandbox", "development", or "production"
//
// Returns:
//   - *APIClient: A new client instance ready for use
func NewAPIClient(clientID, secret, environment string) *APIClient {
	baseURL := hostSandbox
	if environment == "production" {
		baseURL = hostProduction
	}
	return &APIClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
		timeout:    15 * time.Second,
	}
}

// WithBaseURL overrides the aggregator host, primarily so tests can point
// the client at a local server.
func (c *APIClient) WithBaseURL(url string) *APIClient {
	c.baseURL = url
	return c
}

// WithTimeout overrides the per-request timeout.
func (c *APIClient) WithTimeout(d time.Duration) *APIClient {
	c.timeout = d
	return c
}

// CreateLinkToken opens a link session scoped to the investments product for
// one user.
//
// Parameters:
//   - userID: Internal user identifier, forwarded as the aggregator's
//     client_user_id
//
// Returns:
//   - LinkToken: Single-use session token and its expiration
//   - error: Classified aggregator error if the session could not be opened
func (c *APIClient) CreateLinkToken(ctx context.Context, userID string) (LinkToken, error) {
	req := linkTokenCreateRequest{
		ClientID:     c.clientID,
		Secret:       c.secret,
		ClientName:   linkClientName,
		Language:     linkLanguage,
		CountryCodes: countryCodes,
		User:         linkTokenUser{ClientUserID: userID},
		Products:     productInvestments,
	}

	var resp linkTokenCreateResponse
	if err := c.post(ctx, "/link/token/create", req, &resp); err != nil {
		return LinkToken{}, err
	}

	return LinkToken{Token: resp.LinkToken, Expiration: resp.Expiration}, nil
}

// ExchangePublicToken trades a public token for a durable access token, then
// resolves the institution name from item metadata. The metadata lookups are
// best effort: a failure there never invalidates a successful exchange, it
// only leaves InstitutionName empty.
func (c *APIClient) ExchangePublicToken(ctx context.Context, publicToken string) (ExchangeResult, error) {
	req := publicTokenExchangeRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		PublicToken: publicToken,
	}

	var resp publicTokenExchangeResponse
	if err := c.post(ctx, "/item/public_token/exchange", req, &resp); err != nil {
		return ExchangeResult{}, err
	}

	result := ExchangeResult{
		AccessToken: resp.AccessToken,
		ItemID:      resp.ItemID,
	}
	result.InstitutionName = c.lookupInstitutionName(ctx, resp.AccessToken)
	return result, nil
}

// lookupInstitutionName resolves the institution behind an access token.
// Returns "" when either metadata call fails.
func (c *APIClient) lookupInstitutionName(ctx context.Context, accessToken string) string {
	var item itemGetResponse
	err := c.post(ctx, "/item/get", accessTokenRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
	}, &item)
	if err != nil || item.Item.InstitutionID == "" {
		return ""
	}

	var inst institutionGetByIDResponse
	err = c.post(ctx, "/institutions/get_by_id", institutionGetByIDRequest{
		ClientID:      c.clientID,
		Secret:        c.secret,
		InstitutionID: item.Item.InstitutionID,
		CountryCodes:  countryCodes,
	}, &inst)
	if err != nil {
		return ""
	}
	return inst.Institution.Name
}

// GetAccounts fetches the current accounts for the item behind an access token.
func (c *APIClient) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var resp accountsGetResponse
	err := c.post(ctx, "/accounts/get", accessTokenRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// GetHoldings fetches the current holdings snapshot for the item behind an
// access token, together with the securities list holdings reference.
func (c *APIClient) GetHoldings(ctx context.Context, accessToken string) (HoldingsResult, error) {
	var resp holdingsGetResponse
	err := c.post(ctx, "/investments/holdings/get", accessTokenRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
	}, &resp)
	if err != nil {
		return HoldingsResult{}, err
	}
	return HoldingsResult{Holdings: resp.Holdings, Securities: resp.Securities}, nil
}

// RemoveItem invalidates an access token at the aggregator. After removal the
// token can never be used again.
func (c *APIClient) RemoveItem(ctx context.Context, accessToken string) error {
	var resp itemRemoveResponse
	return c.post(ctx, "/item/remove", accessTokenRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
	}, &resp)
}

// SearchInstitutions looks up institutions supporting the investments product
// by name.
func (c *APIClient) SearchInstitutions(ctx context.Context, query string) ([]Institution, error) {
	req := institutionsSearchRequest{
		ClientID:     c.clientID,
		Secret:       c.secret,
		Query:        query,
		Products:     productInvestments,
		CountryCodes: countryCodes,
	}

	var resp institutionsSearchResponse
	if err := c.post(ctx, "/institutions/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Institutions, nil
}

// SandboxCreatePublicToken mints a public token for a sandbox institution,
// bypassing the client-side link flow. An empty institutionID selects the
// default test brokerage.
func (c *APIClient) SandboxCreatePublicToken(ctx context.Context, institutionID string) (string, error) {
	if institutionID == "" {
		institutionID = DefaultSandboxInstitutionID
	}
	req := sandboxPublicTokenCreateRequest{
		ClientID:        c.clientID,
		Secret:          c.secret,
		InstitutionID:   institutionID,
		InitialProducts: productInvestments,
	}

	var resp sandboxPublicTokenCreateResponse
	if err := c.post(ctx, "/sandbox/public_token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.PublicToken, nil
}

// post is an internal helper that executes one aggregator API call. It bounds
// the call with the client timeout, classifies transport failures as
// unavailable, and converts non-200 responses into *APIError.
func (c *APIClient) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post %s: %v", apperrors.ErrAggregatorUnavailable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", apperrors.ErrAggregatorUnavailable, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return newAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
