package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/portview/portfolio-backend/internal/plaid"
)

// MockPlaidClient is a mock implementation of plaid.Client for testing.
// It returns predefined snapshots instead of making actual API calls and
// records every call for assertions. Safe for concurrent use, so refresh
// tests can run syncs in parallel against one mock.
type MockPlaidClient struct {
	mu sync.Mutex

	// Canned results returned by the corresponding methods
	MockLinkToken    plaid.LinkToken
	MockExchange     plaid.ExchangeResult
	MockAccounts     []plaid.Account
	MockHoldings     plaid.HoldingsResult
	MockInstitutions []plaid.Institution
	MockPublicToken  string

	// Per-method errors. A non-nil error is returned on every call, except
	// AccountsErr and HoldingsErr which clear themselves after
	// AccountsErrTimes / HoldingsErrTimes calls when those are set.
	LinkTokenErr     error
	ExchangeErr      error
	AccountsErr      error
	AccountsErrTimes int
	HoldingsErr      error
	HoldingsErrTimes int
	RemoveErr        error
	SearchErr        error
	SandboxErr       error

	// Call counters
	LinkTokenCalls int
	ExchangeCalls  int
	AccountsCalls  int
	HoldingsCalls  int
	RemoveCalls    int
	SearchCalls    int
	SandboxCalls   int

	// LastAccessToken records the access token of the most recent accounts,
	// holdings, or remove call, so tests can prove the vault round trip
	// hands the client the original plaintext.
	LastAccessToken string

	// AccountsEntered, when non-nil, receives one value each time GetAccounts
	// begins. AccountsRelease, when non-nil, blocks GetAccounts until the
	// channel is closed. Together they hold a sync mid-flight so tests can
	// observe the in-progress state deterministically.
	AccountsEntered chan struct{}
	AccountsRelease chan struct{}
}

// NewMockPlaidClient creates a new mock aggregator client with a default
// snapshot: two investment accounts, three holdings, and a successful
// exchange for "First Platypus Bank".
func NewMockPlaidClient() *MockPlaidClient {
	return &MockPlaidClient{
		MockLinkToken: plaid.LinkToken{
			Token:      "link-sandbox-11111111-2222-3333-4444-555555555555",
			Expiration: time.Now().UTC().Add(30 * time.Minute),
		},
		MockExchange: plaid.ExchangeResult{
			AccessToken:     "access-sandbox-aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			ItemID:          "item-sandbox-1",
			InstitutionName: "First Platypus Bank",
		},
		MockAccounts:     CreateMockAccounts(),
		MockHoldings:     CreateMockHoldings(),
		MockInstitutions: []plaid.Institution{{InstitutionID: "ins_109508", Name: "First Platypus Bank"}},
		MockPublicToken:  "public-sandbox-11111111-2222-3333-4444-555555555555",
	}
}

// CreateLinkToken returns the configured link token.
func (m *MockPlaidClient) CreateLinkToken(_ context.Context, _ string) (plaid.LinkToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LinkTokenCalls++
	if m.LinkTokenErr != nil {
		return plaid.LinkToken{}, m.LinkTokenErr
	}
	return m.MockLinkToken, nil
}

// ExchangePublicToken returns the configured exchange result.
func (m *MockPlaidClient) ExchangePublicToken(_ context.Context, _ string) (plaid.ExchangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExchangeCalls++
	if m.ExchangeErr != nil {
		return plaid.ExchangeResult{}, m.ExchangeErr
	}
	return m.MockExchange, nil
}

// GetAccounts returns the configured accounts snapshot.
func (m *MockPlaidClient) GetAccounts(_ context.Context, accessToken string) ([]plaid.Account, error) {
	m.mu.Lock()
	m.AccountsCalls++
	m.LastAccessToken = accessToken

	err := m.AccountsErr
	if err != nil && m.AccountsErrTimes > 0 {
		m.AccountsErrTimes--
		if m.AccountsErrTimes == 0 {
			m.AccountsErr = nil
		}
	}
	accounts := m.MockAccounts
	entered, release := m.AccountsEntered, m.AccountsRelease
	m.mu.Unlock()

	// Channel operations happen outside the lock so a held call never
	// blocks the mock for other goroutines.
	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}

	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetHoldings returns the configured holdings snapshot.
func (m *MockPlaidClient) GetHoldings(_ context.Context, accessToken string) (plaid.HoldingsResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HoldingsCalls++
	m.LastAccessToken = accessToken

	err := m.HoldingsErr
	if err != nil && m.HoldingsErrTimes > 0 {
		m.HoldingsErrTimes--
		if m.HoldingsErrTimes == 0 {
			m.HoldingsErr = nil
		}
	}
	if err != nil {
		return plaid.HoldingsResult{}, err
	}
	return m.MockHoldings, nil
}

// RemoveItem records the revoked access token.
func (m *MockPlaidClient) RemoveItem(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RemoveCalls++
	m.LastAccessToken = accessToken
	return m.RemoveErr
}

// SearchInstitutions returns the configured institutions.
func (m *MockPlaidClient) SearchInstitutions(_ context.Context, _ string) ([]plaid.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SearchCalls++
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.MockInstitutions, nil
}

// SandboxCreatePublicToken returns the configured public token.
func (m *MockPlaidClient) SandboxCreatePublicToken(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SandboxCalls++
	if m.SandboxErr != nil {
		return "", m.SandboxErr
	}
	return m.MockPublicToken, nil
}

// WithAccounts configures the accounts snapshot.
func (m *MockPlaidClient) WithAccounts(accounts []plaid.Account) *MockPlaidClient {
	m.MockAccounts = accounts
	return m
}

// WithHoldings configures the holdings snapshot.
func (m *MockPlaidClient) WithHoldings(holdings plaid.HoldingsResult) *MockPlaidClient {
	m.MockHoldings = holdings
	return m
}

// WithExchange configures the exchange result.
func (m *MockPlaidClient) WithExchange(exchange plaid.ExchangeResult) *MockPlaidClient {
	m.MockExchange = exchange
	return m
}

// WithAccountsError configures GetAccounts to fail with err on every call.
func (m *MockPlaidClient) WithAccountsError(err error) *MockPlaidClient {
	m.AccountsErr = err
	return m
}

// WithAccountsErrorCount configures GetAccounts to fail with err for the
// next times calls and then recover. Used for retry tests.
func (m *MockPlaidClient) WithAccountsErrorCount(err error, times int) *MockPlaidClient {
	m.AccountsErr = err
	m.AccountsErrTimes = times
	return m
}

// WithExchangeError configures ExchangePublicToken to fail with err.
func (m *MockPlaidClient) WithExchangeError(err error) *MockPlaidClient {
	m.ExchangeErr = err
	return m
}

// CreateMockAccounts creates an aggregator accounts snapshot with one
// brokerage and one IRA account.
func CreateMockAccounts() []plaid.Account {
	brokerage := 12500.25
	ira := 23456.78

	return []plaid.Account{
		{
			AccountID:    "acct-brokerage-1",
			Name:         "Plaid Brokerage",
			OfficialName: "Standard 0.25% Interest Brokerage",
			Type:         "investment",
			Subtype:      "brokerage",
			Mask:         "4444",
			Balances:     plaid.Balances{Current: &brokerage, ISOCurrencyCode: "USD"},
		},
		{
			AccountID:    "acct-ira-1",
			Name:         "Plaid IRA",
			OfficialName: "Traditional IRA",
			Type:         "investment",
			Subtype:      "ira",
			Mask:         "5555",
			Balances:     plaid.Balances{Current: &ira, ISOCurrencyCode: "USD"},
		},
	}
}

// CreateMockHoldings creates a holdings snapshot matching CreateMockAccounts:
// two positions in the brokerage account and one in the IRA.
func CreateMockHoldings() plaid.HoldingsResult {
	aaplCost := 1500.0
	vtiCost := 4400.0
	iraCost := 10000.0
	aaplClose := 160.0
	vtiClose := 230.5

	return plaid.HoldingsResult{
		Holdings: []plaid.Holding{
			{
				AccountID:        "acct-brokerage-1",
				SecurityID:       "sec-aapl",
				Quantity:         10,
				InstitutionPrice: 160.0,
				InstitutionValue: 1600.0,
				CostBasis:        &aaplCost,
			},
			{
				AccountID:        "acct-brokerage-1",
				SecurityID:       "sec-vti",
				Quantity:         20,
				InstitutionPrice: 230.5,
				InstitutionValue: 4610.0,
				CostBasis:        &vtiCost,
			},
			{
				AccountID:        "acct-ira-1",
				SecurityID:       "sec-vti",
				Quantity:         50,
				InstitutionPrice: 230.5,
				InstitutionValue: 11525.0,
				CostBasis:        &iraCost,
			},
		},
		Securities: []plaid.Security{
			{SecurityID: "sec-aapl", TickerSymbol: "AAPL", Name: "Apple Inc.", Type: "equity", ClosePrice: &aaplClose},
			{SecurityID: "sec-vti", TickerSymbol: "VTI", Name: "Vanguard Total Stock Market ETF", Type: "etf", ClosePrice: &vtiClose},
		},
	}
}
