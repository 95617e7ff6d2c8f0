// Package apperrors defines the stable error taxonomy of the linking and
// sync engine. Handlers map these sentinels to HTTP status codes and every
// propagated error carries a kind string that is safe to show to callers.
package apperrors

import "errors"

// Aggregator errors classify failures of calls to the account-aggregation
// provider. Transient and terminal failures are distinct because only
// transient ones may be retried.
var (
	// ErrAggregatorUnavailable indicates a transient aggregator failure
	// (network error, timeout, 5xx, rate limit). Safe to retry with backoff.
	ErrAggregatorUnavailable = errors.New("aggregator unavailable")

	// ErrAggregatorRejected indicates the aggregator refused the request for
	// a non-transient reason (revoked credential, login required, bad input).
	// Retrying will not help; the user must re-link or contact the institution.
	ErrAggregatorRejected = errors.New("aggregator rejected request")

	// ErrInvalidToken indicates a public token that is expired, malformed, or
	// already consumed. The linking flow must be restarted from the beginning.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Engine errors represent failures inside the engine itself.
var (
	// ErrVault indicates the stored credential could not be decrypted,
	// typically because its key version was rotated away. The item must be
	// re-linked; this is never transient.
	ErrVault = errors.New("credential vault error")

	// ErrItemNotFound indicates the referenced linked item does not exist or
	// is not owned by the calling user. The two cases are deliberately
	// indistinguishable to the caller.
	ErrItemNotFound = errors.New("linked item not found")

	// ErrAccountNotFound indicates the referenced account does not exist or
	// is not owned by the calling user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSyncInProgress indicates a sync for the same (user, item) pair is
	// already running. The caller should poll or retry later.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrDuplicateItem indicates a concurrent first link raced on the same
	// external item identifier.
	ErrDuplicateItem = errors.New("linked item already exists")

	// ErrNoActiveAttempt indicates there is no link attempt awaiting
	// completion for the user, so a completion event cannot be applied.
	ErrNoActiveAttempt = errors.New("no active link attempt")
)

// Stable kind strings surfaced in API responses and SyncResult error entries.
const (
	KindAggregatorUnavailable = "aggregator_unavailable"
	KindAggregatorRejected    = "aggregator_rejected"
	KindInvalidToken          = "invalid_token"
	KindVault                 = "vault_error"
	KindNotFound              = "not_found"
	KindSyncInProgress        = "sync_in_progress"
	KindConflict              = "conflict"
	KindInternal              = "internal"
)

// Kind returns the stable kind string for an error chain. Unclassified errors
// report as internal so that no wrapped detail leaks into responses.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAggregatorUnavailable):
		return KindAggregatorUnavailable
	case errors.Is(err, ErrAggregatorRejected):
		return KindAggregatorRejected
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNoActiveAttempt):
		return KindInvalidToken
	case errors.Is(err, ErrVault):
		return KindVault
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ErrSyncInProgress):
		return KindSyncInProgress
	case errors.Is(err, ErrDuplicateItem):
		return KindConflict
	default:
		return KindInternal
	}
}
