package domain

import "errors"

// IsRetryable classifies an error returned by a stage handler into the
// retry/no-retry policy from spec §7. Transient upstream conditions are
// retried (Worker requeues and tries again up to MaxAttempts); anything
// else is a permanent failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUpstreamTimeout),
		errors.Is(err, ErrUpstreamRateLimit):
		return true
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientCredits),
		errors.Is(err, ErrContentPolicy),
		errors.Is(err, ErrProviderPermanent),
		errors.Is(err, ErrAuth):
		return false
	default:
		// Unclassified errors (e.g. a dropped DB connection) are treated
		// as transient; MaxAttempts still bounds the blast radius.
		return true
	}
}
