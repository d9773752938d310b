package domain

import (
	"fmt"
	"strings"
)

// contentPolicyIndicators are substrings that, found in a provider's raw
// refusal or failure text, mark the result as a content-policy rejection
// rather than a transient fault (spec §7: such failures must not burn
// retries since the output will never change). Shared between the script
// adapter's refusal detection and the video adapter's failure-reason
// classification so both surfaces use one vocabulary.
var contentPolicyIndicators = []string{
	"i'm sorry", "i cannot", "i can't", "i'm unable", "i apologize",
	"unfortunately, i", "i'm afraid i", "i don't have access",
	"as an ai", "i must decline", "against my guidelines",
	"content polic", "content moderation", "safety violation", "nsfw",
	"moderat", "violat", "not allowed", "prohibited", "blocked",
}

// permanentFailureIndicators mark failures caused by the request itself
// (bad input, unsupported mode) rather than upstream flakiness — also not
// worth retrying.
var permanentFailureIndicators = []string{
	"invalid", "unsupported", "malformed",
}

// IsContentPolicyText reports whether s reads as a content-policy refusal
// or moderation rejection.
func IsContentPolicyText(s string) bool {
	lower := strings.ToLower(s)
	for _, ind := range contentPolicyIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// ClassifyFailureReason maps a provider's free-text failure reason (a
// video task's status.Reason, a script refusal, ...) onto the retry
// policy from spec §7: content-policy and permanent-input failures fail
// the clip immediately, everything else is treated as a transient
// upstream fault and retried. Used by both the script and video adapter
// paths so a single vocabulary drives the retryable/non-retryable split.
func ClassifyFailureReason(reason string) error {
	switch {
	case IsContentPolicyText(reason):
		return fmt.Errorf("%w: %s", ErrContentPolicy, reason)
	case containsAny(reason, permanentFailureIndicators):
		return fmt.Errorf("%w: %s", ErrProviderPermanent, reason)
	default:
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, reason)
	}
}

func containsAny(s string, indicators []string) bool {
	lower := strings.ToLower(s)
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
