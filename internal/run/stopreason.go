package run

import (
	"fmt"
	"strings"
)

// StopReason explains why an operation ended. The vocabulary is closed:
// every engine result carries exactly one of these values, and callers
// route on them, so new values are a cross-version contract change.
type StopReason string

const (
	StopOK              StopReason = "ok"
	StopNeedsHuman      StopReason = "needs_human"
	StopInProgress      StopReason = "in_progress"
	StopProviderFailed  StopReason = "provider_failed"
	StopRouterFailed    StopReason = "router_failed"
	StopSchemaFailed    StopReason = "ajv_failed"
	StopJSONParseFailed StopReason = "json_parse_failed"
	StopTimeout         StopReason = "timeout"
	StopRateLimited     StopReason = "rate_limited"
	StopCostCapExceeded StopReason = "cost_cap_exceeded"
	StopRoundCapHit     StopReason = "round_cap_exceeded"
	StopInvalidRequest  StopReason = "invalid_request"
	StopPolicyNotFound  StopReason = "policy_not_found"
	StopPolicyInvalid   StopReason = "policy_invalid"
	StopPolicyRejected  StopReason = "policy_rejected"
)

var stopReasons = map[StopReason]bool{
	StopOK:              true,
	StopNeedsHuman:      true,
	StopInProgress:      true,
	StopProviderFailed:  true,
	StopRouterFailed:    true,
	StopSchemaFailed:    true,
	StopJSONParseFailed: true,
	StopTimeout:         true,
	StopRateLimited:     true,
	StopCostCapExceeded: true,
	StopRoundCapHit:     true,
	StopInvalidRequest:  true,
	StopPolicyNotFound:  true,
	StopPolicyInvalid:   true,
	StopPolicyRejected:  true,
}

func ParseStopReason(s string) (StopReason, error) {
	normalized := StopReason(strings.ToLower(strings.TrimSpace(s)))
	// "schema_failed" appears in persisted artifacts from older runs.
	if normalized == "schema_failed" {
		return StopSchemaFailed, nil
	}
	if stopReasons[normalized] {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid stop reason: %q", s)
}

func (r StopReason) Valid() bool {
	_, err := ParseStopReason(string(r))
	return err == nil
}

// Retryable reports whether the retry ladder may re-attempt a call that
// ended with this reason. Validation and schema failures are deterministic
// and never retried. rate_limited is in the set: throttling is transient
// and clears with backoff.
func (r StopReason) Retryable() bool {
	switch r {
	case StopTimeout, StopRouterFailed, StopProviderFailed, StopRateLimited:
		return true
	default:
		return false
	}
}

// Failure reports whether the reason denotes a failed operation (as opposed
// to success, human handoff, or still-running work).
func (r StopReason) Failure() bool {
	switch r {
	case StopOK, StopNeedsHuman, StopInProgress:
		return false
	default:
		return true
	}
}
