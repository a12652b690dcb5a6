package run

import "fmt"

// CallMeta is the accounting record for one model call.
type CallMeta struct {
	Model        string  `json:"model"`
	RequestID    string  `json:"requestId"`
	LatencyMS    int64   `json:"latencyMs"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
	Attempts     int     `json:"attempts,omitempty"`
}

// SpecialistOutput is the result of one specialist call after the retry
// ladder has settled.
type SpecialistOutput struct {
	Artifact   Artifact   `json:"artifact"`
	Meta       CallMeta   `json:"meta"`
	StopReason StopReason `json:"stopReason"`
}

type Status string

const (
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusNeedsHuman Status = "needs_human"
	StatusRejected   Status = "rejected"
)

// WorkResult is the engine's return value. StopReason is always present and
// consistent with Status.
type WorkResult struct {
	Status       Status     `json:"status"`
	StopReason   StopReason `json:"stopReason"`
	NeedsHuman   bool       `json:"needsHuman"`
	TraceID      string     `json:"traceId"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	Artifacts    []Artifact `json:"artifacts"`
	CustomerSafe bool       `json:"customerSafe"`
	TotalCostUSD float64    `json:"totalCostUsd"`
	Warnings     []string   `json:"warnings,omitempty"`

	// Extensions are the work order's extension fields after sanitization;
	// debug/internal keys never survive into a result.
	Extensions map[string]any `json:"extensions,omitempty"`
}

// statusFor maps a stop reason to its only consistent status.
func statusFor(reason StopReason) Status {
	switch reason {
	case StopOK:
		return StatusSucceeded
	case StopNeedsHuman:
		return StatusNeedsHuman
	case StopInvalidRequest, StopPolicyNotFound, StopPolicyInvalid, StopPolicyRejected:
		return StatusRejected
	default:
		return StatusFailed
	}
}

// NewResult builds a WorkResult with a consistent status/stop-reason pair.
func NewResult(reason StopReason, traceID string, artifacts []Artifact) WorkResult {
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	safe := false
	for _, a := range artifacts {
		if a.CustomerSafe {
			safe = true
			break
		}
	}
	return WorkResult{
		Status:       statusFor(reason),
		StopReason:   reason,
		NeedsHuman:   reason == StopNeedsHuman,
		TraceID:      traceID,
		Artifacts:    artifacts,
		CustomerSafe: safe,
	}
}

func (r WorkResult) Validate() error {
	if !r.StopReason.Valid() {
		return fmt.Errorf("stop reason %q not in vocabulary", r.StopReason)
	}
	if want := statusFor(r.StopReason); r.Status != want {
		return fmt.Errorf("status %q inconsistent with stop reason %q (want %q)", r.Status, r.StopReason, want)
	}
	safeCount := 0
	for _, a := range r.Artifacts {
		if err := a.Validate(); err != nil {
			return err
		}
		if a.CustomerSafe {
			safeCount++
		}
	}
	if safeCount > 1 {
		return fmt.Errorf("%d customer-safe artifacts, want at most 1", safeCount)
	}
	return nil
}
