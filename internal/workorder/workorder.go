// Package workorder defines the unit of requested work and its idempotency
// fingerprint. A work order is validated once at the engine boundary and is
// treated as immutable afterward.
package workorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Constraints are the caller's budget limits for one work order. They are
// checked against policy caps before any model call is made.
type Constraints struct {
	MaxRounds      int     `json:"maxRounds"`
	CostCapUSD     float64 `json:"costCapUsd"`
	MaxTokensTotal int     `json:"maxTokensTotal"`
}

// Trace carries request-scoped metadata. Trace fields never affect the
// idempotency key.
type Trace struct {
	JobID string `json:"jobId,omitempty"`
	Round int    `json:"round,omitempty"`
}

// WorkOrder is the declarative request submitted to the engine.
//
// CORE fields (Version, Tenant, Scope, PolicyID, Inputs, Constraints) are
// semantically significant and feed the idempotency key. Trace, Audit and
// Extensions do not. Only Extensions may carry keys the engine does not
// recognize; an unknown top-level key is a validation error.
type WorkOrder struct {
	Version     int            `json:"version"`
	Tenant      string         `json:"tenant"`
	Scope       string         `json:"scope"`
	PolicyID    string         `json:"policyId"`
	Inputs      map[string]any `json:"inputs"`
	Constraints Constraints    `json:"constraints"`

	Trace      Trace          `json:"trace,omitempty"`
	Audit      bool           `json:"audit,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Decode parses a work order from JSON, rejecting unknown top-level keys and
// trailing documents. It is the only supported path from caller bytes to a
// WorkOrder value.
func Decode(b []byte) (*WorkOrder, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	var wo WorkOrder
	if err := dec.Decode(&wo); err != nil {
		return nil, fmt.Errorf("decode work order: %w", err)
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("decode work order: multiple top-level values")
		}
		return nil, fmt.Errorf("decode work order: %w", err)
	}
	if err := wo.Validate(); err != nil {
		return nil, err
	}
	return &wo, nil
}

func (wo *WorkOrder) Validate() error {
	if wo == nil {
		return fmt.Errorf("work order is nil")
	}
	if wo.Version <= 0 {
		return fmt.Errorf("version must be >= 1")
	}
	if strings.TrimSpace(wo.Tenant) == "" {
		return fmt.Errorf("tenant is required")
	}
	if strings.TrimSpace(wo.Scope) == "" {
		return fmt.Errorf("scope is required")
	}
	if strings.TrimSpace(wo.PolicyID) == "" {
		return fmt.Errorf("policyId is required")
	}
	if wo.Constraints.MaxRounds < 0 {
		return fmt.Errorf("constraints.maxRounds must be >= 0")
	}
	if wo.Constraints.CostCapUSD < 0 {
		return fmt.Errorf("constraints.costCapUsd must be >= 0")
	}
	if wo.Constraints.MaxTokensTotal < 0 {
		return fmt.Errorf("constraints.maxTokensTotal must be >= 0")
	}
	// Inputs must round-trip as JSON; a channel or function smuggled in via
	// the map breaks fingerprinting and persistence.
	if wo.Inputs != nil {
		if _, err := json.Marshal(wo.Inputs); err != nil {
			return fmt.Errorf("inputs are not JSON-serializable: %w", err)
		}
	}
	if wo.Extensions != nil {
		if _, err := json.Marshal(wo.Extensions); err != nil {
			return fmt.Errorf("extensions are not JSON-serializable: %w", err)
		}
	}
	return nil
}
