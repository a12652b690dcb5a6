// Package policy holds the named, versioned execution policies that govern
// caps, routing and swarm wiring for a class of work orders. Policies are
// registered once at process start and are immutable afterward; resolution
// is a pure in-memory lookup.
package policy

import (
	"fmt"
	"strings"
)

// FailureMode controls how the swarm orchestrator reacts to a specialist
// failure mid-run.
type FailureMode string

const (
	FailFast             FailureMode = "fail_fast"
	ContinueWithWarnings FailureMode = "continue_with_warnings"
)

// Caps are the hard limits a policy places on any work order it governs.
type Caps struct {
	MaxRounds      int     `json:"maxRounds" yaml:"max_rounds"`
	CostCapUSD     float64 `json:"costCapUsd" yaml:"cost_cap_usd"`
	MaxTokensTotal int     `json:"maxTokensTotal" yaml:"max_tokens_total"`
}

// Routing lists model capabilities a policy requires or prefers.
type Routing struct {
	Required  []string `json:"required,omitempty" yaml:"required,omitempty"`
	Preferred []string `json:"preferred,omitempty" yaml:"preferred,omitempty"`
}

// Rung is one fallback step of the retry ladder: a substitute model and
// timeout tried when the previous attempt fails with a retryable reason.
type Rung struct {
	Model     string `json:"model" yaml:"model"`
	TimeoutMS int    `json:"timeoutMs,omitempty" yaml:"timeout_ms,omitempty"`
}

// RoleConfig wires one swarm role to a model and transport.
type RoleConfig struct {
	Model        string   `json:"model" yaml:"model"`
	Transport    string   `json:"transport" yaml:"transport"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	CostCapUSD   float64  `json:"costCapUsd,omitempty" yaml:"cost_cap_usd,omitempty"`
	TimeoutMS    int      `json:"timeoutMs" yaml:"timeout_ms"`
	Fallbacks    []Rung   `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// Swarm configures the multi-specialist pipeline for a policy.
type Swarm struct {
	Enabled     bool                  `json:"enabled" yaml:"enabled"`
	CostCapUSD  float64               `json:"costCapUsd,omitempty" yaml:"cost_cap_usd,omitempty"`
	FailureMode FailureMode           `json:"failureMode,omitempty" yaml:"failure_mode,omitempty"`
	Roles       map[string]RoleConfig `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Defaults are logging/presentation knobs a policy may carry. They never
// affect orchestration decisions.
type Defaults struct {
	LogLevel     string `json:"logLevel,omitempty" yaml:"log_level,omitempty"`
	Presentation string `json:"presentation,omitempty" yaml:"presentation,omitempty"`
}

// Policy is a named, versioned bundle of caps, routing and swarm wiring.
// Single is the role wiring used when the swarm is disabled and the engine
// dispatches one specialist call instead of the pipeline.
type Policy struct {
	ID       string      `json:"id" yaml:"id"`
	Version  int         `json:"version" yaml:"version"`
	Caps     Caps        `json:"caps" yaml:"caps"`
	Routing  Routing     `json:"routing,omitempty" yaml:"routing,omitempty"`
	Swarm    Swarm       `json:"swarm,omitempty" yaml:"swarm,omitempty"`
	Single   *RoleConfig `json:"single,omitempty" yaml:"single,omitempty"`
	Defaults Defaults    `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// normalize applies defaults the schema leaves optional.
func (p *Policy) normalize() {
	if p.Swarm.FailureMode == "" {
		p.Swarm.FailureMode = FailFast
	}
	if p.Swarm.Enabled && p.Swarm.CostCapUSD == 0 {
		p.Swarm.CostCapUSD = p.Caps.CostCapUSD
	}
}

func (p *Policy) validateSemantics() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("policy id is required")
	}
	if p.Version < 1 {
		return fmt.Errorf("policy %s: version must be >= 1", p.ID)
	}
	if p.Caps.MaxRounds < 0 || p.Caps.CostCapUSD < 0 || p.Caps.MaxTokensTotal < 0 {
		return fmt.Errorf("policy %s: caps must be >= 0", p.ID)
	}
	switch p.Swarm.FailureMode {
	case "", FailFast, ContinueWithWarnings: // empty is defaulted by normalize
	default:
		return fmt.Errorf("policy %s: invalid failure mode %q (want fail_fast|continue_with_warnings)", p.ID, p.Swarm.FailureMode)
	}
	if p.Swarm.Enabled {
		if len(p.Swarm.Roles) == 0 {
			return fmt.Errorf("policy %s: swarm.enabled requires at least one role", p.ID)
		}
		if _, ok := p.Swarm.Roles["critic"]; !ok {
			return fmt.Errorf("policy %s: swarm.enabled requires a critic role", p.ID)
		}
		craft := 0
		for role := range p.Swarm.Roles {
			if role != "critic" && role != "planner" {
				craft++
			}
		}
		if craft == 0 {
			return fmt.Errorf("policy %s: swarm.enabled requires at least one craft role", p.ID)
		}
		for role, rc := range p.Swarm.Roles {
			if strings.TrimSpace(rc.Model) == "" {
				return fmt.Errorf("policy %s: role %s: model is required", p.ID, role)
			}
			if rc.TimeoutMS <= 0 {
				return fmt.Errorf("policy %s: role %s: timeout_ms must be > 0", p.ID, role)
			}
			if rc.CostCapUSD < 0 {
				return fmt.Errorf("policy %s: role %s: cost_cap_usd must be >= 0", p.ID, role)
			}
			for i, rung := range rc.Fallbacks {
				if strings.TrimSpace(rung.Model) == "" {
					return fmt.Errorf("policy %s: role %s: fallback %d: model is required", p.ID, role, i)
				}
				if rung.TimeoutMS < 0 {
					return fmt.Errorf("policy %s: role %s: fallback %d: timeout_ms must be >= 0", p.ID, role, i)
				}
			}
		}
	} else {
		if p.Single == nil {
			return fmt.Errorf("policy %s: single role config is required when swarm is disabled", p.ID)
		}
		if strings.TrimSpace(p.Single.Model) == "" {
			return fmt.Errorf("policy %s: single.model is required", p.ID)
		}
		if p.Single.TimeoutMS <= 0 {
			return fmt.Errorf("policy %s: single.timeout_ms must be > 0", p.ID)
		}
	}
	return nil
}
