package run

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ArtifactKind tags one pipeline step's output. Specialist artifacts embed
// the role name (swarm.specialist.designer); the other kinds are fixed.
type ArtifactKind string

const (
	KindPlan     ArtifactKind = "swarm.plan"
	KindCritic   ArtifactKind = "swarm.specialist.critic"
	KindCollapse ArtifactKind = "swarm.collapse"

	specialistKindPrefix = "swarm.specialist."
)

func SpecialistKind(role string) ArtifactKind {
	return ArtifactKind(specialistKindPrefix + strings.TrimSpace(role))
}

// SingleKind tags output of single-call dispatch, which is deliberately
// outside the swarm.* namespace: a swarm-disabled policy must produce zero
// swarm-prefixed artifacts.
func SingleKind(role string) ArtifactKind {
	return ArtifactKind("call." + strings.TrimSpace(role))
}

func (k ArtifactKind) IsSpecialist() bool {
	return strings.HasPrefix(string(k), specialistKindPrefix)
}

// ArtifactPayload is the closed set of payload shapes, one per artifact kind.
// Keeping payloads typed makes the artifact-order and customer-safety
// invariants checkable without reflection over loose maps.
type ArtifactPayload interface {
	payloadKind() ArtifactKind
}

// PlanPayload describes the stages the orchestrator intends to run.
type PlanPayload struct {
	Objective string   `json:"objective"`
	Roles     []string `json:"roles"`
	Stages    []string `json:"stages"`
}

func (PlanPayload) payloadKind() ArtifactKind { return KindPlan }

// ProposedChange is one concrete, targeted modification proposed by a
// craft specialist.
type ProposedChange struct {
	TargetKey  string  `json:"targetKey"`
	Change     string  `json:"change"`
	Rationale  string  `json:"rationale,omitempty"`
	Confidence float64 `json:"confidence"`
}

// CraftPayload is a craft specialist's output.
type CraftPayload struct {
	ProposedChanges []ProposedChange `json:"proposedChanges"`
	Risks           []string         `json:"risks,omitempty"`
	Assumptions     []string         `json:"assumptions,omitempty"`
}

func (p CraftPayload) payloadKind() ArtifactKind { return SpecialistKind("craft") }

// CriticIssue is one problem the critic found with the craft output.
type CriticIssue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Fix         string `json:"fix,omitempty"`
}

// CriticPayload is the critic specialist's review of accumulated craft output.
type CriticPayload struct {
	Pass        bool          `json:"pass"`
	Issues      []CriticIssue `json:"issues,omitempty"`
	Risks       []string      `json:"risks,omitempty"`
	Assumptions []string      `json:"assumptions,omitempty"`
}

func (CriticPayload) payloadKind() ArtifactKind { return KindCritic }

// CollapsePayload is the customer-facing decision synthesized from craft and
// critic output. It is the only payload that may be marked customer safe.
type CollapsePayload struct {
	ProposedChanges []ProposedChange `json:"proposedChanges"`
	Risks           []string         `json:"risks,omitempty"`
	Assumptions     []string         `json:"assumptions,omitempty"`
	Recommendation  string           `json:"recommendation"`
	CriticSummary   CriticSummary    `json:"criticSummary"`
}

func (CollapsePayload) payloadKind() ArtifactKind { return KindCollapse }

type CriticSummary struct {
	IssueCount int `json:"issueCount"`
	HighCount  int `json:"highCount"`
}

// JSONPayload carries schema-checked but otherwise free-form output from
// single-call dispatch, where no role-specific shape applies.
type JSONPayload map[string]any

func (JSONPayload) payloadKind() ArtifactKind { return "" }

// FailurePayload is the only payload shape persisted for a non-ok step.
// Nothing from the prompt or the provider response is carried.
type FailurePayload struct {
	OK          bool       `json:"ok"`
	StopReason  StopReason `json:"stopReason"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

func (FailurePayload) payloadKind() ArtifactKind { return "" }

// SkippedPayload fills an artifact slot for a stage that never ran, so the
// fixed plan/craft/critic/collapse slot order survives partial failure.
type SkippedPayload struct {
	Skipped bool       `json:"skipped"`
	Because StopReason `json:"because"`
}

func (SkippedPayload) payloadKind() ArtifactKind { return "" }

// Artifact is one pipeline step's immutable output.
type Artifact struct {
	Kind         ArtifactKind    `json:"kind"`
	Payload      ArtifactPayload `json:"payload"`
	CustomerSafe bool            `json:"customerSafe"`
}

// MarshalJSON flattens the payload interface so persisted artifacts are
// plain JSON objects for the caller's store.
func (a Artifact) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind         ArtifactKind `json:"kind"`
		Payload      any          `json:"payload"`
		CustomerSafe bool         `json:"customerSafe"`
	}
	return json.Marshal(wire{Kind: a.Kind, Payload: a.Payload, CustomerSafe: a.CustomerSafe})
}

// UnmarshalJSON restores the typed payload from a persisted artifact by
// dispatching on kind, with failure and skipped shapes detected by their
// marker fields.
func (a *Artifact) UnmarshalJSON(b []byte) error {
	var wire struct {
		Kind         ArtifactKind    `json:"kind"`
		Payload      json.RawMessage `json:"payload"`
		CustomerSafe bool            `json:"customerSafe"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	a.Kind = wire.Kind
	a.CustomerSafe = wire.CustomerSafe

	var markers struct {
		Skipped *bool `json:"skipped"`
		OK      *bool `json:"ok"`
	}
	if len(wire.Payload) > 0 {
		_ = json.Unmarshal(wire.Payload, &markers)
	}
	switch {
	case markers.Skipped != nil && *markers.Skipped:
		var p SkippedPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case markers.OK != nil && !*markers.OK:
		var p FailurePayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case wire.Kind == KindPlan:
		var p PlanPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case wire.Kind == KindCritic:
		var p CriticPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case wire.Kind == KindCollapse:
		var p CollapsePayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case a.Kind.IsSpecialist():
		var p CraftPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	default:
		var p JSONPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	}
	return nil
}

func (a Artifact) Validate() error {
	if strings.TrimSpace(string(a.Kind)) == "" {
		return fmt.Errorf("artifact kind is empty")
	}
	if a.Payload == nil {
		return fmt.Errorf("artifact %s has nil payload", a.Kind)
	}
	if a.CustomerSafe && a.Kind != KindCollapse {
		return fmt.Errorf("artifact %s may not be customer safe", a.Kind)
	}
	return nil
}
