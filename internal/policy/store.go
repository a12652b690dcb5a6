package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danshapiro/hive/internal/run"
)

// Store is the in-memory policy registry. It is written only during boot
// registration; after that, Resolve is a read-only lookup safe for
// unsynchronized concurrent use.
type Store struct {
	schema   *jsonschema.Schema
	logger   *slog.Logger
	policies map[string]*Policy
	invalid  map[string]bool
}

func NewStore(logger *slog.Logger) (*Store, error) {
	schema, err := compilePolicySchema()
	if err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		schema:   schema,
		logger:   logger,
		policies: map[string]*Policy{},
		invalid:  map[string]bool{},
	}, nil
}

// Register validates and installs policies. In strict mode the first invalid
// policy fails registration (boot should fail fast); otherwise invalid
// policies are skipped with a logged warning. Later registrations of an id
// replace earlier ones, so the effective set is deterministic for a given
// input order.
func (s *Store) Register(policies []Policy, strict bool) error {
	for i := range policies {
		p := policies[i]
		if err := s.validate(&p); err != nil {
			if strict {
				return fmt.Errorf("policy %q: %w", p.ID, err)
			}
			s.logger.Warn("skipping invalid policy", "policy_id", p.ID, "error", err)
			if p.ID != "" {
				s.invalid[p.ID] = true
			}
			continue
		}
		p.normalize()
		s.policies[p.ID] = &p
		delete(s.invalid, p.ID)
	}
	return nil
}

// Resolve looks up a policy by id. The second return is run.StopOK on
// success, policy_invalid for an id that was registered but failed
// validation, and policy_not_found otherwise. Repeated resolution of the
// same id returns the same object; callers must not mutate it.
func (s *Store) Resolve(id string) (*Policy, run.StopReason) {
	p, ok := s.policies[id]
	if !ok {
		if s.invalid[id] {
			return nil, run.StopPolicyInvalid
		}
		return nil, run.StopPolicyNotFound
	}
	return p, run.StopOK
}

// IDs returns the registered policy ids (unordered).
func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.policies))
	for id := range s.policies {
		out = append(out, id)
	}
	return out
}

func (s *Store) validate(p *Policy) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return p.validateSemantics()
}
