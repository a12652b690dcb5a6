// Package prompt maps role identifiers to the instruction payloads sent
// with each specialist call. The role set is closed: an unknown role falls
// back to the generalist payload rather than silently producing an empty
// instruction, and the fallback is recorded on the registry so callers can
// surface it.
package prompt

import (
	"strings"
	"sync"
)

// Role identifiers understood by the registry. RoleGeneralist doubles as the
// fallback for any role not in the table.
const (
	RolePlanner    = "planner"
	RoleDesigner   = "designer"
	RoleCritic     = "critic"
	RoleGeneralist = "generalist"
)

// Registry holds instruction payloads per role. Instances are constructor
// built and independent; two engines never share registry state.
type Registry struct {
	mu       sync.RWMutex
	byRole   map[string]string
	fallback string
}

// NewRegistry returns a registry seeded with the built-in role table.
func NewRegistry() *Registry {
	generalist := "You are a careful generalist specialist. Produce strictly valid JSON matching the requested shape. Do not invent facts that were not supplied in the input."
	return &Registry{
		byRole: map[string]string{
			RolePlanner:    "You are a planning specialist. Break the objective into the minimal ordered set of stages and name the roles required for each.",
			RoleDesigner:   "You are a design specialist. Propose concrete, implementable changes with target keys, rationale and a calibrated confidence per change.",
			RoleCritic:     "You are a review specialist. Evaluate the proposed changes for correctness, feasibility and unstated risk. Set pass=false when any issue is blocking.",
			RoleGeneralist: generalist,
		},
		fallback: generalist,
	}
}

// Set installs or replaces the instruction payload for a role.
func (r *Registry) Set(role, instructions string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRole[normalizeRole(role)] = instructions
}

// Instructions returns the payload for a role. The second return is false
// when the role is unknown and the generalist fallback was used.
func (r *Registry) Instructions(role string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byRole[normalizeRole(role)]; ok {
		return s, true
	}
	return r.fallback, false
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
