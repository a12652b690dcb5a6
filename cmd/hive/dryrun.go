package main

import (
	"context"
	"encoding/json"

	"github.com/danshapiro/hive/internal/prompt"
	"github.com/danshapiro/hive/internal/specialist"
)

// dryRunTransport returns canned, schema-valid payloads per role so a full
// pipeline can be exercised offline. Costs and token counts are zero; the
// output is deterministic.
type dryRunTransport struct{}

func (t *dryRunTransport) Complete(_ context.Context, req specialist.Request) (specialist.Response, error) {
	var payload any
	switch req.Role {
	case prompt.RoleCritic:
		payload = map[string]any{
			"pass":   true,
			"issues": []any{},
		}
	case prompt.RolePlanner:
		payload = map[string]any{
			"objective": "dry run",
			"stages":    []string{"plan", "craft", "critic", "collapse"},
		}
	default:
		payload = map[string]any{
			"proposedChanges": []any{
				map[string]any{
					"targetKey":  "layout.hero",
					"change":     "dry-run placeholder change",
					"confidence": 0.5,
				},
			},
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return specialist.Response{}, err
	}
	return specialist.Response{JSON: b, Model: req.Model}, nil
}
