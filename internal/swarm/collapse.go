package swarm

import (
	"fmt"
	"strings"

	"github.com/danshapiro/hive/internal/run"
)

// CollapseInput is everything the collapse decision may look at. Extensions
// carry experimental fields forwarded from the work order; they are
// sanitized before they reach the customer-facing payload.
type CollapseInput struct {
	Craft      run.SpecialistOutput
	Critic     run.SpecialistOutput
	Extensions map[string]any
}

// CollapseResult is the synthesized customer decision.
type CollapseResult struct {
	StopReason run.StopReason
	Payload    *run.CollapsePayload
	Extensions map[string]any
}

// forbiddenExtensionKeys are debug/internal field names that must never
// reach a customer-facing payload. Matching is case-insensitive.
var forbiddenExtensionKeys = map[string]bool{
	"prompt":    true,
	"system":    true,
	"provider":  true,
	"stack":     true,
	"traceback": true,
	"error":     true,
}

// Collapse turns craft and critic output into one customer-safe decision.
// It is pure: no model calls, no clock, no randomness. Structurally equal
// inputs always produce deeply equal results.
//
// The decision is ok iff the craft call succeeded, the critic call
// succeeded, the critic passed the output, and at least one change was
// proposed. Anything else is a human-review handoff with a nil payload.
func Collapse(in CollapseInput) CollapseResult {
	ext := sanitizeExtensions(in.Extensions)

	craft, craftOK := in.Craft.Artifact.Payload.(run.CraftPayload)
	critic, criticOK := in.Critic.Artifact.Payload.(run.CriticPayload)

	ok := in.Craft.StopReason == run.StopOK && craftOK &&
		in.Critic.StopReason == run.StopOK && criticOK &&
		critic.Pass &&
		len(craft.ProposedChanges) > 0

	if !ok {
		return CollapseResult{StopReason: run.StopNeedsHuman, Payload: nil, Extensions: ext}
	}

	risks := unionStrings(craft.Risks, critic.Risks)
	assumptions := unionStrings(craft.Assumptions, critic.Assumptions)

	highCount := 0
	for _, issue := range critic.Issues {
		if strings.EqualFold(issue.Severity, "high") {
			highCount++
		}
	}

	payload := &run.CollapsePayload{
		ProposedChanges: append([]run.ProposedChange(nil), craft.ProposedChanges...),
		Risks:           risks,
		Assumptions:     assumptions,
		Recommendation:  recommendation(len(craft.ProposedChanges), len(critic.Issues)),
		CriticSummary: run.CriticSummary{
			IssueCount: len(critic.Issues),
			HighCount:  highCount,
		},
	}
	return CollapseResult{StopReason: run.StopOK, Payload: payload, Extensions: ext}
}

func recommendation(changeCount, issueCount int) string {
	if issueCount == 0 {
		return fmt.Sprintf("Apply all %d proposed changes; the review found no outstanding issues.", changeCount)
	}
	return fmt.Sprintf("Apply the %d proposed changes after addressing the %d issues noted by review.", changeCount, issueCount)
}

// unionStrings deduplicates while preserving order, craft items first.
func unionStrings(first, second []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, lst := range [][]string{first, second} {
		for _, s := range lst {
			key := strings.TrimSpace(s)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

func sanitizeExtensions(ext map[string]any) map[string]any {
	if ext == nil {
		return nil
	}
	out := make(map[string]any, len(ext))
	for k, v := range ext {
		if forbiddenExtensionKeys[strings.ToLower(strings.TrimSpace(k))] {
			continue
		}
		out[k] = v
	}
	return out
}
