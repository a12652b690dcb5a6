// Package swarm runs the multi-specialist pipeline: plan, one craft call
// per configured role, a critic review, and a deterministic collapse into
// the customer-facing decision. Stages are strictly sequential within a
// run; the artifact slot order never changes, even under partial failure.
package swarm

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/danshapiro/hive/internal/policy"
	"github.com/danshapiro/hive/internal/prompt"
	"github.com/danshapiro/hive/internal/run"
	"github.com/danshapiro/hive/internal/specialist"
	"github.com/danshapiro/hive/internal/workorder"
)

type Orchestrator struct {
	caller *specialist.Caller
	logger *slog.Logger
}

func New(caller *specialist.Caller, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{caller: caller, logger: logger}
}

// Input is one swarm run request. The policy has already been resolved and
// cap-checked by the engine.
type Input struct {
	Policy       *policy.Policy
	Order        *workorder.WorkOrder
	Trace        specialist.TraceInfo
	EnableLadder bool
}

// runState is the per-run accumulator. It is owned exclusively by one Run
// invocation and never shared.
type runState struct {
	artifacts  []run.Artifact
	warnings   []string
	totalCost  float64
	totalToken int

	// halt is set when a budget cap trips: no further calls are issued,
	// remaining slots become skipped placeholders.
	halt run.StopReason
	// abort is set on fail_fast specialist failure.
	abort run.StopReason
}

func (s *runState) halted() bool { return s.halt != "" || s.abort != "" }

func (s *runState) skipReason() run.StopReason {
	if s.halt != "" {
		return s.halt
	}
	return s.abort
}

// Run executes the pipeline. It never panics across its boundary: a panic
// in any stage is folded into a provider_failed result carrying whatever
// artifacts were produced before it.
func (o *Orchestrator) Run(ctx context.Context, in Input) (res run.WorkResult) {
	st := &runState{}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("swarm run panicked", "trace_id", in.Trace.TraceID, "panic", r)
			res = run.NewResult(run.StopProviderFailed, in.Trace.TraceID, st.artifacts)
			res.Fingerprint = in.Trace.Fingerprint
			res.TotalCostUSD = st.totalCost
			res.Warnings = st.warnings
		}
	}()

	if in.Policy == nil || !in.Policy.Swarm.Enabled {
		return run.NewResult(run.StopInvalidRequest, in.Trace.TraceID, nil)
	}

	craftRoles := craftRoleNames(in.Policy.Swarm.Roles)
	st.artifacts = append(st.artifacts, o.planStage(ctx, in, st, craftRoles))

	craftOutputs := o.craftStage(ctx, in, st, craftRoles)
	criticOut := o.criticStage(ctx, in, st, craftOutputs)

	collapsed := Collapse(CollapseInput{
		Craft:      combineCraft(craftOutputs, in.Trace.Fingerprint),
		Critic:     criticOut,
		Extensions: in.Order.Extensions,
	})
	st.artifacts = append(st.artifacts, collapseArtifact(collapsed, in.Trace.Fingerprint))

	reason := collapsed.StopReason
	if st.halt != "" {
		reason = st.halt
	} else if st.abort != "" {
		reason = st.abort
	}

	res = run.NewResult(reason, in.Trace.TraceID, st.artifacts)
	res.Fingerprint = in.Trace.Fingerprint
	res.TotalCostUSD = st.totalCost
	res.Warnings = st.warnings
	res.Extensions = collapsed.Extensions
	return res
}

// planStage produces the plan artifact. Without a configured planner role
// the plan is model-free, fully determined by the policy's role table; with
// one, the planner is invoked and a planner failure falls back to the
// model-free plan with a recorded warning rather than failing the run.
func (o *Orchestrator) planStage(ctx context.Context, in Input, st *runState, craftRoles []string) run.Artifact {
	fallback := run.Artifact{
		Kind: run.KindPlan,
		Payload: run.PlanPayload{
			Objective: in.Order.Scope,
			Roles:     craftRoles,
			Stages:    planStages(craftRoles),
		},
	}
	rc, ok := in.Policy.Swarm.Roles[prompt.RolePlanner]
	if !ok {
		return fallback
	}

	out := o.caller.CallWithRetry(ctx, specialist.CallInput{
		Role:    prompt.RolePlanner,
		Config:  rc,
		Input:   in.Order.Inputs,
		Trace:   in.Trace,
		Require: in.Policy.Routing.Required,
		Kind:    run.KindPlan,
	}, in.EnableLadder)
	o.account(in, st, prompt.RolePlanner, rc, out)

	if out.StopReason != run.StopOK {
		st.warnings = append(st.warnings,
			"planner failed: "+string(out.StopReason)+"; using policy-derived plan")
		o.logger.Warn("planner role failed, using policy-derived plan",
			"reason", out.StopReason, "trace_id", in.Trace.TraceID)
		return fallback
	}
	return out.Artifact
}

// craftStage invokes each configured craft role once, in sorted role order,
// honoring budget caps and the policy failure mode.
func (o *Orchestrator) craftStage(ctx context.Context, in Input, st *runState, roles []string) map[string]run.SpecialistOutput {
	outputs := make(map[string]run.SpecialistOutput, len(roles))
	for _, role := range roles {
		if st.halted() {
			st.artifacts = append(st.artifacts, skippedArtifact(run.SpecialistKind(role), st.skipReason()))
			continue
		}
		rc := in.Policy.Swarm.Roles[role]
		out := o.caller.CallWithRetry(ctx, specialist.CallInput{
			Role:    role,
			Config:  rc,
			Input:   in.Order.Inputs,
			Trace:   in.Trace,
			Require: in.Policy.Routing.Required,
		}, in.EnableLadder)

		st.artifacts = append(st.artifacts, out.Artifact)
		outputs[role] = out
		o.account(in, st, role, rc, out)

		if out.StopReason != run.StopOK && !st.halted() {
			if in.Policy.Swarm.FailureMode == policy.FailFast {
				st.abort = out.StopReason
				o.logger.Warn("craft role failed, aborting run",
					"role", role, "reason", out.StopReason, "trace_id", in.Trace.TraceID)
			} else {
				st.warnings = append(st.warnings,
					"craft role "+role+" failed: "+string(out.StopReason))
				o.logger.Warn("craft role failed, continuing",
					"role", role, "reason", out.StopReason, "trace_id", in.Trace.TraceID)
			}
		}
	}
	return outputs
}

func (o *Orchestrator) criticStage(ctx context.Context, in Input, st *runState, crafts map[string]run.SpecialistOutput) run.SpecialistOutput {
	if st.halted() {
		reason := st.skipReason()
		st.artifacts = append(st.artifacts, skippedArtifact(run.KindCritic, reason))
		return run.SpecialistOutput{
			Artifact:   skippedArtifact(run.KindCritic, reason),
			StopReason: reason,
		}
	}

	rc := in.Policy.Swarm.Roles[prompt.RoleCritic]
	input := criticInput(in.Order.Inputs, crafts)
	out := o.caller.CallWithRetry(ctx, specialist.CallInput{
		Role:    prompt.RoleCritic,
		Config:  rc,
		Input:   input,
		Trace:   in.Trace,
		Require: in.Policy.Routing.Required,
	}, in.EnableLadder)

	st.artifacts = append(st.artifacts, out.Artifact)
	o.account(in, st, prompt.RoleCritic, rc, out)
	return out
}

// account adds one call's cost and tokens to the run accumulator and trips
// the halt latch when a cap is crossed. Budget overruns never claw back the
// call that crossed the line; they only stop further calls.
func (o *Orchestrator) account(in Input, st *runState, role string, rc policy.RoleConfig, out run.SpecialistOutput) {
	st.totalCost += out.Meta.CostUSD
	st.totalToken += out.Meta.InputTokens + out.Meta.OutputTokens

	// The effective run budget is the tighter of the policy's swarm cap and
	// the order's own cost cap.
	capUSD := in.Policy.Swarm.CostCapUSD
	if oc := in.Order.Constraints.CostCapUSD; oc > 0 && (capUSD == 0 || oc < capUSD) {
		capUSD = oc
	}
	switch {
	case rc.CostCapUSD > 0 && out.Meta.CostUSD > rc.CostCapUSD:
		st.halt = run.StopCostCapExceeded
		o.logger.Warn("per-role cost cap exceeded",
			"role", role, "cost_usd", out.Meta.CostUSD, "cap_usd", rc.CostCapUSD, "trace_id", in.Trace.TraceID)
	case capUSD > 0 && st.totalCost > capUSD:
		st.halt = run.StopCostCapExceeded
		o.logger.Warn("swarm cost cap exceeded",
			"total_usd", st.totalCost, "cap_usd", capUSD, "trace_id", in.Trace.TraceID)
	case in.Order.Constraints.MaxTokensTotal > 0 && st.totalToken > in.Order.Constraints.MaxTokensTotal:
		// The vocabulary has no token-specific reason; token budgets are
		// part of the cost budget family.
		st.halt = run.StopCostCapExceeded
		o.logger.Warn("token budget exceeded",
			"total_tokens", st.totalToken, "cap", in.Order.Constraints.MaxTokensTotal, "trace_id", in.Trace.TraceID)
	}
}

// combineCraft merges the successful craft outputs, in sorted role order,
// into the single craft view the collapse decision takes. With no
// successful craft the combined view carries the first failure reason.
func combineCraft(outputs map[string]run.SpecialistOutput, fingerprint string) run.SpecialistOutput {
	roles := make([]string, 0, len(outputs))
	for role := range outputs {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var merged run.CraftPayload
	anyOK := false
	firstFailure := run.StopProviderFailed
	seenFailure := false
	for _, role := range roles {
		out := outputs[role]
		if out.StopReason != run.StopOK {
			if !seenFailure {
				firstFailure = out.StopReason
				seenFailure = true
			}
			continue
		}
		p, ok := out.Artifact.Payload.(run.CraftPayload)
		if !ok {
			continue
		}
		anyOK = true
		merged.ProposedChanges = append(merged.ProposedChanges, p.ProposedChanges...)
		merged.Risks = append(merged.Risks, p.Risks...)
		merged.Assumptions = append(merged.Assumptions, p.Assumptions...)
	}

	if !anyOK {
		return run.SpecialistOutput{
			Artifact: run.Artifact{
				Kind:    run.SpecialistKind("craft"),
				Payload: run.FailurePayload{OK: false, StopReason: firstFailure, Fingerprint: fingerprint},
			},
			StopReason: firstFailure,
		}
	}
	return run.SpecialistOutput{
		Artifact:   run.Artifact{Kind: run.SpecialistKind("craft"), Payload: merged},
		StopReason: run.StopOK,
	}
}

func criticInput(orderInputs map[string]any, crafts map[string]run.SpecialistOutput) map[string]any {
	roles := make([]string, 0, len(crafts))
	for role := range crafts {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	proposals := make([]any, 0, len(roles))
	for _, role := range roles {
		out := crafts[role]
		if out.StopReason != run.StopOK {
			continue
		}
		if p, ok := out.Artifact.Payload.(run.CraftPayload); ok {
			proposals = append(proposals, map[string]any{
				"role":            role,
				"proposedChanges": p.ProposedChanges,
				"risks":           p.Risks,
				"assumptions":     p.Assumptions,
			})
		}
	}
	return map[string]any{
		"inputs":    orderInputs,
		"proposals": proposals,
	}
}

func collapseArtifact(c CollapseResult, fingerprint string) run.Artifact {
	if c.StopReason == run.StopOK && c.Payload != nil {
		return run.Artifact{
			Kind:         run.KindCollapse,
			Payload:      *c.Payload,
			CustomerSafe: true,
		}
	}
	return run.Artifact{
		Kind:    run.KindCollapse,
		Payload: run.FailurePayload{OK: false, StopReason: c.StopReason, Fingerprint: fingerprint},
	}
}

func skippedArtifact(kind run.ArtifactKind, because run.StopReason) run.Artifact {
	return run.Artifact{
		Kind:    kind,
		Payload: run.SkippedPayload{Skipped: true, Because: because},
	}
}

// craftRoleNames returns the configured roles that participate in the craft
// stage, sorted for deterministic artifact order. The critic role is its
// own stage; a planner role, if configured, drives the plan step.
func craftRoleNames(roles map[string]policy.RoleConfig) []string {
	out := make([]string, 0, len(roles))
	for role := range roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case prompt.RoleCritic, prompt.RolePlanner:
			continue
		}
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func planStages(craftRoles []string) []string {
	stages := make([]string, 0, len(craftRoles)+3)
	stages = append(stages, "plan")
	for _, role := range craftRoles {
		stages = append(stages, "craft."+role)
	}
	stages = append(stages, "critic", "collapse")
	return stages
}
