// Package engine is the entry point of the orchestration core: it validates
// a work order, resolves its policy, enforces policy caps, computes the
// idempotency fingerprint, and dispatches to either a single specialist
// call or the swarm pipeline. Every call returns a structured result with a
// stop reason; an uncaught panic escaping this boundary is a bug.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/hive/internal/policy"
	"github.com/danshapiro/hive/internal/prompt"
	"github.com/danshapiro/hive/internal/run"
	"github.com/danshapiro/hive/internal/specialist"
	"github.com/danshapiro/hive/internal/swarm"
	"github.com/danshapiro/hive/internal/workorder"
)

// Options wires an Engine. Policies and Keyer are required; everything else
// has working defaults. All dependencies are instance-owned: two engines
// never share caches or registries.
type Options struct {
	Policies *policy.Store
	Keyer    *workorder.Keyer
	Caller   *specialist.Caller
	Logger   *slog.Logger

	// EnableLadder turns on the retry ladder for all dispatched calls.
	EnableLadder bool
}

type Engine struct {
	policies     *policy.Store
	keyer        *workorder.Keyer
	caller       *specialist.Caller
	orch         *swarm.Orchestrator
	logger       *slog.Logger
	enableLadder bool
}

func New(opts Options) (*Engine, error) {
	if opts.Policies == nil {
		return nil, fmt.Errorf("policy store is required")
	}
	if opts.Keyer == nil {
		return nil, fmt.Errorf("idempotency keyer is required")
	}
	if opts.Caller == nil {
		return nil, fmt.Errorf("specialist caller is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		policies:     opts.Policies,
		keyer:        opts.Keyer,
		caller:       opts.Caller,
		orch:         swarm.New(opts.Caller, logger),
		logger:       logger,
		enableLadder: opts.EnableLadder,
	}, nil
}

// ExecuteJSON decodes caller-supplied bytes and executes the order. Any
// decode or validation failure, including unknown top-level keys, is an
// invalid_request result, never an error.
func (e *Engine) ExecuteJSON(ctx context.Context, b []byte) run.WorkResult {
	wo, err := workorder.Decode(b)
	if err != nil {
		e.logger.Warn("rejecting malformed work order", "error", err)
		return run.NewResult(run.StopInvalidRequest, newTraceID(), nil)
	}
	return e.Execute(ctx, wo)
}

// Execute runs one validated work order end to end.
func (e *Engine) Execute(ctx context.Context, wo *workorder.WorkOrder) (res run.WorkResult) {
	traceID := newTraceID()
	if wo != nil && wo.Trace.JobID != "" {
		traceID = wo.Trace.JobID
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine panicked", "trace_id", traceID, "panic", r)
			res = run.NewResult(run.StopProviderFailed, traceID, nil)
		}
	}()

	if err := wo.Validate(); err != nil {
		e.logger.Warn("rejecting invalid work order", "trace_id", traceID, "error", err)
		return run.NewResult(run.StopInvalidRequest, traceID, nil)
	}

	pol, reason := e.policies.Resolve(wo.PolicyID)
	if reason != run.StopOK {
		e.logger.Warn("policy resolution failed", "trace_id", traceID, "policy_id", wo.PolicyID, "reason", reason)
		return run.NewResult(reason, traceID, nil)
	}

	if reason := checkCaps(wo, pol); reason != run.StopOK {
		e.logger.Warn("work order exceeds policy caps",
			"trace_id", traceID, "policy_id", pol.ID, "reason", reason)
		return run.NewResult(reason, traceID, nil)
	}

	fingerprint, err := e.keyer.Key(wo)
	if err != nil {
		e.logger.Error("idempotency key computation failed", "trace_id", traceID, "error", err)
		return run.NewResult(run.StopInvalidRequest, traceID, nil)
	}
	trace := specialist.TraceInfo{TraceID: traceID, Fingerprint: fingerprint}

	if pol.Swarm.Enabled {
		return e.orch.Run(ctx, swarm.Input{
			Policy:       pol,
			Order:        wo,
			Trace:        trace,
			EnableLadder: e.enableLadder,
		})
	}
	return e.single(ctx, wo, pol, trace)
}

// single dispatches one generalist call for swarm-disabled policies.
func (e *Engine) single(ctx context.Context, wo *workorder.WorkOrder, pol *policy.Policy, trace specialist.TraceInfo) run.WorkResult {
	out := e.caller.CallWithRetry(ctx, specialist.CallInput{
		Role:    prompt.RoleGeneralist,
		Config:  *pol.Single,
		Input:   wo.Inputs,
		Trace:   trace,
		Require: pol.Routing.Required,
		Kind:    run.SingleKind(prompt.RoleGeneralist),
	}, e.enableLadder)

	res := run.NewResult(out.StopReason, trace.TraceID, []run.Artifact{out.Artifact})
	res.Fingerprint = trace.Fingerprint
	res.TotalCostUSD = out.Meta.CostUSD
	return res
}

// checkCaps rejects orders whose constraints exceed what the policy allows,
// and orders whose round counter has already reached the round cap.
func checkCaps(wo *workorder.WorkOrder, pol *policy.Policy) run.StopReason {
	if pol.Caps.MaxRounds > 0 && wo.Constraints.MaxRounds > pol.Caps.MaxRounds {
		return run.StopPolicyRejected
	}
	if pol.Caps.CostCapUSD > 0 && wo.Constraints.CostCapUSD > pol.Caps.CostCapUSD {
		return run.StopPolicyRejected
	}
	if pol.Caps.MaxTokensTotal > 0 && wo.Constraints.MaxTokensTotal > pol.Caps.MaxTokensTotal {
		return run.StopPolicyRejected
	}
	if pol.Caps.MaxRounds > 0 && wo.Trace.Round >= pol.Caps.MaxRounds {
		return run.StopRoundCapHit
	}
	return run.StopOK
}

func newTraceID() string {
	return ulid.Make().String()
}
