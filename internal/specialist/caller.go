package specialist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/hive/internal/policy"
	"github.com/danshapiro/hive/internal/prompt"
	"github.com/danshapiro/hive/internal/run"
)

// Caller invokes specialists through named transports. It holds no mutable
// per-call state; one Caller serves concurrent runs.
type Caller struct {
	transports map[string]Transport
	prompts    *prompt.Registry
	schemas    *roleSchemas
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Options configures a Caller. Transports maps the transport names used in
// policy role configs to injected model-call capabilities; the empty name is
// the default transport.
type Options struct {
	Transports map[string]Transport
	Prompts    *prompt.Registry
	Logger     *slog.Logger

	// Test hooks. Nil means real clock and real sleep.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewCaller(opts Options) (*Caller, error) {
	if len(opts.Transports) == 0 {
		return nil, fmt.Errorf("at least one transport is required")
	}
	schemas, err := compileRoleSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile role schemas: %w", err)
	}
	c := &Caller{
		transports: opts.Transports,
		prompts:    opts.Prompts,
		schemas:    schemas,
		logger:     opts.Logger,
		now:        opts.Now,
		sleep:      opts.Sleep,
	}
	if c.prompts == nil {
		c.prompts = prompt.NewRegistry()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	return c, nil
}

// TraceInfo identifies the run a call belongs to. Fingerprint is the work
// order's idempotency key; it is the only run identity a failure artifact
// may carry.
type TraceInfo struct {
	TraceID     string
	Fingerprint string
}

// CallInput is one specialist invocation request.
type CallInput struct {
	Role   string
	Config policy.RoleConfig
	Input  map[string]any
	Trace  TraceInfo

	// Require lists capabilities the policy demands of the serving model.
	Require []string

	// Kind overrides the artifact kind; empty means swarm.specialist.<role>.
	Kind run.ArtifactKind
}

func (in CallInput) artifactKind() run.ArtifactKind {
	if in.Kind != "" {
		return in.Kind
	}
	return run.SpecialistKind(in.Role)
}

// Call makes exactly one attempt: resolve instructions, route to the
// transport, bound the request by the role timeout, classify the outcome.
// It never returns an error; everything is folded into the stop reason.
func (c *Caller) Call(ctx context.Context, in CallInput) run.SpecialistOutput {
	return c.callOnce(ctx, in, in.Config.Model, in.Config.TimeoutMS)
}

func (c *Caller) callOnce(ctx context.Context, in CallInput, model string, timeoutMS int) run.SpecialistOutput {
	meta := run.CallMeta{Model: model, RequestID: ulid.Make().String()}

	if missing := missingCapability(in.Require, in.Config.Capabilities); missing != "" {
		c.logger.Warn("capability routing failed",
			"role", in.Role, "model", model, "missing", missing, "trace_id", in.Trace.TraceID)
		return c.failure(in, meta, run.StopRouterFailed)
	}
	transport, ok := c.transports[in.Config.Transport]
	if !ok {
		// Fall back to the default transport when one is registered.
		transport, ok = c.transports[""]
	}
	if !ok {
		c.logger.Warn("no transport for role",
			"role", in.Role, "transport", in.Config.Transport, "trace_id", in.Trace.TraceID)
		return c.failure(in, meta, run.StopRouterFailed)
	}

	instructions, known := c.prompts.Instructions(in.Role)
	if !known {
		c.logger.Warn("unknown role, using generalist instructions", "role", in.Role, "trace_id", in.Trace.TraceID)
	}

	callCtx := ctx
	cancel := func() {}
	if timeoutMS > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	}
	defer cancel()

	started := c.now()
	resp, err := transport.Complete(callCtx, Request{
		Role:         in.Role,
		Model:        model,
		Instructions: instructions,
		Input:        in.Input,
		TraceID:      in.Trace.TraceID,
		RequestID:    meta.RequestID,
	})
	meta.LatencyMS = c.now().Sub(started).Milliseconds()

	if err != nil {
		return c.failure(in, meta, classifyTransportError(callCtx, err))
	}
	meta.InputTokens = resp.Usage.InputTokens
	meta.OutputTokens = resp.Usage.OutputTokens
	meta.CostUSD = resp.CostUSD
	if resp.Model != "" {
		meta.Model = resp.Model
	}

	payload, reason := c.decodePayload(in.Role, resp.JSON)
	if reason != run.StopOK {
		return c.failure(in, meta, reason)
	}
	return run.SpecialistOutput{
		Artifact: run.Artifact{
			Kind:    in.artifactKind(),
			Payload: payload,
		},
		Meta:       meta,
		StopReason: run.StopOK,
	}
}

// decodePayload parses and schema-checks the model's JSON output, returning
// the typed payload for the role.
func (c *Caller) decodePayload(role string, raw json.RawMessage) (run.ArtifactPayload, run.StopReason) {
	if len(raw) == 0 {
		return nil, run.StopJSONParseFailed
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, run.StopJSONParseFailed
	}
	if err := c.schemas.forRole(role).Validate(doc); err != nil {
		return nil, run.StopSchemaFailed
	}
	switch strings.ToLower(strings.TrimSpace(role)) {
	case prompt.RoleCritic:
		var p run.CriticPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, run.StopJSONParseFailed
		}
		return p, run.StopOK
	case prompt.RolePlanner:
		var p run.PlanPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, run.StopJSONParseFailed
		}
		return p, run.StopOK
	case prompt.RoleGeneralist:
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, run.StopSchemaFailed
		}
		return run.JSONPayload(obj), run.StopOK
	default:
		// Every other role is a craft specialist.
		var p run.CraftPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, run.StopJSONParseFailed
		}
		return p, run.StopOK
	}
}

// failure produces the only artifact shape allowed for a non-ok call: no
// prompt text, no provider internals, just the reason and the fingerprint.
func (c *Caller) failure(in CallInput, meta run.CallMeta, reason run.StopReason) run.SpecialistOutput {
	return run.SpecialistOutput{
		Artifact: run.Artifact{
			Kind: in.artifactKind(),
			Payload: run.FailurePayload{
				OK:          false,
				StopReason:  reason,
				Fingerprint: in.Trace.Fingerprint,
			},
		},
		Meta:       meta,
		StopReason: reason,
	}
}

func classifyTransportError(ctx context.Context, err error) run.StopReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return run.StopTimeout
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return run.StopRateLimited
	}
	return run.StopProviderFailed
}

func missingCapability(required, have []string) string {
	if len(required) == 0 {
		return ""
	}
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[strings.ToLower(strings.TrimSpace(c))] = true
	}
	for _, r := range required {
		if !set[strings.ToLower(strings.TrimSpace(r))] {
			return r
		}
	}
	return ""
}
