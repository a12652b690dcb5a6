package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/danshapiro/hive/internal/policy"
	"github.com/danshapiro/hive/internal/run"
)

// scriptTransport returns queued outcomes in order, recording the model each
// request asked for. After the script runs out it repeats the last entry.
type scriptTransport struct {
	script []scriptStep
	calls  int
	models []string
}

type scriptStep struct {
	resp  Response
	err   error
	block bool
}

func (s *scriptTransport) Complete(ctx context.Context, req Request) (Response, error) {
	step := s.script[min(s.calls, len(s.script)-1)]
	s.calls++
	s.models = append(s.models, req.Model)
	if step.block {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}
	return step.resp, step.err
}

func goodCraftJSON() json.RawMessage {
	return json.RawMessage(`{
		"proposedChanges": [
			{"targetKey": "hero.headline", "change": "Lead with the outcome per style guide section 3.", "confidence": 0.8}
		]
	}`)
}

func newTestCaller(t *testing.T, transports map[string]Transport) *Caller {
	t.Helper()
	c, err := NewCaller(Options{
		Transports: transports,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new caller: %v", err)
	}
	return c
}

func designerInput() CallInput {
	return CallInput{
		Role:   "designer",
		Config: policy.RoleConfig{Model: "gpt-5", Transport: "openai", TimeoutMS: 5000},
		Input:  map[string]any{"page": "landing"},
		Trace:  TraceInfo{TraceID: "trace-1", Fingerprint: "fp-1"},
	}
}

func TestCall_OKProducesTypedPayload(t *testing.T) {
	tr := &scriptTransport{script: []scriptStep{{
		resp: Response{JSON: goodCraftJSON(), Usage: Usage{InputTokens: 100, OutputTokens: 50}, CostUSD: 0.01},
	}}}
	c := newTestCaller(t, map[string]Transport{"openai": tr})

	out := c.Call(context.Background(), designerInput())
	if out.StopReason != run.StopOK {
		t.Fatalf("stop reason: %s", out.StopReason)
	}
	p, ok := out.Artifact.Payload.(run.CraftPayload)
	if !ok {
		t.Fatalf("payload type: %T", out.Artifact.Payload)
	}
	if len(p.ProposedChanges) != 1 || p.ProposedChanges[0].TargetKey != "hero.headline" {
		t.Fatalf("payload: %+v", p)
	}
	if out.Artifact.Kind != run.SpecialistKind("designer") {
		t.Fatalf("kind: %s", out.Artifact.Kind)
	}
	if out.Meta.CostUSD != 0.01 || out.Meta.InputTokens != 100 {
		t.Fatalf("meta: %+v", out.Meta)
	}
}

func TestCall_Classification(t *testing.T) {
	cases := []struct {
		name   string
		step   scriptStep
		mutate func(*CallInput)
		want   run.StopReason
	}{
		{
			name: "missing capability",
			step: scriptStep{resp: Response{JSON: goodCraftJSON()}},
			mutate: func(in *CallInput) {
				in.Require = []string{"vision"}
			},
			want: run.StopRouterFailed,
		},
		{
			name: "unknown transport",
			step: scriptStep{resp: Response{JSON: goodCraftJSON()}},
			mutate: func(in *CallInput) {
				in.Config.Transport = "nonexistent"
			},
			want: run.StopRouterFailed,
		},
		{
			name: "provider error",
			step: scriptStep{err: &ProviderError{Provider: "openai", StatusCode: 502}},
			want: run.StopProviderFailed,
		},
		{
			name: "plain error",
			step: scriptStep{err: fmt.Errorf("connection reset")},
			want: run.StopProviderFailed,
		},
		{
			name: "rate limited",
			step: scriptStep{err: &RateLimitError{Provider: "openai"}},
			want: run.StopRateLimited,
		},
		{
			name: "timeout",
			step: scriptStep{block: true},
			mutate: func(in *CallInput) {
				in.Config.TimeoutMS = 5
			},
			want: run.StopTimeout,
		},
		{
			name: "empty body",
			step: scriptStep{resp: Response{}},
			want: run.StopJSONParseFailed,
		},
		{
			name: "malformed json",
			step: scriptStep{resp: Response{JSON: json.RawMessage(`{"proposedChanges": [`)}},
			want: run.StopJSONParseFailed,
		},
		{
			name: "schema violation",
			step: scriptStep{resp: Response{JSON: json.RawMessage(`{"proposedChanges": [{"change": "x"}]}`)}},
			want: run.StopSchemaFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &scriptTransport{script: []scriptStep{tc.step}}
			c := newTestCaller(t, map[string]Transport{"openai": tr})
			in := designerInput()
			if tc.mutate != nil {
				tc.mutate(&in)
			}
			out := c.Call(context.Background(), in)
			if out.StopReason != tc.want {
				t.Fatalf("stop reason: got %s, want %s", out.StopReason, tc.want)
			}
			fp, ok := out.Artifact.Payload.(run.FailurePayload)
			if !ok {
				t.Fatalf("failure payload type: %T", out.Artifact.Payload)
			}
			if fp.OK || fp.StopReason != tc.want || fp.Fingerprint != "fp-1" {
				t.Fatalf("failure payload: %+v", fp)
			}
			if out.Artifact.CustomerSafe {
				t.Fatalf("failure artifact must not be customer safe")
			}
		})
	}
}

func TestCall_UpdatesModelFromResponse(t *testing.T) {
	tr := &scriptTransport{script: []scriptStep{{
		resp: Response{JSON: goodCraftJSON(), Model: "gpt-5-2026-01"},
	}}}
	c := newTestCaller(t, map[string]Transport{"openai": tr})
	out := c.Call(context.Background(), designerInput())
	if out.Meta.Model != "gpt-5-2026-01" {
		t.Fatalf("meta model: %s", out.Meta.Model)
	}
}

func TestCall_GeneralistIsFreeForm(t *testing.T) {
	tr := &scriptTransport{script: []scriptStep{{
		resp: Response{JSON: json.RawMessage(`{"answer": 42}`)},
	}}}
	c := newTestCaller(t, map[string]Transport{"openai": tr})
	in := designerInput()
	in.Role = "generalist"
	in.Kind = run.SingleKind(in.Role)
	out := c.Call(context.Background(), in)
	if out.StopReason != run.StopOK {
		t.Fatalf("stop reason: %s", out.StopReason)
	}
	if _, ok := out.Artifact.Payload.(run.JSONPayload); !ok {
		t.Fatalf("payload type: %T", out.Artifact.Payload)
	}
	if out.Artifact.Kind != "call.generalist" {
		t.Fatalf("kind: %s", out.Artifact.Kind)
	}
}

func TestCall_UnnamedRoleUsesCraftContract(t *testing.T) {
	tr := &scriptTransport{script: []scriptStep{{
		resp: Response{JSON: goodCraftJSON()},
	}}}
	c := newTestCaller(t, map[string]Transport{"openai": tr})
	in := designerInput()
	in.Role = "copywriter"
	out := c.Call(context.Background(), in)
	if out.StopReason != run.StopOK {
		t.Fatalf("stop reason: %s", out.StopReason)
	}
	if _, ok := out.Artifact.Payload.(run.CraftPayload); !ok {
		t.Fatalf("payload type: %T", out.Artifact.Payload)
	}
	if out.Artifact.Kind != run.SpecialistKind("copywriter") {
		t.Fatalf("kind: %s", out.Artifact.Kind)
	}
}
