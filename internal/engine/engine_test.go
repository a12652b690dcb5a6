package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/danshapiro/hive/internal/policy"
	"github.com/danshapiro/hive/internal/run"
	"github.com/danshapiro/hive/internal/specialist"
	"github.com/danshapiro/hive/internal/workorder"
)

func workorderKeyer() (*workorder.Keyer, error) {
	return workorder.NewKeyer("engine-test-secret-0123456789")
}

type fixedTransport struct {
	resp specialist.Response
	err  error
}

func (f *fixedTransport) Complete(ctx context.Context, req specialist.Request) (specialist.Response, error) {
	return f.resp, f.err
}

func craftJSON() json.RawMessage {
	return json.RawMessage(`{
		"proposedChanges": [
			{"targetKey": "hero.headline", "change": "Cut the headline to 8 words.", "confidence": 0.85}
		]
	}`)
}

func criticJSON() json.RawMessage {
	return json.RawMessage(`{"pass": true, "issues": []}`)
}

func testPolicies(t *testing.T) *policy.Store {
	t.Helper()
	s, err := policy.NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	swarmed := policy.Policy{
		ID:      "landing",
		Version: 1,
		Caps:    policy.Caps{MaxRounds: 2, CostCapUSD: 5.0, MaxTokensTotal: 1000000},
		Swarm: policy.Swarm{
			Enabled: true,
			Roles: map[string]policy.RoleConfig{
				"designer": {Model: "gpt-5", Transport: "craft-t", TimeoutMS: 30000},
				"critic":   {Model: "claude-sonnet-4", Transport: "critic-t", TimeoutMS: 30000},
			},
		},
	}
	single := policy.Policy{
		ID:      "quick",
		Version: 1,
		Caps:    policy.Caps{MaxRounds: 2, CostCapUSD: 1.0, MaxTokensTotal: 100000},
		Single:  &policy.RoleConfig{Model: "gpt-5-mini", Transport: "craft-t", TimeoutMS: 15000},
	}
	if err := s.Register([]policy.Policy{swarmed, single}, true); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return testEngineWith(t, map[string]specialist.Transport{
		"craft-t":  &fixedTransport{resp: specialist.Response{JSON: craftJSON(), CostUSD: 0.02}},
		"critic-t": &fixedTransport{resp: specialist.Response{JSON: criticJSON(), CostUSD: 0.01}},
	})
}

func testEngineWith(t *testing.T, transports map[string]specialist.Transport) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	caller, err := specialist.NewCaller(specialist.Options{
		Transports: transports,
		Logger:     logger,
		Sleep:      func(ctx context.Context, d time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("new caller: %v", err)
	}
	keyer, err := workorderKeyer()
	if err != nil {
		t.Fatalf("new keyer: %v", err)
	}
	e, err := New(Options{
		Policies: testPolicies(t),
		Keyer:    keyer,
		Caller:   caller,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func orderJSON(policyID string, maxRounds int) []byte {
	return []byte(fmt.Sprintf(`{
		"version": 1,
		"tenant": "acme",
		"scope": "site.landing",
		"policyId": %q,
		"inputs": {"page": "landing"},
		"constraints": {"maxRounds": %d, "costCapUsd": 1.0, "maxTokensTotal": 50000},
		"trace": {"jobId": "job-1"}
	}`, policyID, maxRounds))
}

func TestExecuteJSON_SwarmRunSucceeds(t *testing.T) {
	e := testEngine(t)
	res := e.ExecuteJSON(context.Background(), orderJSON("landing", 2))
	if res.StopReason != run.StopOK || res.Status != run.StatusSucceeded {
		t.Fatalf("result: %s/%s", res.Status, res.StopReason)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.TraceID != "job-1" {
		t.Fatalf("trace id: %s", res.TraceID)
	}
	if res.Fingerprint == "" {
		t.Fatalf("fingerprint missing")
	}
	if len(res.Artifacts) != 4 {
		t.Fatalf("artifacts: %d", len(res.Artifacts))
	}
}

func TestExecuteJSON_MalformedIsInvalidRequest(t *testing.T) {
	e := testEngine(t)
	for _, b := range [][]byte{
		[]byte(`{`),
		[]byte(`not json`),
		[]byte(`{"version": 1, "unknownTopLevel": true}`),
	} {
		res := e.ExecuteJSON(context.Background(), b)
		if res.StopReason != run.StopInvalidRequest || res.Status != run.StatusRejected {
			t.Fatalf("%s: %s/%s", b, res.Status, res.StopReason)
		}
	}
}

func TestExecute_PolicyCapGate(t *testing.T) {
	e := testEngine(t)

	// The policy caps maxRounds at 2: an order asking for 2 passes, one
	// asking for 5 is rejected before any model call.
	ok := e.ExecuteJSON(context.Background(), orderJSON("landing", 2))
	if ok.StopReason != run.StopOK {
		t.Fatalf("within caps: %s", ok.StopReason)
	}
	rejected := e.ExecuteJSON(context.Background(), orderJSON("landing", 5))
	if rejected.StopReason != run.StopPolicyRejected || rejected.Status != run.StatusRejected {
		t.Fatalf("over caps: %s/%s", rejected.Status, rejected.StopReason)
	}
	if len(rejected.Artifacts) != 0 {
		t.Fatalf("rejected order produced artifacts: %d", len(rejected.Artifacts))
	}
}

func TestExecute_RoundCap(t *testing.T) {
	e := testEngine(t)
	b := []byte(`{
		"version": 1,
		"tenant": "acme",
		"scope": "site.landing",
		"policyId": "landing",
		"inputs": {"page": "landing"},
		"constraints": {"maxRounds": 2, "costCapUsd": 1.0, "maxTokensTotal": 50000},
		"trace": {"jobId": "job-1", "round": 2}
	}`)
	res := e.ExecuteJSON(context.Background(), b)
	if res.StopReason != run.StopRoundCapHit {
		t.Fatalf("stop reason: %s", res.StopReason)
	}
}

func TestExecute_UnknownPolicy(t *testing.T) {
	e := testEngine(t)
	res := e.ExecuteJSON(context.Background(), orderJSON("nope", 1))
	if res.StopReason != run.StopPolicyNotFound || res.Status != run.StatusRejected {
		t.Fatalf("result: %s/%s", res.Status, res.StopReason)
	}
}

func TestExecute_SingleDispatchHasNoSwarmArtifacts(t *testing.T) {
	e := testEngineWith(t, map[string]specialist.Transport{
		"craft-t": &fixedTransport{resp: specialist.Response{JSON: json.RawMessage(`{"summary": "done"}`), CostUSD: 0.005}},
	})
	res := e.ExecuteJSON(context.Background(), orderJSON("quick", 1))
	if res.StopReason != run.StopOK {
		t.Fatalf("stop reason: %s", res.StopReason)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("artifacts: %d", len(res.Artifacts))
	}
	for _, a := range res.Artifacts {
		if strings.HasPrefix(string(a.Kind), "swarm.") {
			t.Fatalf("swarm-prefixed artifact from single dispatch: %s", a.Kind)
		}
	}
	if res.Artifacts[0].Kind != run.SingleKind("generalist") {
		t.Fatalf("kind: %s", res.Artifacts[0].Kind)
	}
}

func TestExecute_SingleDispatchFailure(t *testing.T) {
	e := testEngineWith(t, map[string]specialist.Transport{
		"craft-t": &fixedTransport{err: &specialist.ProviderError{Provider: "openai", StatusCode: 500}},
	})
	res := e.ExecuteJSON(context.Background(), orderJSON("quick", 1))
	if res.StopReason != run.StopProviderFailed || res.Status != run.StatusFailed {
		t.Fatalf("result: %s/%s", res.Status, res.StopReason)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("artifacts: %d", len(res.Artifacts))
	}
	fp, ok := res.Artifacts[0].Payload.(run.FailurePayload)
	if !ok {
		t.Fatalf("payload: %T", res.Artifacts[0].Payload)
	}
	if fp.Fingerprint == "" {
		t.Fatalf("failure payload missing fingerprint")
	}
}

func TestExecute_SameOrderSameFingerprint(t *testing.T) {
	e := testEngine(t)
	a := e.ExecuteJSON(context.Background(), orderJSON("landing", 2))
	b := e.ExecuteJSON(context.Background(), orderJSON("landing", 2))
	if a.Fingerprint == "" || a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints: %q vs %q", a.Fingerprint, b.Fingerprint)
	}
	c := e.ExecuteJSON(context.Background(), orderJSON("landing", 1))
	if c.Fingerprint == a.Fingerprint {
		t.Fatalf("constraint change did not change fingerprint")
	}
}
