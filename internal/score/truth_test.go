package score

import (
	"testing"

	"github.com/danshapiro/hive/internal/run"
)

func change(target, text string, confidence float64) run.ProposedChange {
	return run.ProposedChange{TargetKey: target, Change: text, Confidence: confidence}
}

func hasTrigger(rep PenaltyReport, name string) bool {
	for _, tr := range rep.Triggers {
		if tr == name {
			return true
		}
	}
	return false
}

func TestScoreDesigner_CleanOutputScoresZero(t *testing.T) {
	rep := ScoreDesigner([]run.ProposedChange{
		change("hero.headline", "Cut the headline to 8 words and lead with the free-trial offer.", 0.8),
		change("cta.primary", "Raise the button to 48px height with 16px horizontal padding.", 0.75),
	}, 6)
	if rep.TruthPenalty != 0 {
		t.Fatalf("penalty: %v triggers=%v", rep.TruthPenalty, rep.Triggers)
	}
	if len(rep.Triggers) != 0 {
		t.Fatalf("triggers: %v", rep.Triggers)
	}
}

func TestScoreDesigner_ConfidenceInflationOnly(t *testing.T) {
	changes := make([]run.ProposedChange, 0, 8)
	targets := []string{"hero.headline", "hero.subhead", "cta.primary", "cta.secondary", "nav.links", "footer.legal", "pricing.table", "form.fields"}
	for _, tk := range targets {
		changes = append(changes, change(tk, "Tighten the copy around the stated offer.", 0.97))
	}
	rep := ScoreDesigner(changes, 8)
	if rep.TruthPenalty != 0.10 {
		t.Fatalf("penalty: %v breakdown=%v", rep.TruthPenalty, rep.Breakdown)
	}
	if !hasTrigger(rep, "contractStrain.confidence_inflation") {
		t.Fatalf("triggers: %v", rep.Triggers)
	}
	if rep.Breakdown["contractStrain"] != 0.10 {
		t.Fatalf("breakdown: %v", rep.Breakdown)
	}
}

func TestScoreDesigner_ThinAnchorBand(t *testing.T) {
	base := []run.ProposedChange{
		change("hero.headline", "Shorten the headline.", 0.8),
	}
	for count, want := range map[int]float64{2: 0, 3: 0.10, 4: 0.10, 5: 0} {
		rep := ScoreDesigner(base, count)
		if rep.Breakdown["vagueness"] != want {
			t.Fatalf("anchors=%d: vagueness %v, want %v", count, rep.Breakdown["vagueness"], want)
		}
	}
}

func TestScoreDesigner_UnverifiableClaimsCapped(t *testing.T) {
	changes := []run.ProposedChange{
		change("hero.headline", "Analytics show a 40% drop in engagement, so currently the existing page is underperforming.", 0.8),
		{TargetKey: "cta.primary", Change: "User testing showed 25% of users increase abandonment here.", Rationale: "We have observed this in session data.", Confidence: 0.8},
	}
	rep := ScoreDesigner(changes, 6)
	if rep.Breakdown["unverifiable"] != capUnverifiable {
		t.Fatalf("unverifiable: %v (triggers %v)", rep.Breakdown["unverifiable"], rep.Triggers)
	}
}

func TestScoreDesigner_InventedConstraints(t *testing.T) {
	changes := []run.ProposedChange{
		change("checkout.form", "The CMS does not support custom fields, and GDPR requires explicit consent here.", 0.8),
	}
	rep := ScoreDesigner(changes, 6)
	if rep.Breakdown["invented"] != 0.25 {
		t.Fatalf("invented: %v (triggers %v)", rep.Breakdown["invented"], rep.Triggers)
	}
}

func TestScoreDesigner_DuplicateTargetKeys(t *testing.T) {
	changes := []run.ProposedChange{
		change("hero.headline", "Shorten it.", 0.8),
		change("Hero.Headline", "Lengthen it.", 0.8),
	}
	rep := ScoreDesigner(changes, 6)
	if !hasTrigger(rep, "contractStrain.duplicate_target_key") {
		t.Fatalf("triggers: %v", rep.Triggers)
	}
}

func TestScoreDesigner_TotalBoundedByOne(t *testing.T) {
	text := "Analytics show 40% of users drop off. Currently the existing page is broken. " +
		"I observed this. The platform does not support video. Legally GDPR requires a banner. " +
		"Security requires a captcha. This already exists. Make it feel premium and more modern to improve trust."
	changes := make([]run.ProposedChange, 0, 5)
	for i := 0; i < 5; i++ {
		changes = append(changes, change("hero.headline", text, 0.99))
	}
	rep := ScoreDesigner(changes, 3)
	if rep.TruthPenalty < 0 || rep.TruthPenalty > 1 {
		t.Fatalf("penalty out of range: %v", rep.TruthPenalty)
	}
	wantCapped := capUnverifiable + capInvented
	if rep.Breakdown["unverifiable"]+rep.Breakdown["invented"] > wantCapped {
		t.Fatalf("component caps not applied: %v", rep.Breakdown)
	}
}

func TestScoreCritic_NearDuplicateRestatement(t *testing.T) {
	issues := []run.CriticIssue{
		{Severity: "medium", Description: "The headline overpromises results."},
		{Severity: "medium", Description: "The headline overpromises results!"},
		{Severity: "low", Description: "the headline   overpromises results"},
		{Severity: "low", Description: "The headline, overpromises; results."},
		{Severity: "low", Description: "Spacing under the hero is cramped."},
	}
	rep := ScoreCritic(issues, nil)
	if !hasTrigger(rep, "contractStrain.near_duplicate_restatement") {
		t.Fatalf("triggers: %v", rep.Triggers)
	}
	if rep.Breakdown["contractStrain"] != perStrainSignal {
		t.Fatalf("breakdown: %v", rep.Breakdown)
	}
}

func TestScoreCritic_DistinctIssuesScoreZeroStrain(t *testing.T) {
	issues := []run.CriticIssue{
		{Severity: "high", Description: "The pricing table hides the annual discount."},
		{Severity: "medium", Description: "The form asks for a phone number with no justification."},
		{Severity: "low", Description: "Footer links use low-contrast gray text."},
	}
	rep := ScoreCritic(issues, []string{"Surface the discount in the table header."})
	if rep.Breakdown["contractStrain"] != 0 {
		t.Fatalf("breakdown: %v triggers=%v", rep.Breakdown, rep.Triggers)
	}
}
