package score

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danshapiro/hive/internal/run"
)

// RunMeta is the slice of run metadata the rubric needs.
type RunMeta struct {
	StopReason   run.StopReason `json:"stopReason"`
	TotalCostUSD float64        `json:"totalCostUsd"`
	DurationMS   int64          `json:"durationMs"`
}

// RubricReport is the rubric scorer's output. FinalScore is the sum of the
// three axis scores; Breakdown carries every band component.
type RubricReport struct {
	FinalScore      int            `json:"finalScore"`
	QualityScore    int            `json:"qualityScore"`
	RigorScore      int            `json:"rigorScore"`
	EfficiencyScore int            `json:"efficiencyScore"`
	Breakdown       map[string]int `json:"breakdown"`
}

// coverageDomains maps each content domain to the target-key glob patterns
// that count toward it. +4 per domain touched, 5 domains, 20 max.
var coverageDomains = []struct {
	name     string
	patterns []string
}{
	{"layout", []string{"layout.**", "layout", "grid.**", "hero.**", "section.**"}},
	{"tokens", []string{"tokens.**", "typography.**", "type.**", "color.**", "font.**"}},
	{"components", []string{"components.**", "component.**", "button.**", "nav.**", "card.**", "form.**"}},
	{"conversion", []string{"cta.**", "conversion.**", "checkout.**", "pricing.**", "signup.**"}},
	{"mobile", []string{"mobile.**", "responsive.**", "breakpoint.**"}},
}

const pointsPerDomain = 4

// Actionability keyword tables: a change is actionable when it names a
// concrete number, a layout primitive, or a specific UI element.
var (
	numberRe         = regexp.MustCompile(`\d`)
	layoutPrimitives = []string{"grid", "flex", "column", "row", "stack", "spacing", "margin", "padding", "gap", "width", "height"}
	namedUIElements  = []string{"button", "header", "footer", "nav", "modal", "card", "form", "banner", "hero", "badge", "input", "link"}
)

// Conversion-architecture keyword groups, +5 each.
var (
	stickyCTARe    = regexp.MustCompile(`(?i)\b(sticky|persistent|fixed|floating)\b.{0,30}\b(cta|call.?to.?action|button|bar)\b`)
	trustProofRe   = regexp.MustCompile(`(?i)\b(trust|proof|testimonial|audit|guarantee|review|certification|badge)\b`)
	ctaHierarchyRe = regexp.MustCompile(`(?i)\b(primary|secondary)\b.{0,30}\b(cta|call.?to.?action|action|button)\b|\bcta hierarchy\b`)
)

// ScoreRun scores a completed run's artifacts. A failing stop reason zeroes
// every axis: there is nothing to reward in a run that did not finish.
func ScoreRun(artifacts []run.Artifact, meta RunMeta) RubricReport {
	rep := RubricReport{Breakdown: map[string]int{
		"coverage":       0,
		"actionability":  0,
		"conversion":     0,
		"coherence":      0,
		"criticPressure": 0,
		"severity":       0,
		"cost":           0,
		"speed":          0,
	}}
	if meta.StopReason.Failure() {
		return rep
	}

	changes := collapsedChanges(artifacts)
	issues := criticIssues(artifacts)

	rep.Breakdown["coverage"] = coverageScore(changes)
	rep.Breakdown["actionability"] = actionabilityScore(changes)
	rep.Breakdown["conversion"] = conversionScore(changes)
	rep.Breakdown["coherence"] = coherenceScore(changes)
	rep.Breakdown["criticPressure"] = criticPressureScore(issues)
	rep.Breakdown["severity"] = severityScore(issues)
	rep.Breakdown["cost"] = costScore(meta.TotalCostUSD)
	rep.Breakdown["speed"] = speedScore(meta.DurationMS)

	rep.QualityScore = rep.Breakdown["coverage"] + rep.Breakdown["actionability"] +
		rep.Breakdown["conversion"] + rep.Breakdown["coherence"]
	rep.RigorScore = rep.Breakdown["criticPressure"] + rep.Breakdown["severity"]
	rep.EfficiencyScore = rep.Breakdown["cost"] + rep.Breakdown["speed"]
	rep.FinalScore = rep.QualityScore + rep.RigorScore + rep.EfficiencyScore
	return rep
}

func collapsedChanges(artifacts []run.Artifact) []run.ProposedChange {
	for _, a := range artifacts {
		if a.Kind != run.KindCollapse {
			continue
		}
		if p, ok := a.Payload.(run.CollapsePayload); ok {
			return p.ProposedChanges
		}
	}
	return nil
}

func criticIssues(artifacts []run.Artifact) []run.CriticIssue {
	for _, a := range artifacts {
		if a.Kind != run.KindCritic {
			continue
		}
		if p, ok := a.Payload.(run.CriticPayload); ok {
			return p.Issues
		}
	}
	return nil
}

// coverageScore awards 4 points per distinct content domain touched, by
// glob-matching change target keys against the domain tables.
func coverageScore(changes []run.ProposedChange) int {
	score := 0
	for _, domain := range coverageDomains {
		touched := false
	scan:
		for _, ch := range changes {
			key := strings.ToLower(strings.TrimSpace(ch.TargetKey))
			for _, pat := range domain.patterns {
				if ok, err := doublestar.Match(pat, key); err == nil && ok {
					touched = true
					break scan
				}
			}
		}
		if touched {
			score += pointsPerDomain
		}
	}
	return score
}

// actionabilityScore buckets the fraction of concrete changes into five
// fixed bands.
func actionabilityScore(changes []run.ProposedChange) int {
	if len(changes) == 0 {
		return 0
	}
	concrete := 0
	for _, ch := range changes {
		if isConcrete(ch.Change) {
			concrete++
		}
	}
	frac := float64(concrete) / float64(len(changes))
	switch {
	case frac >= 0.85:
		return 20
	case frac >= 0.70:
		return 16
	case frac >= 0.55:
		return 12
	case frac >= 0.40:
		return 8
	default:
		return 4
	}
}

func isConcrete(text string) bool {
	lower := strings.ToLower(text)
	if numberRe.MatchString(lower) {
		return true
	}
	for _, w := range layoutPrimitives {
		if strings.Contains(lower, w) {
			return true
		}
	}
	for _, w := range namedUIElements {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func conversionScore(changes []run.ProposedChange) int {
	var blob strings.Builder
	for _, ch := range changes {
		blob.WriteString(ch.TargetKey)
		blob.WriteByte('\n')
		blob.WriteString(ch.Change)
		blob.WriteByte('\n')
		blob.WriteString(ch.Rationale)
		blob.WriteByte('\n')
	}
	text := blob.String()
	score := 0
	if stickyCTARe.MatchString(text) {
		score += 5
	}
	if trustProofRe.MatchString(text) {
		score += 5
	}
	if ctaHierarchyRe.MatchString(text) {
		score += 5
	}
	return score
}

// coherenceScore bands on (average confidence, low-confidence count).
// A change is low-confidence below 0.5.
func coherenceScore(changes []run.ProposedChange) int {
	if len(changes) == 0 {
		return 0
	}
	sum := 0.0
	low := 0
	for _, ch := range changes {
		sum += ch.Confidence
		if ch.Confidence < 0.5 {
			low++
		}
	}
	avg := sum / float64(len(changes))
	switch {
	case avg >= 0.75 && low == 0:
		return 15
	case avg >= 0.75 && low <= 2:
		return 12
	case avg >= 0.60 && low <= 2:
		return 9
	case avg >= 0.60:
		return 6
	default:
		return 3
	}
}

// criticPressureScore bands on issue and fix counts: review that found
// real, fixable problems scores highest.
func criticPressureScore(issues []run.CriticIssue) int {
	fixes := 0
	for _, is := range issues {
		if strings.TrimSpace(is.Fix) != "" {
			fixes++
		}
	}
	switch {
	case len(issues) >= 3 && fixes >= len(issues)-1:
		return 12
	case len(issues) >= 2 && fixes >= 1:
		return 9
	case len(issues) >= 1:
		return 6
	default:
		return 3
	}
}

// severityScore bands on the spread of critical/major/minor severities.
// The payload severities high/medium/low are the same three levels.
func severityScore(issues []run.CriticIssue) int {
	levels := map[string]bool{}
	for _, is := range issues {
		switch strings.ToLower(strings.TrimSpace(is.Severity)) {
		case "critical", "high":
			levels["critical"] = true
		case "major", "medium":
			levels["major"] = true
		case "minor", "low":
			levels["minor"] = true
		}
	}
	switch len(levels) {
	case 3:
		return 8
	case 2:
		return 6
	case 1:
		return 4
	default:
		return 2
	}
}

func costScore(totalUSD float64) int {
	switch {
	case totalUSD <= 0.05:
		return 6
	case totalUSD <= 0.15:
		return 5
	case totalUSD <= 0.30:
		return 4
	case totalUSD <= 0.60:
		return 3
	case totalUSD <= 1.00:
		return 2
	case totalUSD <= 2.00:
		return 1
	default:
		return 0
	}
}

func speedScore(durationMS int64) int {
	switch {
	case durationMS <= 30_000:
		return 4
	case durationMS <= 60_000:
		return 3
	case durationMS <= 120_000:
		return 2
	case durationMS <= 300_000:
		return 1
	default:
		return 0
	}
}
