// Package score provides the offline scorers applied to persisted run
// artifacts: a bounded truth-penalty heuristic for unverifiable or vague
// model output, and a fixed-band rubric for run quality, rigor and
// efficiency. Both are deterministic for a given input; the keyword and
// threshold tables are frozen contracts that downstream tournament
// consumers compare across runs.
package score

import (
	"math"
	"regexp"
	"strings"

	"github.com/danshapiro/hive/internal/run"
)

// Component caps. The total is additionally capped at 1.0.
const (
	capUnverifiable = 0.30
	capInvented     = 0.25
	capVagueness    = 0.25
	capStrain       = 0.20

	perUnverifiablePattern = 0.10
	perInventedPattern     = 0.125
	thinAnchorPenalty      = 0.10
	perVibePhrase          = 0.05
	perStrainSignal        = 0.10
)

// PenaltyReport is the truth-penalty scorer's output. TruthPenalty is the
// capped sum of the breakdown components, always within [0, 1].
type PenaltyReport struct {
	TruthPenalty float64            `json:"truthPenalty"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Triggers     []string           `json:"triggers"`
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

// Unverifiable-claim patterns: statements about user behavior, current
// state, or observations that nothing in the supplied context can back.
var unverifiablePatterns = []pattern{
	{"analytics_claim", regexp.MustCompile(`(?i)\b(analytics|click.?through|bounce rate|conversion rate|engagement|session data|heatmaps?)\b.{0,40}\b(show|indicate|reveal|prove|confirm)`)},
	{"current_state_claim", regexp.MustCompile(`(?i)\b(currently|the (existing|current) (page|site|design|layout))\b.{0,60}\b(is|has|uses|lacks|suffers)`)},
	{"invented_stat", regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*%\s*(of users|increase|decrease|drop|lift|improvement|more|fewer)`)},
	{"observation_language", regexp.MustCompile(`(?i)\b(i (observed|noticed|saw|reviewed)|we('ve| have) (seen|observed|measured)|user (testing|research) (showed|shows))\b`)},
}

// Invented-constraint patterns: limitations or mandates presented as fact
// without being supplied in context.
var inventedPatterns = []pattern{
	{"platform_limitation", regexp.MustCompile(`(?i)\b(platform|framework|cms|browser)s?\b.{0,30}\b(does ?n[o']t|cannot|can't|won't) (support|allow|render|handle)`)},
	{"legal_mandate", regexp.MustCompile(`(?i)\b(legal(ly)?|gdpr|ccpa|regulation|compliance|law)\b.{0,30}\b(require|mandate|oblige|demand)`)},
	{"security_requirement", regexp.MustCompile(`(?i)\bsecurity\b.{0,30}\b(require|mandate|demand|force)|for security reasons,? (we|you) must`)},
	{"already_exists_claim", regexp.MustCompile(`(?i)\b(already (exists|implemented|supported|built)|(is|was) already (in place|available))\b`)},
}

// Vibe-only phrases: direction without a concrete change attached.
var vibePhrases = []string{
	"feel premium",
	"feels premium",
	"improve trust",
	"enhance clarity",
	"more modern",
}

// ScoreDesigner scores a craft specialist's proposed changes. anchorCount
// is the number of concrete, implementable details counted upstream; a
// count below 3 is rejected before scoring ever runs, so the thin-anchor
// penalty only covers the 3-4 band.
func ScoreDesigner(changes []run.ProposedChange, anchorCount int) PenaltyReport {
	texts := make([]string, 0, len(changes)*3)
	for _, ch := range changes {
		texts = append(texts, ch.TargetKey, ch.Change, ch.Rationale)
	}
	blob := strings.ToLower(strings.Join(texts, "\n"))

	rep := newReport()
	rep.applyPatternComponent("unverifiable", blob, unverifiablePatterns, perUnverifiablePattern, capUnverifiable)
	rep.applyPatternComponent("invented", blob, inventedPatterns, perInventedPattern, capInvented)
	rep.applyVagueness(blob, anchorCount, true)
	rep.applyDesignerStrain(changes)
	return rep.finish()
}

// ScoreCritic scores critic issues and fixes with the same component caps.
// The anchor band does not apply; contract strain covers near-duplicate
// restatement instead of key/confidence signals.
func ScoreCritic(issues []run.CriticIssue, fixes []string) PenaltyReport {
	texts := make([]string, 0, len(issues)*2+len(fixes))
	for _, is := range issues {
		texts = append(texts, is.Description, is.Fix)
	}
	texts = append(texts, fixes...)
	blob := strings.ToLower(strings.Join(texts, "\n"))

	rep := newReport()
	rep.applyPatternComponent("unverifiable", blob, unverifiablePatterns, perUnverifiablePattern, capUnverifiable)
	rep.applyPatternComponent("invented", blob, inventedPatterns, perInventedPattern, capInvented)
	rep.applyVagueness(blob, 0, false)
	rep.applyCriticStrain(issues, fixes)
	return rep.finish()
}

type reportBuilder struct {
	breakdown map[string]float64
	triggers  []string
}

func newReport() reportBuilder {
	return reportBuilder{breakdown: map[string]float64{
		"unverifiable":   0,
		"invented":       0,
		"vagueness":      0,
		"contractStrain": 0,
	}}
}

func (r *reportBuilder) applyPatternComponent(component, blob string, patterns []pattern, per, max float64) {
	total := 0.0
	for _, p := range patterns {
		if p.re.MatchString(blob) {
			total += per
			r.triggers = append(r.triggers, component+"."+p.name)
		}
	}
	if total > max {
		total = max
	}
	r.breakdown[component] = total
}

func (r *reportBuilder) applyVagueness(blob string, anchorCount int, anchorsApply bool) {
	total := 0.0
	if anchorsApply && anchorCount >= 3 && anchorCount <= 4 {
		total += thinAnchorPenalty
		r.triggers = append(r.triggers, "vagueness.thin_anchors")
	}
	for _, phrase := range vibePhrases {
		if strings.Contains(blob, phrase) {
			total += perVibePhrase
			r.triggers = append(r.triggers, "vagueness.vibe:"+phrase)
		}
	}
	if total > capVagueness {
		total = capVagueness
	}
	r.breakdown["vagueness"] = total
}

func (r *reportBuilder) applyDesignerStrain(changes []run.ProposedChange) {
	total := 0.0

	seen := map[string]bool{}
	duplicate := false
	for _, ch := range changes {
		key := strings.ToLower(strings.TrimSpace(ch.TargetKey))
		if seen[key] {
			duplicate = true
			break
		}
		seen[key] = true
	}
	if duplicate {
		total += perStrainSignal
		r.triggers = append(r.triggers, "contractStrain.duplicate_target_key")
	}

	inflated := 0
	for _, ch := range changes {
		if ch.Confidence >= 0.95 {
			inflated++
		}
	}
	if inflated >= 3 {
		total += perStrainSignal
		r.triggers = append(r.triggers, "contractStrain.confidence_inflation")
	}

	if total > capStrain {
		total = capStrain
	}
	r.breakdown["contractStrain"] = total
}

func (r *reportBuilder) applyCriticStrain(issues []run.CriticIssue, fixes []string) {
	total := 0.0
	items := make([]string, 0, len(issues)+len(fixes))
	for _, is := range issues {
		items = append(items, is.Description)
	}
	items = append(items, fixes...)

	if len(items) > 2 {
		unique := map[string]bool{}
		for _, s := range items {
			unique[normalizeStatement(s)] = true
		}
		if len(unique) < len(items)-2 {
			total += perStrainSignal
			r.triggers = append(r.triggers, "contractStrain.near_duplicate_restatement")
		}
	}

	if total > capStrain {
		total = capStrain
	}
	r.breakdown["contractStrain"] = total
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9 ]+`)
var spacesRe = regexp.MustCompile(`\s+`)

// normalizeStatement collapses a sentence to its comparable core so light
// rephrasings of the same point count as duplicates.
func normalizeStatement(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func (r reportBuilder) finish() PenaltyReport {
	total := 0.0
	for _, v := range r.breakdown {
		total += v
	}
	if total > 1.0 {
		total = 1.0
	}
	// Round to avoid float drift leaking into persisted reports.
	total = math.Round(total*10000) / 10000
	triggers := r.triggers
	if triggers == nil {
		triggers = []string{}
	}
	return PenaltyReport{TruthPenalty: total, Breakdown: r.breakdown, Triggers: triggers}
}
