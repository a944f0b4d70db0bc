// Package analyze compares a target claim against its comparison set: it scores
// similarity, writes one finding per focus area and raises risk factors graded
// by a severity rubric.
package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/reasoning"
	"github.com/ppiankov/claimguard/internal/similarity"
)

const (
	op             = "analyze"
	defaultTopN    = 5
	maxPromptPeers = 20
)

// Analysis is the analyzer's output for one prediction
type Analysis struct {
	Findings    []model.Finding
	RiskFactors []model.RiskFactor // ranked: severity, then declaration order
	Reasons     []string           // top-N of RiskFactors rendered as text
	Similar     []model.SimilarClaim
	Explanation string
	Passed      int
	Failed      int
	Unknown     int
}

// Analyzer evaluates claims against their comparison set
type Analyzer struct {
	rubric   Rubric
	narrator reasoning.Service
	topN     int
}

// NewAnalyzer creates an analyzer. narrator may be nil, in which case the
// similarity explanation and per-claim reasons come from the claim data alone.
func NewAnalyzer(rubric Rubric, narrator reasoning.Service) *Analyzer {
	return &Analyzer{
		rubric:   rubric,
		narrator: narrator,
		topN:     defaultTopN,
	}
}

// WithTopReasons bounds the ranked reasons list
func (a *Analyzer) WithTopReasons(n int) *Analyzer {
	if n > 0 {
		a.topN = n
	}
	return a
}

// Analyze never fails on evidence; the only error is a narration failure
func (a *Analyzer) Analyze(ctx context.Context, target model.Claim, comparison []model.Claim, profile criteria.Profile) (*Analysis, error) {
	ev := &evidence{
		rubric:     a.rubric,
		target:     target,
		comparison: comparison,
	}
	out := &Analysis{}

	// 1. Outcomes and similarity of the comparison set
	out.Similar = make([]model.SimilarClaim, 0, len(comparison))
	for _, c := range comparison {
		outcome := c.Outcome()
		switch outcome {
		case model.OutcomePass:
			ev.passing = append(ev.passing, c)
			out.Passed++
		case model.OutcomeFail:
			ev.failing = append(ev.failing, c)
			out.Failed++
		default:
			out.Unknown++
		}
		out.Similar = append(out.Similar, model.SimilarClaim{
			Claim:           c,
			ClaimID:         c.ID,
			SimilarityScore: Similarity(target, c, profile.FocusAreas),
			Outcome:         outcome,
			Reason:          failureReason(c),
		})
	}
	sort.SliceStable(out.Similar, func(i, j int) bool {
		return out.Similar[i].SimilarityScore > out.Similar[j].SimilarityScore
	})

	// 2. One finding per focus area
	for _, fa := range profile.FocusAreas {
		out.Findings = append(out.Findings, finding(fa, ev))
	}

	// 3. Zero or one risk factor per requested label, ranked
	type ranked struct {
		rf    model.RiskFactor
		order int
	}
	var hits []ranked
	for i, label := range profile.RiskFactors {
		ev.label = label
		if rf := assess(ev); rf != nil {
			hits = append(hits, ranked{*rf, i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rf.Severity != hits[j].rf.Severity {
			return hits[i].rf.Severity < hits[j].rf.Severity
		}
		return hits[i].order < hits[j].order
	})
	for _, h := range hits {
		out.RiskFactors = append(out.RiskFactors, h.rf)
		if len(out.Reasons) < a.topN {
			out.Reasons = append(out.Reasons, h.rf.Factor+": "+h.rf.Details)
		}
	}

	// 4. Explanation
	out.Explanation = explain(out)
	if a.narrator != nil && len(comparison) > 0 {
		if err := a.narrate(ctx, target, profile, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// narrate replaces the explanation and per-claim reasons with the reasoning service's account
func (a *Analyzer) narrate(ctx context.Context, target model.Claim, profile criteria.Profile, out *Analysis) error {
	resp, err := a.narrator.Ask(ctx, reasoning.Request{
		Prompt:  narrationPrompt(target, profile, out),
		Shape:   reasoning.ShapeAnalysis,
		ClaimID: target.ID,
	})
	if err != nil {
		if errs.KindOf(err) == "" {
			err = errs.E(errs.KindReasoningUnavailable, op, err).WithClaim(target.ID)
		}
		return err
	}
	notes := resp.Analysis
	if notes == nil {
		return nil
	}
	if s := strings.TrimSpace(notes.SimilarityExplanation); s != "" {
		out.Explanation = s
	}
	for i := range out.Similar {
		if r, ok := notes.ClaimReasons[out.Similar[i].ClaimID]; ok && strings.TrimSpace(r) != "" {
			out.Similar[i].Reason = strings.TrimSpace(r)
		}
	}
	return nil
}

func narrationPrompt(target model.Claim, profile criteria.Profile, out *Analysis) string {
	var b strings.Builder
	b.WriteString(similarity.Prompt(target, profile))
	b.WriteString("\nComparison claims:\n")
	for i, s := range out.Similar {
		if i == maxPromptPeers {
			fmt.Fprintf(&b, "- ... %d more\n", len(out.Similar)-maxPromptPeers)
			break
		}
		c := s.Claim
		fmt.Fprintf(&b, "- %s: outcome %s, similarity %.2f, codes %s, modifiers %s, amount %s",
			s.ClaimID, s.Outcome, s.SimilarityScore, orNone(c.ProcedureCodes()), orNone(c.Modifiers()), money(c.ClaimedAmount))
		if s.Reason != "" {
			fmt.Fprintf(&b, ", reason %q", s.Reason)
		}
		b.WriteString("\n")
	}
	if len(out.RiskFactors) > 0 {
		b.WriteString("\nRisk factors detected:\n")
		for _, rf := range out.RiskFactors {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", rf.Severity, rf.Factor, rf.Details)
		}
	}
	return b.String()
}

func explain(a *Analysis) string {
	total := len(a.Similar)
	if total == 0 {
		return "No comparable claims were found in the comparison window."
	}
	var sum float64
	for _, s := range a.Similar {
		sum += s.SimilarityScore
	}
	return fmt.Sprintf("Compared against %d similar claims (mean similarity %.2f): %d failed, %d passed, %d undetermined.",
		total, sum/float64(total), a.Failed, a.Passed, a.Unknown)
}

func failureReason(c model.Claim) string {
	if c.Outcome() != model.OutcomeFail {
		return ""
	}
	if s := strings.TrimSpace(c.ErrorDescription); s != "" {
		return s
	}
	return strings.TrimSpace(c.Remark)
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
