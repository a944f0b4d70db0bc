// Package predict turns an analysis into the final outcome, confidence and reasons.
package predict

import (
	"fmt"
	"math"
	"time"

	"github.com/ppiankov/claimguard/internal/analyze"
	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

const (
	insufficientEvidence = "Insufficient evidence: no comparable claims and no risk factors triggered."
	alreadyPaid          = "Claim is already fully paid."
)

// Config tunes the outcome policy
type Config struct {
	MajorityThreshold float64 // FAIL share of the comparison set above which the outcome is FAIL
	ConfidenceFloor   float64
	TopReasons        int
	Weights           model.SeverityWeights
}

// ConfigFromModel extracts assembler settings from the engine configuration
func ConfigFromModel(e model.EngineConfig) Config {
	return Config{
		MajorityThreshold: e.MajorityThreshold,
		ConfidenceFloor:   e.ConfidenceFloor,
		TopReasons:        e.TopReasons,
		Weights:           e.Weights,
	}
}

// Assembler builds prediction results. It holds no mutable state.
type Assembler struct {
	cfg Config
	now func() time.Time
}

// NewAssembler creates an assembler. Zero or out-of-range values take the
// defaults; configured values are checked earlier by model.EngineConfig.Validate.
func NewAssembler(cfg Config) *Assembler {
	def := ConfigFromModel(model.DefaultConfig().Engine)
	if cfg.MajorityThreshold <= 0 || cfg.MajorityThreshold >= 1 {
		cfg.MajorityThreshold = def.MajorityThreshold
	}
	if cfg.ConfidenceFloor <= 0 || cfg.ConfidenceFloor >= 1 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.TopReasons <= 0 {
		cfg.TopReasons = def.TopReasons
	}
	if cfg.Weights == (model.SeverityWeights{}) {
		cfg.Weights = def.Weights
	}
	return &Assembler{cfg: cfg, now: time.Now}
}

// Assemble never fails. Empty evidence yields PASS at the confidence floor.
func (a *Assembler) Assemble(claimID string, an *analyze.Analysis, profile criteria.Profile) *model.PredictionResult {
	if an == nil {
		an = &analyze.Analysis{}
	}
	result := a.base(claimID, profile)
	result.RiskFactors = append(result.RiskFactors, an.RiskFactors...)
	result.SimilarClaims = append(result.SimilarClaims, an.Similar...)
	result.Findings = append(result.Findings, an.Findings...)
	result.SimilarityExplanation = an.Explanation

	total := len(an.Similar)
	if total == 0 && len(an.RiskFactors) == 0 {
		result.Outcome = model.OutcomePass
		result.Confidence = a.cfg.ConfidenceFloor
		result.Reasons = []string{insufficientEvidence}
		return result
	}

	// 1. Comparison agreement
	var failFrac, passFrac float64
	if total > 0 {
		failFrac = float64(an.Failed) / float64(total)
		passFrac = float64(an.Passed) / float64(total)
	}

	// 2. Risk pressure: each factor independently pushes toward FAIL
	pressure := 1.0
	high := false
	for _, rf := range an.RiskFactors {
		pressure *= 1 - a.cfg.Weights.Weight(rf.Severity)
		if rf.Severity == model.SeverityHigh {
			high = true
		}
	}
	risk := 1 - pressure

	// 3. Outcome and confidence
	majority := failFrac > a.cfg.MajorityThreshold
	floor := a.cfg.ConfidenceFloor
	if high || majority {
		result.Outcome = model.OutcomeFail
		result.Confidence = clip(floor + (1-floor)*(0.5*risk+0.5*failFrac))
	} else {
		result.Outcome = model.OutcomePass
		result.Confidence = clip(floor + (1-floor)*(0.5*(1-risk)+0.5*passFrac))
	}

	// 4. Reasons: risk factors first, then the comparison tally
	reasons := append([]string(nil), an.Reasons...)
	switch {
	case result.Outcome == model.OutcomeFail && majority:
		reasons = append(reasons, fmt.Sprintf("%d of %d similar claims failed", an.Failed, total))
	case result.Outcome == model.OutcomePass && total > 0:
		reasons = append(reasons, fmt.Sprintf("%d of %d similar claims passed", an.Passed, total))
	case result.Outcome == model.OutcomePass:
		reasons = append(reasons, "No comparable claims found; outcome based on the claim alone")
	}
	if len(reasons) > a.cfg.TopReasons {
		reasons = reasons[:a.cfg.TopReasons]
	}
	result.Reasons = reasons
	return result
}

// AlreadyPaid is the result for a claim that needs no prediction
func (a *Assembler) AlreadyPaid(claimID string, profile criteria.Profile) *model.PredictionResult {
	result := a.base(claimID, profile)
	result.Outcome = model.OutcomePass
	result.Confidence = 1.0
	result.Reasons = []string{alreadyPaid}
	result.SimilarityExplanation = "Paid claims are not compared against history."
	return result
}

func (a *Assembler) base(claimID string, profile criteria.Profile) *model.PredictionResult {
	return &model.PredictionResult{
		ClaimID:         claimID,
		Reasons:         []string{},
		RiskFactors:     []model.RiskFactor{},
		SimilarClaims:   []model.SimilarClaim{},
		Findings:        []model.Finding{},
		CriteriaApplied: profile.Applied(),
		GeneratedAt:     a.now().UTC(),
	}
}

func clip(v float64) float64 {
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*1000) / 1000
}
