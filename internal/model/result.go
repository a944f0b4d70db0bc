package model

import (
	"strings"
	"time"
)

// Outcome is the adjudication label of a claim
type Outcome string

const (
	OutcomePass    Outcome = "PASS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// Severity of a risk factor. Lower values sort first.
type Severity int

const (
	SeverityHigh Severity = iota
	SeverityMedium
	SeverityLow
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity accepts HIGH/MEDIUM/LOW in any case
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return SeverityHigh, true
	case "MEDIUM":
		return SeverityMedium, true
	case "LOW":
		return SeverityLow, true
	}
	return 0, false
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, ok := ParseSeverity(string(b))
	if !ok {
		return &UnknownSeverityError{Value: string(b)}
	}
	*s = v
	return nil
}

// UnknownSeverityError is returned when a severity label cannot be parsed
type UnknownSeverityError struct {
	Value string
}

func (e *UnknownSeverityError) Error() string {
	return "unknown severity: " + e.Value
}

// SimilarClaim is a comparison claim with its closeness to the target
type SimilarClaim struct {
	Claim           Claim   `json:"-"`
	ClaimID         string  `json:"claim_id"`
	SimilarityScore float64 `json:"similarity_score"` // 0.0-1.0
	Outcome         Outcome `json:"outcome"`
	Reason          string  `json:"reason,omitempty"`
}

// RiskFactor is a triggered issue pattern on the target claim
type RiskFactor struct {
	Factor   string   `json:"factor"`
	Severity Severity `json:"severity"`
	Details  string   `json:"details"`
}

// Finding is the analyzer's verdict for one focus area
type Finding struct {
	FocusArea    string `json:"focus_area"`
	Summary      string `json:"summary"`
	Insufficient bool   `json:"insufficient,omitempty"` // No comparison data to judge against
}

// CriteriaApplied echoes the criteria a prediction actually used
type CriteriaApplied struct {
	Preset            string   `json:"preset,omitempty"`
	FocusAreas        []string `json:"focus_areas"`
	SimilarityRule    string   `json:"similarity_rule"`
	RiskFactors       []string `json:"risk_factors"`
	ComparisonContext string   `json:"comparison_context"`
}

// PredictionResult is built once per prediction and never mutated afterwards
type PredictionResult struct {
	ClaimID               string          `json:"claim_id"`
	Outcome               Outcome         `json:"prediction"`
	Confidence            float64         `json:"confidence"`
	Reasons               []string        `json:"top_reasons"`
	RiskFactors           []RiskFactor    `json:"risk_factors"`
	SimilarClaims         []SimilarClaim  `json:"similar_claims"`
	SimilarityExplanation string          `json:"similarity_explanation"`
	CriteriaApplied       CriteriaApplied `json:"criteria_applied"`
	Findings              []Finding       `json:"findings"`
	Query                 string          `json:"query,omitempty"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// CorrectionStatus is the per-rule result of a correction run
type CorrectionStatus string

const (
	CorrectionApplied       CorrectionStatus = "APPLIED"
	CorrectionSkipped       CorrectionStatus = "SKIPPED"
	CorrectionNotApplicable CorrectionStatus = "NOT_APPLICABLE"
)

// CorrectionEntry reports what one rule did to the claim
type CorrectionEntry struct {
	RuleID      string           `json:"rule_id"`
	Status      CorrectionStatus `json:"status"`
	Description string           `json:"description"`
}

// CorrectionReport holds one entry per catalog rule, in catalog order
type CorrectionReport struct {
	ClaimID        string            `json:"claim_id"`
	CatalogVersion string            `json:"catalog_version"`
	Entries        []CorrectionEntry `json:"entries"`
}

// Count returns the number of entries with the given status
func (r CorrectionReport) Count(status CorrectionStatus) int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}
