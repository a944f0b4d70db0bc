// Package criteria holds analyst-defined analysis profiles and their named presets.
package criteria

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/model"
)

// FocusArea is a claim dimension the analyzer is told to examine
type FocusArea string

const (
	FocusProcedureCodes FocusArea = "procedure-codes"
	FocusModifiers      FocusArea = "modifiers"
	FocusAmounts        FocusArea = "amounts"
	FocusDiagnosisCodes FocusArea = "diagnosis-codes"
	FocusPlaceOfService FocusArea = "place-of-service"
	FocusUnitsOrDays    FocusArea = "units-or-days"
	FocusDatesOfService FocusArea = "dates-of-service"
)

// AllFocusAreas in canonical order
var AllFocusAreas = []FocusArea{
	FocusProcedureCodes,
	FocusModifiers,
	FocusAmounts,
	FocusDiagnosisCodes,
	FocusPlaceOfService,
	FocusUnitsOrDays,
	FocusDatesOfService,
}

var focusAliases = map[string]FocusArea{
	"procedure-codes":  FocusProcedureCodes,
	"procedure-code":   FocusProcedureCodes,
	"procedures":       FocusProcedureCodes,
	"cpt":              FocusProcedureCodes,
	"modifiers":        FocusModifiers,
	"modifier":         FocusModifiers,
	"amounts":          FocusAmounts,
	"amount":           FocusAmounts,
	"charges":          FocusAmounts,
	"diagnosis-codes":  FocusDiagnosisCodes,
	"diagnosis-code":   FocusDiagnosisCodes,
	"diagnosis":        FocusDiagnosisCodes,
	"icd":              FocusDiagnosisCodes,
	"place-of-service": FocusPlaceOfService,
	"pos":              FocusPlaceOfService,
	"units-or-days":    FocusUnitsOrDays,
	"units":            FocusUnitsOrDays,
	"days":             FocusUnitsOrDays,
	"dates-of-service": FocusDatesOfService,
	"service-dates":    FocusDatesOfService,
	"dates":            FocusDatesOfService,
}

// ParseFocusArea accepts canonical names and the common spellings analysts type
func ParseFocusArea(s string) (FocusArea, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	fa, ok := focusAliases[key]
	return fa, ok
}

const (
	maxTextLen    = 2000
	maxLabelLen   = 200
	maxListLength = 32
)

// Profile is a resolved, validated analysis profile.
// Resolve always hands out copies; a Profile never aliases a preset.
type Profile struct {
	Preset            string      `json:"preset,omitempty"`
	FocusAreas        []FocusArea `json:"focus_areas"`
	SimilarityRule    string      `json:"similarity_rule"`
	RiskFactors       []string    `json:"risk_factors"`
	ComparisonContext string      `json:"comparison_context"`
}

// Request names a preset and optional per-field overrides.
// A nil field means "keep the preset's value"; a supplied list replaces the preset's list whole.
type Request struct {
	Preset            string   `json:"preset,omitempty"`
	FocusAreas        []string `json:"focus_areas,omitempty"`
	SimilarityRule    *string  `json:"similarity_rule,omitempty"`
	RiskFactors       []string `json:"risk_factors,omitempty"`
	ComparisonContext *string  `json:"comparison_context,omitempty"`
}

// Clone returns a deep copy
func (p Profile) Clone() Profile {
	out := p
	out.FocusAreas = append([]FocusArea(nil), p.FocusAreas...)
	out.RiskFactors = append([]string(nil), p.RiskFactors...)
	return out
}

// Request converts a resolved profile back into a fully specified request
func (p Profile) Request() Request {
	focus := make([]string, len(p.FocusAreas))
	for i, fa := range p.FocusAreas {
		focus[i] = string(fa)
	}
	rule, ctx := p.SimilarityRule, p.ComparisonContext
	return Request{
		Preset:            p.Preset,
		FocusAreas:        focus,
		SimilarityRule:    &rule,
		RiskFactors:       append([]string{}, p.RiskFactors...),
		ComparisonContext: &ctx,
	}
}

// Applied echoes the profile in result form
func (p Profile) Applied() model.CriteriaApplied {
	focus := make([]string, len(p.FocusAreas))
	for i, fa := range p.FocusAreas {
		focus[i] = string(fa)
	}
	return model.CriteriaApplied{
		Preset:            p.Preset,
		FocusAreas:        focus,
		SimilarityRule:    p.SimilarityRule,
		RiskFactors:       append([]string{}, p.RiskFactors...),
		ComparisonContext: p.ComparisonContext,
	}
}

// HasFocus reports whether the profile examines the given area
func (p Profile) HasFocus(fa FocusArea) bool {
	for _, f := range p.FocusAreas {
		if f == fa {
			return true
		}
	}
	return false
}

// Resolve turns a request into a validated profile.
// An empty request yields a copy of the default preset.
func Resolve(req Request) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(req.Preset))
	if name == "" {
		name = DefaultPreset
	}
	base, ok := Preset(name)
	if !ok {
		return Profile{}, invalid("unknown preset %q (available: %s)", req.Preset, strings.Join(Presets(), ", "))
	}

	if req.FocusAreas != nil {
		focus := make([]FocusArea, 0, len(req.FocusAreas))
		seen := make(map[FocusArea]bool)
		for _, raw := range req.FocusAreas {
			fa, ok := ParseFocusArea(raw)
			if !ok {
				return Profile{}, invalid("unknown focus area %q", raw)
			}
			if !seen[fa] {
				seen[fa] = true
				focus = append(focus, fa)
			}
		}
		base.FocusAreas = focus
	}
	if req.SimilarityRule != nil {
		base.SimilarityRule = strings.TrimSpace(*req.SimilarityRule)
	}
	if req.RiskFactors != nil {
		risks := make([]string, 0, len(req.RiskFactors))
		seen := make(map[string]bool)
		for _, r := range req.RiskFactors {
			r = strings.TrimSpace(r)
			key := strings.ToLower(r)
			if r != "" && seen[key] {
				continue
			}
			seen[key] = true
			risks = append(risks, r)
		}
		base.RiskFactors = risks
	}
	if req.ComparisonContext != nil {
		base.ComparisonContext = strings.TrimSpace(*req.ComparisonContext)
	}

	if err := Validate(base); err != nil {
		return Profile{}, err
	}
	return base, nil
}

// Validate checks a profile without touching the network
func Validate(p Profile) error {
	if err := checkText("similarity_rule", p.SimilarityRule); err != nil {
		return err
	}
	if err := checkText("comparison_context", p.ComparisonContext); err != nil {
		return err
	}
	if len(p.FocusAreas) > maxListLength {
		return invalid("too many focus areas (%d, max %d)", len(p.FocusAreas), maxListLength)
	}
	for _, fa := range p.FocusAreas {
		if _, ok := focusAliases[string(fa)]; !ok {
			return invalid("unknown focus area %q", fa)
		}
	}
	if len(p.RiskFactors) > maxListLength {
		return invalid("too many risk factors (%d, max %d)", len(p.RiskFactors), maxListLength)
	}
	for i, r := range p.RiskFactors {
		if strings.TrimSpace(r) == "" {
			return invalid("risk factor %d is blank", i+1)
		}
		if utf8.RuneCountInString(r) > maxLabelLen {
			return invalid("risk factor %d exceeds %d characters", i+1, maxLabelLen)
		}
	}
	return nil
}

func checkText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid("%s must not be blank", field)
	}
	if utf8.RuneCountInString(v) > maxTextLen {
		return invalid("%s exceeds %d characters", field, maxTextLen)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errs.E(errs.KindInvalidCriteria, "criteria.resolve", fmt.Errorf(format, args...))
}
