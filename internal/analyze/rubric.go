package analyze

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimguard/internal/model"
)

// Rubric decides risk factor severities. Structural problems (a required field
// or modifier absent) rank above pattern anomalies relative to the comparison
// set, which rank above stylistic deviations.
type Rubric struct {
	RequiredModifiers map[model.ClaimType][]string
	AmountDeviation   float64 // relative distance from the comparison median that counts as anomalous
	UnitsDeviation    float64
	PatternShare      float64 // share of comparison claims that makes a trait a pattern
	Structural        model.Severity
	Pattern           model.Severity
	Stylistic         model.Severity
}

// DefaultRubric mirrors model.DefaultConfig
func DefaultRubric() Rubric {
	r, _ := RubricFromConfig(model.DefaultConfig().Rubric)
	return r
}

// RubricFromConfig validates severity labels and normalizes modifier lists
func RubricFromConfig(cfg model.RubricConfig) (Rubric, error) {
	r := Rubric{
		RequiredModifiers: make(map[model.ClaimType][]string, len(cfg.RequiredModifiers)),
		AmountDeviation:   cfg.AmountDeviation,
		UnitsDeviation:    cfg.UnitsDeviation,
		PatternShare:      cfg.PatternShare,
	}
	for claimType, mods := range cfg.RequiredModifiers {
		norm := make([]string, 0, len(mods))
		for _, m := range mods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				norm = append(norm, m)
			}
		}
		r.RequiredModifiers[model.ClaimType(strings.ToLower(claimType))] = norm
	}

	levels := []struct {
		name  string
		label string
		dst   *model.Severity
		def   model.Severity
	}{
		{"structural", cfg.Levels.Structural, &r.Structural, model.SeverityHigh},
		{"pattern", cfg.Levels.Pattern, &r.Pattern, model.SeverityMedium},
		{"stylistic", cfg.Levels.Stylistic, &r.Stylistic, model.SeverityLow},
	}
	for _, l := range levels {
		if l.label == "" {
			*l.dst = l.def
			continue
		}
		s, ok := model.ParseSeverity(l.label)
		if !ok {
			return Rubric{}, fmt.Errorf("rubric level %s: %w", l.name, &model.UnknownSeverityError{Value: l.label})
		}
		*l.dst = s
	}

	if r.AmountDeviation <= 0 {
		r.AmountDeviation = 0.5
	}
	if r.UnitsDeviation <= 0 {
		r.UnitsDeviation = 1.0
	}
	if r.PatternShare <= 0 || r.PatternShare > 1 {
		r.PatternShare = 0.5
	}
	return r, nil
}
