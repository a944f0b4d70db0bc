package criteria

import "sort"

// Preset names
const (
	DefaultPreset = "default"
	StrictPreset  = "strict"
	LenientPreset = "lenient"
)

// Templates are never handed out directly; Preset returns clones.
var presets = map[string]Profile{
	DefaultPreset: {
		Preset:            DefaultPreset,
		FocusAreas:        []FocusArea{FocusProcedureCodes, FocusModifiers, FocusAmounts},
		SimilarityRule:    "Same status and similar amount range (+/- 50%)",
		RiskFactors:       []string{"missing modifiers", "invalid procedure codes", "amount thresholds"},
		ComparisonContext: "Compare with claims from last 30 days",
	},
	StrictPreset: {
		Preset:         StrictPreset,
		FocusAreas:     append([]FocusArea(nil), AllFocusAreas...),
		SimilarityRule: "Same claim type, same procedure codes and amount within +/- 25%",
		RiskFactors: []string{
			"missing modifiers",
			"invalid procedure codes",
			"amount thresholds",
			"missing diagnosis pointer",
			"place of service",
			"units anomalies",
			"duplicate procedures",
			"modifier formatting",
		},
		ComparisonContext: "Compare with claims from last 90 days",
	},
	LenientPreset: {
		Preset:            LenientPreset,
		FocusAreas:        []FocusArea{FocusProcedureCodes, FocusAmounts},
		SimilarityRule:    "Same claim type and amount within +/- 100%",
		RiskFactors:       []string{"missing modifiers"},
		ComparisonContext: "Compare with claims from last 180 days",
	},
}

// Presets lists preset names in sorted order
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a copy of the named template
func Preset(name string) (Profile, bool) {
	p, ok := presets[name]
	if !ok {
		return Profile{}, false
	}
	return p.Clone(), true
}
