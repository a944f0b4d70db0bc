package similarity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

// Prompt is the composite the reasoning service receives: the claim description,
// then the similarity rule and comparison context verbatim
func Prompt(claim model.Claim, profile criteria.Profile) string {
	var b strings.Builder
	b.WriteString("Target claim:\n")
	b.WriteString(Describe(claim, profile.FocusAreas))
	b.WriteString("\nSimilarity rule: ")
	b.WriteString(profile.SimilarityRule)
	b.WriteString("\nComparison context: ")
	b.WriteString(profile.ComparisonContext)
	b.WriteString("\n")
	return b.String()
}

// Describe renders the claim restricted to the given focus areas. The claim
// type is always stated since similarity rules routinely refer to it. With no
// focus areas only the amount and status are described.
func Describe(claim model.Claim, focus []criteria.FocusArea) string {
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, "- "+fmt.Sprintf(format, args...))
	}

	claimType := string(claim.Type)
	if claimType == "" {
		claimType = "unknown"
	}
	add("Claim type: %s", claimType)

	if len(focus) == 0 {
		add("Status: %s", claim.Status)
		add("Claimed amount: %s", money(claim.ClaimedAmount))
		return strings.Join(lines, "\n") + "\n"
	}

	for _, fa := range focus {
		switch fa {
		case criteria.FocusProcedureCodes:
			add("Procedure codes: %s", orNone(claim.ProcedureCodes()))
		case criteria.FocusModifiers:
			add("Modifiers by line: %s", perLine(claim, func(l model.ServiceLine) string {
				return orNone(l.Modifiers)
			}))
		case criteria.FocusAmounts:
			add("Claimed amount: %s; line charges: %s", money(claim.ClaimedAmount), perLine(claim, func(l model.ServiceLine) string {
				return money(l.Charge)
			}))
		case criteria.FocusDiagnosisCodes:
			add("Diagnosis codes: %s; pointers by line: %s", orNone(claim.DiagnosisCodes), perLine(claim, func(l model.ServiceLine) string {
				ptrs := make([]string, len(l.DiagnosisPointers))
				for i, p := range l.DiagnosisPointers {
					ptrs[i] = strconv.Itoa(p)
				}
				return orNone(ptrs)
			}))
		case criteria.FocusPlaceOfService:
			add("Place of service by line: %s", perLine(claim, func(l model.ServiceLine) string {
				if l.PlaceOfService == 0 {
					return "none"
				}
				return fmt.Sprintf("%d (%s)", l.PlaceOfService, model.PlaceOfServiceName(l.PlaceOfService))
			}))
		case criteria.FocusUnitsOrDays:
			add("Units by line: %s", perLine(claim, func(l model.ServiceLine) string {
				kind := string(l.UnitKind)
				if kind == "" {
					kind = "units"
				}
				return strconv.FormatFloat(l.Units, 'f', -1, 64) + " " + kind
			}))
		case criteria.FocusDatesOfService:
			from, to := claim.ServicePeriod()
			if from.IsZero() {
				add("Service period: unknown")
			} else {
				add("Service period: %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
			}
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func perLine(claim model.Claim, render func(model.ServiceLine) string) string {
	if len(claim.Lines) == 0 {
		return "no service lines"
	}
	parts := make([]string, len(claim.Lines))
	for i, l := range claim.Lines {
		code := l.ProcedureCode
		if code == "" {
			code = "?"
		}
		parts[i] = fmt.Sprintf("line %d (%s): %s", l.Number, code, render(l))
	}
	return strings.Join(parts, "; ")
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
