package analyze

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

const insufficient = "insufficient comparison data"

// finding compares the target's value for one focus area against the comparison distribution
func finding(fa criteria.FocusArea, ev *evidence) model.Finding {
	f := model.Finding{FocusArea: string(fa)}
	if len(ev.comparison) == 0 {
		f.Summary = insufficient
		f.Insufficient = true
		return f
	}

	t := ev.target
	m := len(ev.comparison)
	switch fa {
	case criteria.FocusProcedureCodes:
		f.Summary = presence("procedure code", t.ProcedureCodes(), ev, func(c model.Claim) []string { return c.ProcedureCodes() })
	case criteria.FocusModifiers:
		f.Summary = presence("modifier", t.Modifiers(), ev, func(c model.Claim) []string { return c.Modifiers() })
		if missing := absentShared(t.Modifiers(), ev.passing, func(c model.Claim) []string { return c.Modifiers() }, ev.rubric.PatternShare); len(missing) > 0 {
			f.Summary += "; common on passing claims but absent here: " + strings.Join(missing, ", ")
		}
	case criteria.FocusAmounts:
		amounts := make([]float64, 0, m)
		for _, c := range ev.comparison {
			amounts = append(amounts, c.ClaimedAmount)
		}
		med := median(amounts)
		f.Summary = fmt.Sprintf("claimed amount %s vs comparison median %s", money(t.ClaimedAmount), money(med))
		if med != 0 {
			f.Summary += fmt.Sprintf(" (%+.0f%%)", signedPct(t.ClaimedAmount, med))
		}
		f.Summary += fmt.Sprintf(" across %d claims", m)
	case criteria.FocusDiagnosisCodes:
		codes := upper(t.DiagnosisCodes)
		if len(codes) == 0 {
			n := countClaims(ev.comparison, func(c model.Claim) bool { return len(c.DiagnosisCodes) > 0 })
			f.Summary = fmt.Sprintf("claim carries no diagnosis codes; %d of %d comparison claims do", n, m)
			break
		}
		f.Summary = presence("diagnosis code", codes, ev, func(c model.Claim) []string { return upper(c.DiagnosisCodes) })
	case criteria.FocusPlaceOfService:
		f.Summary = presence("place of service", placesOfService(t), ev, placesOfService)
	case criteria.FocusUnitsOrDays:
		units := make([]float64, 0, m)
		for _, c := range ev.comparison {
			units = append(units, c.TotalUnits())
		}
		f.Summary = fmt.Sprintf("%s total units vs comparison median %s", num(t.TotalUnits()), num(median(units)))
	case criteria.FocusDatesOfService:
		from, to := t.ServicePeriod()
		if from.IsZero() {
			f.Summary = "claim has no dates of service"
			break
		}
		inside := countClaims(ev.comparison, func(c model.Claim) bool {
			cf, ct := c.ServicePeriod()
			return !cf.IsZero() && !cf.After(to) && !ct.Before(from)
		})
		f.Summary = fmt.Sprintf("service period %s to %s overlaps %d of %d comparison claims",
			from.Format("2006-01-02"), to.Format("2006-01-02"), inside, m)
	default:
		f.Summary = "focus area not evaluated"
	}
	return f
}

// presence renders "X appears in N of M comparison claims (K failed)" per target value
func presence(noun string, values []string, ev *evidence, traits func(model.Claim) []string) string {
	if len(values) == 0 {
		return fmt.Sprintf("claim has no %s values to compare", noun)
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		has := func(c model.Claim) bool { return toSet(traits(c))[v] }
		parts = append(parts, fmt.Sprintf("%s %s appears in %d of %d comparison claims (%d of %d failed)",
			noun, v, countClaims(ev.comparison, has), len(ev.comparison),
			countClaims(ev.failing, has), len(ev.failing)))
	}
	return strings.Join(parts, "; ")
}

func absentShared(have []string, claims []model.Claim, traits func(model.Claim) []string, minShare float64) []string {
	if len(claims) == 0 {
		return nil
	}
	set := toSet(have)
	var out []string
	for _, t := range sharedTraits(claims, traits, minShare) {
		if !set[t] {
			out = append(out, t)
		}
	}
	return out
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
