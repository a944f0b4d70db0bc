package analyze

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

// Similarity scores how close other is to target over the focus areas, in [0,1].
// With no focus areas the claim type and amount decide.
func Similarity(target, other model.Claim, focus []criteria.FocusArea) float64 {
	if len(focus) == 0 {
		s := closeness(target.ClaimedAmount, other.ClaimedAmount)
		if target.Type == other.Type {
			s = (s + 1) / 2
		} else {
			s /= 2
		}
		return round3(s)
	}

	var total float64
	for _, fa := range focus {
		total += dimension(fa, target, other)
	}
	return round3(total / float64(len(focus)))
}

func dimension(fa criteria.FocusArea, a, b model.Claim) float64 {
	switch fa {
	case criteria.FocusProcedureCodes:
		return jaccard(a.ProcedureCodes(), b.ProcedureCodes())
	case criteria.FocusModifiers:
		return jaccard(a.Modifiers(), b.Modifiers())
	case criteria.FocusAmounts:
		return closeness(a.ClaimedAmount, b.ClaimedAmount)
	case criteria.FocusDiagnosisCodes:
		return jaccard(upper(a.DiagnosisCodes), upper(b.DiagnosisCodes))
	case criteria.FocusPlaceOfService:
		return jaccard(placesOfService(a), placesOfService(b))
	case criteria.FocusUnitsOrDays:
		return closeness(a.TotalUnits(), b.TotalUnits())
	case criteria.FocusDatesOfService:
		startA, _ := a.ServicePeriod()
		startB, _ := b.ServicePeriod()
		if startA.IsZero() || startB.IsZero() {
			if startA.IsZero() && startB.IsZero() {
				return 1
			}
			return 0
		}
		days := math.Abs(startA.Sub(startB).Hours() / 24)
		return math.Max(0, 1-days/365)
	}
	return 0
}

// jaccard of two sets; two empty sets are identical
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]int, len(a)+len(b))
	for _, x := range a {
		set[x] |= 1
	}
	for _, x := range b {
		set[x] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// closeness is 1 for equal values, falling linearly with relative distance
func closeness(a, b float64) float64 {
	hi := math.Max(math.Abs(a), math.Abs(b))
	if hi == 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(a-b)/hi)
}

func placesOfService(c model.Claim) []string {
	seen := make(map[int]bool)
	var out []string
	for _, l := range c.Lines {
		if l.PlaceOfService != 0 && !seen[l.PlaceOfService] {
			seen[l.PlaceOfService] = true
			out = append(out, strconv.Itoa(l.PlaceOfService))
		}
	}
	return out
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
