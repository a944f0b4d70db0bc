package analyze

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/claimguard/internal/model"
)

// issue is one problem a check found; a risk label folds its issues into a single RiskFactor
type issue struct {
	factor   string
	severity model.Severity
	details  string
}

// evidence is what every check sees
type evidence struct {
	rubric     Rubric
	target     model.Claim
	comparison []model.Claim
	passing    []model.Claim
	failing    []model.Claim
	label      string
}

type check func(ev *evidence) []issue

// classify maps a free-text risk label onto the check that inspects it.
// Labels nothing specific matches fall back to the comparison set's failure remarks.
func classify(label string) check {
	l := strings.ToLower(label)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(l, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("modifier") && has("format", "case", "style"):
		return checkModifierFormatting
	case has("modifier"):
		return checkMissingModifiers
	case has("duplicate"):
		return checkDuplicateProcedures
	case has("procedure", "cpt", "hcpcs"):
		return checkProcedureCodes
	case has("diagnosis", "icd"):
		return checkDiagnosis
	case has("place of service", "place-of-service") || posWord.MatchString(l):
		return checkPlaceOfService
	case has("date"):
		return checkServiceDates
	case has("unit", "days"):
		return checkUnits
	case has("amount", "charge", "threshold"):
		return checkAmounts
	}
	return checkFailurePattern
}

var posWord = regexp.MustCompile(`\bpos\b`)

// assess runs the check for one label and folds the issues: the most severe
// issue names the factor, all issues contribute details
func assess(ev *evidence) *model.RiskFactor {
	issues := classify(ev.label)(ev)
	if len(issues) == 0 {
		return nil
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].severity < issues[j].severity
	})
	details := make([]string, len(issues))
	for i, is := range issues {
		details[i] = is.details
	}
	return &model.RiskFactor{
		Factor:   issues[0].factor,
		Severity: issues[0].severity,
		Details:  strings.Join(details, "; "),
	}
}

func checkMissingModifiers(ev *evidence) []issue {
	var out []issue
	t := ev.target

	for _, mod := range ev.rubric.RequiredModifiers[t.Type] {
		var lacking []string
		for _, l := range t.Lines {
			if !l.HasModifier(mod) {
				lacking = append(lacking, lineRef(l))
			}
		}
		if len(lacking) == 0 {
			continue
		}
		details := fmt.Sprintf("%s lack%s modifier %s required on %s claims",
			strings.Join(lacking, ", "), plural(len(lacking) == 1), mod, t.Type)
		if n := countClaims(ev.failing, func(c model.Claim) bool { return lacksOnAnyLine(c, mod) }); n > 0 {
			details += fmt.Sprintf("; %d of %d failed comparison claims show the same gap", n, len(ev.failing))
		}
		out = append(out, issue{
			factor:   "Missing Modifier " + mod,
			severity: ev.rubric.Structural,
			details:  details,
		})
	}
	if len(out) > 0 || len(ev.passing) == 0 {
		return out
	}

	have := toSet(t.Modifiers())
	for _, mod := range sharedTraits(ev.passing, func(c model.Claim) []string { return c.Modifiers() }, ev.rubric.PatternShare) {
		if have[mod] {
			continue
		}
		n := countClaims(ev.passing, func(c model.Claim) bool { return toSet(c.Modifiers())[mod] })
		out = append(out, issue{
			factor:   "Modifier " + mod + " Absent Versus Passing Claims",
			severity: ev.rubric.Pattern,
			details:  fmt.Sprintf("modifier %s appears on %d of %d passing comparison claims but not on this claim", mod, n, len(ev.passing)),
		})
	}
	return out
}

func checkModifierFormatting(ev *evidence) []issue {
	var bad []string
	for _, l := range ev.target.Lines {
		for _, m := range l.Modifiers {
			if m != strings.ToUpper(m) || m != strings.TrimSpace(m) || len(strings.TrimSpace(m)) != 2 {
				bad = append(bad, fmt.Sprintf("%s: %q", lineRef(l), m))
			}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return []issue{{
		factor:   "Modifier Formatting",
		severity: ev.rubric.Stylistic,
		details:  "modifiers should be two upper-case characters: " + strings.Join(bad, ", "),
	}}
}

// HCPCS level II (letter + 4 digits) or CPT (4 digits + digit, F or T)
var procedureCode = regexp.MustCompile(`^([A-Z][0-9]{4}|[0-9]{4}[0-9FT])$`)

func checkProcedureCodes(ev *evidence) []issue {
	var out []issue
	var missing, invalid []string
	for _, l := range ev.target.Lines {
		code := strings.ToUpper(strings.TrimSpace(l.ProcedureCode))
		switch {
		case code == "":
			missing = append(missing, lineRef(l))
		case !procedureCode.MatchString(code):
			invalid = append(invalid, fmt.Sprintf("%s: %q", lineRef(l), l.ProcedureCode))
		}
	}
	if len(missing) > 0 {
		out = append(out, issue{"Missing Procedure Code", ev.rubric.Structural, strings.Join(missing, ", ") + " carry no procedure code"})
	}
	if len(invalid) > 0 {
		out = append(out, issue{"Invalid Procedure Code", ev.rubric.Structural, "not a valid CPT/HCPCS code: " + strings.Join(invalid, ", ")})
	}

	if len(ev.failing) == 0 || len(ev.passing) == 0 {
		return out
	}
	for _, code := range ev.target.ProcedureCodes() {
		bills := func(c model.Claim) bool { return toSet(c.ProcedureCodes())[code] }
		failed := countClaims(ev.failing, bills)
		if failed > 0 && countClaims(ev.passing, bills) == 0 {
			out = append(out, issue{
				factor:   "Procedure Code " + code + " Linked To Failures",
				severity: ev.rubric.Pattern,
				details:  fmt.Sprintf("procedure code %s appears in %d failed and no passing comparison claims", code, failed),
			})
		}
	}
	return out
}

var repeatModifiers = []string{"76", "77", "59", "XE", "XS", "XP", "XU"}

func checkDuplicateProcedures(ev *evidence) []issue {
	var out []issue
	seen := make(map[string]model.ServiceLine)
	for _, l := range ev.target.Lines {
		code := strings.ToUpper(strings.TrimSpace(l.ProcedureCode))
		if code == "" {
			continue
		}
		key := code + "|" + l.ServiceDate.Format("2006-01-02")
		first, dup := seen[key]
		if !dup {
			seen[key] = l
			continue
		}
		if hasAny(l, repeatModifiers) {
			continue
		}
		out = append(out, issue{
			factor:   "Duplicate Procedure " + code,
			severity: ev.rubric.Pattern,
			details: fmt.Sprintf("lines %d and %d bill %s on %s without a repeat-procedure modifier",
				first.Number, l.Number, code, dateOrUnknown(l)),
		})
	}
	return out
}

func checkDiagnosis(ev *evidence) []issue {
	var out []issue
	t := ev.target
	var unpointed, outOfRange []string
	for _, l := range t.Lines {
		if len(l.DiagnosisPointers) == 0 {
			unpointed = append(unpointed, lineRef(l))
			continue
		}
		if len(t.DiagnosisCodes) == 0 {
			continue
		}
		for _, p := range l.DiagnosisPointers {
			if p < 1 || p > len(t.DiagnosisCodes) {
				outOfRange = append(outOfRange, fmt.Sprintf("%s -> %d", lineRef(l), p))
			}
		}
	}
	if len(unpointed) > 0 {
		out = append(out, issue{"Missing Diagnosis Pointer", ev.rubric.Structural,
			strings.Join(unpointed, ", ") + " point at no diagnosis"})
	}
	if len(outOfRange) > 0 {
		out = append(out, issue{"Invalid Diagnosis Pointer", ev.rubric.Structural,
			fmt.Sprintf("claim lists %d diagnosis codes: %s", len(t.DiagnosisCodes), strings.Join(outOfRange, ", "))})
	}
	if len(t.DiagnosisCodes) == 0 && len(ev.passing) > 0 {
		n := countClaims(ev.passing, func(c model.Claim) bool { return len(c.DiagnosisCodes) > 0 })
		if share(n, len(ev.passing)) >= ev.rubric.PatternShare {
			out = append(out, issue{"No Diagnosis Codes", ev.rubric.Pattern,
				fmt.Sprintf("claim carries no diagnosis codes while %d of %d passing comparison claims do", n, len(ev.passing))})
		}
	}
	return out
}

func checkPlaceOfService(ev *evidence) []issue {
	var out []issue
	var missing []string
	codes := make(map[int]bool)
	for _, l := range ev.target.Lines {
		if l.PlaceOfService == 0 {
			missing = append(missing, lineRef(l))
			continue
		}
		codes[l.PlaceOfService] = true
	}
	if len(missing) > 0 {
		out = append(out, issue{"Missing Place Of Service", ev.rubric.Structural,
			strings.Join(missing, ", ") + " carry no place of service"})
	}
	if len(codes) > 1 {
		out = append(out, issue{"Inconsistent Place Of Service", ev.rubric.Stylistic,
			fmt.Sprintf("service lines use %d different place-of-service codes", len(codes))})
	}

	if len(ev.passing) == 0 || len(codes) == 0 {
		return out
	}
	common := sharedTraits(ev.passing, placesOfService, ev.rubric.PatternShare)
	if len(common) == 0 {
		return out
	}
	for code := range codes {
		if toSet(common)[fmt.Sprint(code)] {
			return out
		}
	}
	out = append(out, issue{"Unusual Place Of Service", ev.rubric.Pattern,
		fmt.Sprintf("passing comparison claims mostly use place of service %s", strings.Join(common, ", "))})
	return out
}

func checkServiceDates(ev *evidence) []issue {
	var missing, inverted []string
	for _, l := range ev.target.Lines {
		if l.ServiceDate.IsZero() {
			missing = append(missing, lineRef(l))
			continue
		}
		if !l.ServiceDateTo.IsZero() && l.ServiceDateTo.Before(l.ServiceDate) {
			inverted = append(inverted, lineRef(l))
		}
	}
	var out []issue
	if len(missing) > 0 {
		out = append(out, issue{"Missing Service Date", ev.rubric.Structural,
			strings.Join(missing, ", ") + " carry no date of service"})
	}
	if len(inverted) > 0 {
		out = append(out, issue{"Inverted Service Dates", ev.rubric.Structural,
			strings.Join(inverted, ", ") + " end before they start"})
	}
	return out
}

func checkUnits(ev *evidence) []issue {
	var out []issue
	var missing []string
	for _, l := range ev.target.Lines {
		if l.Units <= 0 {
			missing = append(missing, lineRef(l))
		}
	}
	if len(missing) > 0 {
		out = append(out, issue{"Missing Units", ev.rubric.Structural,
			strings.Join(missing, ", ") + " bill no units or days"})
	}
	if len(ev.comparison) == 0 {
		return out
	}
	units := make([]float64, 0, len(ev.comparison))
	for _, c := range ev.comparison {
		units = append(units, c.TotalUnits())
	}
	if dev, m, ok := deviation(ev.target.TotalUnits(), units); ok && dev > ev.rubric.UnitsDeviation {
		out = append(out, issue{"Units Outside Comparison Range", ev.rubric.Pattern,
			fmt.Sprintf("%g units vs comparison median %g (%+.0f%%)", ev.target.TotalUnits(), m, signedPct(ev.target.TotalUnits(), m))})
	}
	return out
}

func checkAmounts(ev *evidence) []issue {
	var out []issue
	t := ev.target
	if t.ClaimedAmount <= 0 {
		out = append(out, issue{"Missing Claimed Amount", ev.rubric.Structural, "claimed amount is zero"})
	}
	if len(t.Lines) > 0 {
		var sum float64
		for _, l := range t.Lines {
			sum += l.Charge
		}
		if diff := sum - t.ClaimedAmount; diff > 0.01 || diff < -0.01 {
			out = append(out, issue{"Line Charges Mismatch", ev.rubric.Pattern,
				fmt.Sprintf("line charges total %s but the claim asks for %s", money(sum), money(t.ClaimedAmount))})
		}
	}
	if len(ev.comparison) == 0 || t.ClaimedAmount <= 0 {
		return out
	}
	amounts := make([]float64, 0, len(ev.comparison))
	for _, c := range ev.comparison {
		amounts = append(amounts, c.ClaimedAmount)
	}
	if dev, m, ok := deviation(t.ClaimedAmount, amounts); ok && dev > ev.rubric.AmountDeviation {
		out = append(out, issue{"Amount Outside Comparison Range", ev.rubric.Pattern,
			fmt.Sprintf("claimed %s vs comparison median %s (%+.0f%%)", money(t.ClaimedAmount), money(m), signedPct(t.ClaimedAmount, m))})
	}
	return out
}

// checkFailurePattern looks for the label's words in the failure remarks of the comparison set
func checkFailurePattern(ev *evidence) []issue {
	if len(ev.failing) == 0 {
		return nil
	}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(ev.label)) {
		if len(w) >= 4 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}
	n := countClaims(ev.failing, func(c model.Claim) bool {
		text := strings.ToLower(c.Remark + " " + c.ErrorDescription)
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	})
	if n == 0 || share(n, len(ev.comparison)) < ev.rubric.PatternShare {
		return nil
	}
	return []issue{{
		factor:   titleCase(ev.label),
		severity: ev.rubric.Pattern,
		details:  fmt.Sprintf("%d of %d comparison claims failed citing %s", n, len(ev.comparison), ev.label),
	}}
}

func lineRef(l model.ServiceLine) string {
	code := l.ProcedureCode
	if code == "" {
		code = "?"
	}
	return fmt.Sprintf("line %d (%s)", l.Number, code)
}

func plural(single bool) string {
	if single {
		return "s"
	}
	return ""
}

func lacksOnAnyLine(c model.Claim, mod string) bool {
	for _, l := range c.Lines {
		if !l.HasModifier(mod) {
			return true
		}
	}
	return false
}

func hasAny(l model.ServiceLine, mods []string) bool {
	for _, m := range mods {
		if l.HasModifier(m) {
			return true
		}
	}
	return false
}

func countClaims(claims []model.Claim, pred func(model.Claim) bool) int {
	n := 0
	for _, c := range claims {
		if pred(c) {
			n++
		}
	}
	return n
}

// sharedTraits returns the traits present on at least minShare of the claims, sorted
func sharedTraits(claims []model.Claim, traits func(model.Claim) []string, minShare float64) []string {
	counts := make(map[string]int)
	for _, c := range claims {
		for t := range toSet(traits(c)) {
			counts[t]++
		}
	}
	order := make([]string, 0, len(counts))
	for t := range counts {
		order = append(order, t)
	}
	sort.Strings(order)
	var out []string
	for _, t := range order {
		if share(counts[t], len(claims)) >= minShare {
			out = append(out, t)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func share(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of)
}

// deviation is the relative distance of v from the median of values
func deviation(v float64, values []float64) (dev, med float64, ok bool) {
	med = median(values)
	if med == 0 {
		return 0, 0, false
	}
	d := (v - med) / med
	if d < 0 {
		d = -d
	}
	return d, med, true
}

func signedPct(v, med float64) float64 {
	return (v - med) / med * 100
}

func dateOrUnknown(l model.ServiceLine) string {
	if l.ServiceDate.IsZero() {
		return "an unknown date"
	}
	return l.ServiceDate.Format("2006-01-02")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToTitle(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
