package correct

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
)

const maxModifiers = 4

var repeatModifiers = []string{"76", "77", "59", "XE", "XS", "XP", "XU"}

// Engine evaluates every catalog rule against a claim. The catalog is never
// mutated, so one Engine serves concurrent callers.
type Engine struct {
	catalog *Catalog
	log     logrus.FieldLogger
}

// NewEngine creates an engine over a validated catalog
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog, log: logging.Discard()}
}

// WithLogger sets the logger used for per-rule debug output
func (e *Engine) WithLogger(log logrus.FieldLogger) *Engine {
	e.log = logging.OrDiscard(log)
	return e
}

// Catalog returns the engine's catalog
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Correct reports what each rule would do to the claim
func (e *Engine) Correct(claim model.Claim) model.CorrectionReport {
	_, report := e.Apply(claim)
	return report
}

// Apply evaluates every rule against the unmodified claim and returns a corrected
// copy alongside the report. The report has exactly one entry per rule.
func (e *Engine) Apply(claim model.Claim) (model.Claim, model.CorrectionReport) {
	snapshot := claim.Clone()
	work := claim.Clone()
	report := model.CorrectionReport{
		ClaimID:        claim.ID,
		CatalogVersion: e.catalog.Version,
		Entries:        make([]model.CorrectionEntry, 0, len(e.catalog.Rules)),
	}

	dups := duplicateLines(snapshot)
	for _, rule := range e.catalog.Rules {
		entry := model.CorrectionEntry{RuleID: rule.ID}
		lines, ok := match(snapshot, rule.When, dups)
		if !ok {
			entry.Status = model.CorrectionNotApplicable
			entry.Description = rule.Description
		} else {
			entry.Status, entry.Description = apply(rule.Action, snapshot, &work, lines, dups)
		}
		e.log.WithFields(logrus.Fields{
			"claim_id": claim.ID,
			"rule_id":  rule.ID,
			"status":   entry.Status,
		}).Debug("Rule evaluated")
		report.Entries = append(report.Entries, entry)
	}
	return work, report
}

// match returns the indexes of the lines the rule targets
func match(c model.Claim, cond Condition, dups map[int]bool) ([]int, bool) {
	if len(cond.ClaimTypes) > 0 && !containsFold(cond.ClaimTypes, string(c.Type)) {
		return nil, false
	}
	if cond.Field != "" && !strings.Contains(strings.ToLower(claimField(c, cond.Field)), strings.ToLower(cond.Contains)) {
		return nil, false
	}
	if cond.NoServiceLines {
		return nil, len(c.Lines) == 0
	}

	lineLevel := cond.LineMissingModifier != "" || cond.LineMissing != "" || cond.DuplicateProcedure || cond.MalformedModifiers
	var lines []int
	for i, l := range c.Lines {
		if len(cond.ProcedureCodes) > 0 && !containsFold(cond.ProcedureCodes, strings.TrimSpace(l.ProcedureCode)) {
			continue
		}
		if cond.LineMissingModifier != "" && l.HasModifier(cond.LineMissingModifier) {
			continue
		}
		if cond.LineMissing != "" && !lineMissing(l, cond.LineMissing) {
			continue
		}
		if cond.DuplicateProcedure && !dups[i] {
			continue
		}
		if cond.MalformedModifiers && len(malformed(l)) == 0 {
			continue
		}
		lines = append(lines, i)
	}
	if (lineLevel || len(cond.ProcedureCodes) > 0) && len(lines) == 0 {
		return nil, false
	}
	return lines, true
}

func apply(a Action, snap model.Claim, work *model.Claim, lines []int, dups map[int]bool) (model.CorrectionStatus, string) {
	switch a.Type {
	case ActionAddModifier:
		return addModifier(strings.ToUpper(strings.TrimSpace(a.Value)), snap, work, lines)

	case ActionAddRepeatModifier:
		var targets []int
		for _, i := range lines {
			if dups[i] {
				targets = append(targets, i)
			}
		}
		if len(targets) == 0 {
			return model.CorrectionSkipped, "no repeated procedure line to mark"
		}
		return addModifier(strings.ToUpper(strings.TrimSpace(a.Value)), snap, work, targets)

	case ActionSetPlaceOfService:
		targets := filterLines(snap, lines, func(l model.ServiceLine) bool { return l.PlaceOfService == 0 })
		if len(targets) == 0 {
			return model.CorrectionSkipped, "every line already has a place of service"
		}
		code := 0
		if a.Value != "" {
			code, _ = strconv.Atoi(a.Value)
		} else {
			used := distinctPOS(snap)
			switch len(used) {
			case 0:
				return model.CorrectionSkipped, "no line carries a place of service to inherit"
			case 1:
				code = used[0]
			default:
				parts := make([]string, len(used))
				for i, u := range used {
					parts[i] = strconv.Itoa(u)
				}
				return model.CorrectionSkipped, "ambiguous place of service: lines use " + strings.Join(parts, ", ")
			}
		}
		for _, i := range targets {
			work.Lines[i].PlaceOfService = code
		}
		return model.CorrectionApplied, fmt.Sprintf("set place of service %d (%s) on %s",
			code, model.PlaceOfServiceName(code), lineList(snap, targets))

	case ActionSetDiagnosisPtr:
		targets := filterLines(snap, lines, func(l model.ServiceLine) bool { return len(l.DiagnosisPointers) == 0 })
		if len(targets) == 0 {
			return model.CorrectionSkipped, "every line already points at a diagnosis"
		}
		switch n := len(snap.DiagnosisCodes); {
		case n == 0:
			return model.CorrectionSkipped, "claim carries no diagnosis codes to point at"
		case n > 1:
			return model.CorrectionSkipped, fmt.Sprintf("claim lists %d diagnosis codes; the pointer for %s is ambiguous", n, lineList(snap, targets))
		}
		for _, i := range targets {
			work.Lines[i].DiagnosisPointers = []int{1}
		}
		return model.CorrectionApplied, fmt.Sprintf("pointed %s at diagnosis %s", lineList(snap, targets), snap.DiagnosisCodes[0])

	case ActionSetUnits:
		targets := filterLines(snap, lines, func(l model.ServiceLine) bool { return l.Units <= 0 })
		if len(targets) == 0 {
			return model.CorrectionSkipped, "every line already bills units"
		}
		units := 1.0
		if a.Value != "" {
			units, _ = strconv.ParseFloat(a.Value, 64)
		}
		for _, i := range targets {
			work.Lines[i].Units = units
		}
		return model.CorrectionApplied, fmt.Sprintf("set units to %s on %s", strconv.FormatFloat(units, 'f', -1, 64), lineList(snap, targets))

	case ActionUppercaseModifiers:
		var changes, unfixable []string
		for _, i := range lines {
			l := snap.Lines[i]
			bad := malformed(l)
			if len(bad) == 0 {
				continue
			}
			fixed := make([]string, 0, len(l.Modifiers))
			var renamed []string
			for _, m := range l.Modifiers {
				norm := strings.ToUpper(strings.TrimSpace(m))
				if len(norm) != 2 {
					unfixable = append(unfixable, fmt.Sprintf("line %d: %q", l.Number, m))
					fixed = append(fixed, m)
					continue
				}
				if norm != m {
					renamed = append(renamed, m+" -> "+norm)
				}
				fixed = append(fixed, norm)
			}
			work.Lines[i].Modifiers = fixed
			if len(renamed) > 0 {
				changes = append(changes, fmt.Sprintf("line %d: %s", l.Number, strings.Join(renamed, ", ")))
			}
		}
		if len(changes) == 0 {
			return model.CorrectionSkipped, "modifiers cannot be normalized: " + strings.Join(unfixable, ", ")
		}
		desc := "normalized modifiers on " + strings.Join(changes, "; ")
		if len(unfixable) > 0 {
			desc += "; left " + strings.Join(unfixable, ", ") + " for manual review"
		}
		return model.CorrectionApplied, desc

	case ActionFlag:
		return model.CorrectionSkipped, "manual correction required: " + a.Value
	}
	return model.CorrectionSkipped, fmt.Sprintf("unsupported action %q", a.Type)
}

func addModifier(mod string, snap model.Claim, work *model.Claim, lines []int) (model.CorrectionStatus, string) {
	var added, full []int
	for _, i := range lines {
		l := snap.Lines[i]
		if l.HasModifier(mod) {
			continue
		}
		if len(l.Modifiers) >= maxModifiers {
			full = append(full, i)
			continue
		}
		if !work.Lines[i].HasModifier(mod) {
			work.Lines[i].Modifiers = append(work.Lines[i].Modifiers, mod)
		}
		added = append(added, i)
	}
	if len(added) == 0 {
		if len(full) == 0 {
			return model.CorrectionSkipped, "modifier " + mod + " already present"
		}
		return model.CorrectionSkipped, fmt.Sprintf("%s already carr%s %d modifiers", lineList(snap, full), pluralY(len(full)), maxModifiers)
	}
	desc := fmt.Sprintf("added modifier %s to %s", mod, lineList(snap, added))
	if len(full) > 0 {
		desc += fmt.Sprintf("; %s already carr%s %d modifiers", lineList(snap, full), pluralY(len(full)), maxModifiers)
	}
	return model.CorrectionApplied, desc
}

// duplicateLines marks every repeat of a procedure on the same date that carries no repeat modifier
func duplicateLines(c model.Claim) map[int]bool {
	dups := make(map[int]bool)
	seen := make(map[string]bool)
	for i, l := range c.Lines {
		code := strings.ToUpper(strings.TrimSpace(l.ProcedureCode))
		if code == "" {
			continue
		}
		key := code + "|" + l.ServiceDate.Format("2006-01-02")
		if seen[key] {
			repeat := false
			for _, m := range repeatModifiers {
				if l.HasModifier(m) {
					repeat = true
					break
				}
			}
			if !repeat {
				dups[i] = true
			}
			continue
		}
		seen[key] = true
	}
	return dups
}

func malformed(l model.ServiceLine) []string {
	var bad []string
	for _, m := range l.Modifiers {
		if m != strings.ToUpper(m) || m != strings.TrimSpace(m) || len(m) != 2 {
			bad = append(bad, m)
		}
	}
	return bad
}

func lineMissing(l model.ServiceLine, field string) bool {
	switch field {
	case LinePlaceOfService:
		return l.PlaceOfService == 0
	case LineDiagnosisPointer:
		return len(l.DiagnosisPointers) == 0
	case LineUnits:
		return l.Units <= 0
	case LineServiceDate:
		return l.ServiceDate.IsZero()
	}
	return false
}

func claimField(c model.Claim, field string) string {
	switch field {
	case "remark":
		return c.Remark
	case "error_description":
		return c.ErrorDescription
	case "name":
		return c.Name
	}
	return ""
}

func filterLines(c model.Claim, lines []int, keep func(model.ServiceLine) bool) []int {
	var out []int
	for _, i := range lines {
		if keep(c.Lines[i]) {
			out = append(out, i)
		}
	}
	return out
}

func distinctPOS(c model.Claim) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range c.Lines {
		if l.PlaceOfService != 0 && !seen[l.PlaceOfService] {
			seen[l.PlaceOfService] = true
			out = append(out, l.PlaceOfService)
		}
	}
	sort.Ints(out)
	return out
}

// lineList renders "line 2" or "lines 1, 3" by display number
func lineList(c model.Claim, idx []int) string {
	nums := make([]string, len(idx))
	for i, x := range idx {
		nums[i] = strconv.Itoa(c.Lines[x].Number)
	}
	if len(nums) == 1 {
		return "line " + nums[0]
	}
	return "lines " + strings.Join(nums, ", ")
}

func pluralY(n int) string {
	if n == 1 {
		return "ies"
	}
	return "y"
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
