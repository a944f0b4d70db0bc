package correct

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/claimguard/internal/model"
)

var march = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	return NewEngine(cat)
}

// cleanClaim satisfies no rule in the embedded catalog
func cleanClaim() model.Claim {
	return model.Claim{
		ID:             "c-1",
		Type:           model.ClaimTypeProfessional,
		DiagnosisCodes: []string{"J20.9"},
		Lines: []model.ServiceLine{
			{Number: 1, ProcedureCode: "99213", Modifiers: []string{"25"}, ServiceDate: march, PlaceOfService: 11, Units: 1, DiagnosisPointers: []int{1}},
			{Number: 2, ProcedureCode: "87880", ServiceDate: march, PlaceOfService: 11, Units: 1, DiagnosisPointers: []int{1}},
		},
	}
}

func statuses(r model.CorrectionReport) map[string]model.CorrectionStatus {
	out := make(map[string]model.CorrectionStatus, len(r.Entries))
	for _, e := range r.Entries {
		out[e.RuleID] = e.Status
	}
	return out
}

func entry(t *testing.T, r model.CorrectionReport, id string) model.CorrectionEntry {
	t.Helper()
	for _, e := range r.Entries {
		if e.RuleID == id {
			return e
		}
	}
	t.Fatalf("no entry for rule %s", id)
	return model.CorrectionEntry{}
}

func TestEngine_Correct_NothingApplies(t *testing.T) {
	e := defaultEngine(t)
	report := e.Correct(cleanClaim())

	if len(report.Entries) != len(e.Catalog().Rules) {
		t.Fatalf("report has %d entries, catalog has %d rules", len(report.Entries), len(e.Catalog().Rules))
	}
	if n := report.Count(model.CorrectionNotApplicable); n != len(report.Entries) {
		t.Errorf("expected all NOT_APPLICABLE, got %+v", report.Entries)
	}
	for i, rule := range e.Catalog().Rules {
		if report.Entries[i].RuleID != rule.ID {
			t.Errorf("entry %d is %s, want catalog order %s", i, report.Entries[i].RuleID, rule.ID)
		}
	}
	if report.CatalogVersion == "" {
		t.Error("catalog version should be reported")
	}
}

func TestEngine_Correct_HospiceMissingGW(t *testing.T) {
	claim := cleanClaim()
	claim.Type = model.ClaimTypeHospice
	claim.Lines[0].Modifiers = []string{"GW"}
	claim.Lines[0].ProcedureCode = "T2042"
	claim.Lines[1].ProcedureCode = "G0299"

	corrected, report := defaultEngine(t).Apply(claim)

	got := entry(t, report, "HOSPICE-GW")
	if got.Status != model.CorrectionApplied || got.Description != "added modifier GW to line 2" {
		t.Errorf("HOSPICE-GW = %+v", got)
	}
	if diff := cmp.Diff([]string{"GW"}, corrected.Lines[1].Modifiers); diff != "" {
		t.Errorf("corrected modifiers (-want +got):\n%s", diff)
	}
	if claim.Lines[1].Modifiers != nil {
		t.Error("input claim must not be modified")
	}
	if s := statuses(report)["REMARK-GW"]; s != model.CorrectionNotApplicable {
		t.Errorf("REMARK-GW without a remark = %s", s)
	}
}

func TestEngine_Correct_RulesSeeUnmodifiedClaim(t *testing.T) {
	claim := cleanClaim()
	claim.Type = model.ClaimTypeHospice
	claim.Remark = "Rejected: missing modifier GW on service lines"

	corrected, report := defaultEngine(t).Apply(claim)

	for _, id := range []string{"HOSPICE-GW", "REMARK-GW"} {
		if e := entry(t, report, id); e.Status != model.CorrectionApplied || e.Description != "added modifier GW to lines 1, 2" {
			t.Errorf("%s = %+v", id, e)
		}
	}
	if diff := cmp.Diff([]string{"25", "GW"}, corrected.Lines[0].Modifiers); diff != "" {
		t.Errorf("GW must be added once (-want +got):\n%s", diff)
	}
}

func TestEngine_Correct_ModifierSlotsFull(t *testing.T) {
	claim := cleanClaim()
	claim.Type = model.ClaimTypeDME
	claim.Lines[0].Modifiers = []string{"NU", "RR", "KH", "59"}
	claim.Lines[1].Modifiers = []string{"NU", "RR", "KH", "59"}

	got := entry(t, defaultEngine(t).Correct(claim), "DME-KX")
	if got.Status != model.CorrectionSkipped || !strings.Contains(got.Description, "lines 1, 2 already carry 4 modifiers") {
		t.Errorf("DME-KX = %+v", got)
	}
}

func TestEngine_Correct_PlaceOfService(t *testing.T) {
	t.Run("inherited", func(t *testing.T) {
		claim := cleanClaim()
		claim.Lines[1].PlaceOfService = 0
		corrected, report := defaultEngine(t).Apply(claim)
		got := entry(t, report, "POS-INHERIT")
		if got.Status != model.CorrectionApplied || !strings.HasPrefix(got.Description, "set place of service 11") {
			t.Errorf("POS-INHERIT = %+v", got)
		}
		if corrected.Lines[1].PlaceOfService != 11 {
			t.Errorf("POS = %d", corrected.Lines[1].PlaceOfService)
		}
	})

	t.Run("ambiguous", func(t *testing.T) {
		claim := cleanClaim()
		claim.Lines[0].PlaceOfService = 12
		claim.Lines = append(claim.Lines, model.ServiceLine{Number: 3, ProcedureCode: "99000", ServiceDate: march, Units: 1, DiagnosisPointers: []int{1}})
		got := entry(t, defaultEngine(t).Correct(claim), "POS-INHERIT")
		if got.Status != model.CorrectionSkipped || got.Description != "ambiguous place of service: lines use 11, 12" {
			t.Errorf("POS-INHERIT = %+v", got)
		}
	})
}

func TestEngine_Correct_DiagnosisPointer(t *testing.T) {
	claim := cleanClaim()
	claim.Lines[1].DiagnosisPointers = nil

	got := entry(t, defaultEngine(t).Correct(claim), "DX-POINTER")
	if got.Status != model.CorrectionApplied || got.Description != "pointed line 2 at diagnosis J20.9" {
		t.Errorf("single diagnosis: %+v", got)
	}

	claim.DiagnosisCodes = []string{"J20.9", "R05.9"}
	got = entry(t, defaultEngine(t).Correct(claim), "DX-POINTER")
	if got.Status != model.CorrectionSkipped || !strings.Contains(got.Description, "ambiguous") {
		t.Errorf("multiple diagnoses: %+v", got)
	}
}

func TestEngine_Correct_DuplicateAndFormatting(t *testing.T) {
	claim := cleanClaim()
	claim.Lines[0].Modifiers = []string{"gw", " 25"}
	claim.Lines = append(claim.Lines, model.ServiceLine{
		Number: 3, ProcedureCode: "87880", ServiceDate: march, PlaceOfService: 11, Units: 1, DiagnosisPointers: []int{1},
	})

	corrected, report := defaultEngine(t).Apply(claim)

	dup := entry(t, report, "DUPLICATE-76")
	if dup.Status != model.CorrectionApplied || dup.Description != "added modifier 76 to line 3" {
		t.Errorf("DUPLICATE-76 = %+v", dup)
	}
	if diff := cmp.Diff([]string{"76"}, corrected.Lines[2].Modifiers); diff != "" {
		t.Errorf("line 3 modifiers (-want +got):\n%s", diff)
	}

	norm := entry(t, report, "MODIFIER-CASE")
	if norm.Status != model.CorrectionApplied {
		t.Errorf("MODIFIER-CASE = %+v", norm)
	}
	if diff := cmp.Diff([]string{"GW", "25"}, corrected.Lines[0].Modifiers); diff != "" {
		t.Errorf("normalized modifiers (-want +got):\n%s", diff)
	}
}

func TestEngine_Correct_NoServiceLines(t *testing.T) {
	claim := cleanClaim()
	claim.Lines = nil

	report := defaultEngine(t).Correct(claim)
	got := entry(t, report, "POPULATE-LINES")
	if got.Status != model.CorrectionSkipped || got.Description != "manual correction required: Populate Service Line" {
		t.Errorf("POPULATE-LINES = %+v", got)
	}
	if report.Count(model.CorrectionApplied) != 0 {
		t.Errorf("nothing can be applied to a claim without lines: %+v", report.Entries)
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no version", "rules: []\n"},
		{"unknown key", "version: '1'\nrules:\n  - id: A\n    when: {no_service_lines: true}\n    action: {type: flag, value: x}\n    priority: 3\n"},
		{"duplicate id", "version: '1'\nrules:\n  - id: A\n    when: {no_service_lines: true}\n    action: {type: flag, value: x}\n  - id: A\n    when: {no_service_lines: true}\n    action: {type: flag, value: x}\n"},
		{"no condition", "version: '1'\nrules:\n  - id: A\n    action: {type: flag, value: x}\n"},
		{"unknown action", "version: '1'\nrules:\n  - id: A\n    when: {no_service_lines: true}\n    action: {type: delete_claim}\n"},
		{"bad modifier", "version: '1'\nrules:\n  - id: A\n    when: {claim_types: [dme]}\n    action: {type: add_modifier, value: KXX}\n"},
		{"dangling contains", "version: '1'\nrules:\n  - id: A\n    when: {contains: GW}\n    action: {type: add_modifier, value: GW}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := "version: \"test-1\"\nrules:\n  - id: ONLY\n    description: only rule\n    when: {claim_types: [pharmacy]}\n    action: {type: flag, value: check NDC}\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	report := NewEngine(cat).Correct(cleanClaim())
	if report.CatalogVersion != "test-1" || len(report.Entries) != 1 {
		t.Errorf("report = %+v", report)
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	def, err := LoadCatalog("")
	if err != nil || len(def.Rules) == 0 {
		t.Errorf("empty path should load the embedded catalog: %v", err)
	}
}
