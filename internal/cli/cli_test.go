package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

func parseCriteria(t *testing.T, args ...string) criteria.Request {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addCriteriaFlags(cmd.Flags())
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return criteriaFromFlags(cmd.Flags())
}

func TestCriteriaFromFlags(t *testing.T) {
	if diff := cmp.Diff(criteria.Request{}, parseCriteria(t)); diff != "" {
		t.Errorf("no flags should leave every override unset (-want +got):\n%s", diff)
	}

	got := parseCriteria(t,
		"--preset", "strict",
		"--focus", "modifiers,amounts",
		"--risk", "missing modifiers",
		"--risk", "amount thresholds, high",
		"--context", "Compare with claims from last 90 days",
	)
	ctx := "Compare with claims from last 90 days"
	want := criteria.Request{
		Preset:            "strict",
		FocusAreas:        []string{"modifiers", "amounts"},
		RiskFactors:       []string{"missing modifiers", "amount thresholds, high"},
		ComparisonContext: &ctx,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("criteria (-want +got):\n%s", diff)
	}

	empty := parseCriteria(t, "--similarity-rule", "")
	if empty.SimilarityRule == nil || *empty.SimilarityRule != "" {
		t.Error("an explicitly empty similarity rule must still be passed through")
	}
}

func TestRenderPrediction(t *testing.T) {
	r := &model.PredictionResult{
		ClaimID:    "CLM-1001",
		Outcome:    model.OutcomeFail,
		Confidence: 0.873,
		Reasons:    []string{"Missing Modifier GW: line 2 (G0299) lacks modifier GW", "3 of 5 similar claims failed"},
		RiskFactors: []model.RiskFactor{
			{Factor: "Missing Modifier GW", Severity: model.SeverityHigh, Details: "line 2 (G0299) lacks modifier GW"},
		},
		SimilarClaims: []model.SimilarClaim{
			{ClaimID: "CLM-0901", SimilarityScore: 0.91, Outcome: model.OutcomeFail, Reason: "Missing modifier GW"},
			{ClaimID: "CLM-0902", SimilarityScore: 0.88, Outcome: model.OutcomePass},
		},
		SimilarityExplanation: "Compared against 5 similar claims.",
		CriteriaApplied:       model.CriteriaApplied{Preset: "default", FocusAreas: []string{"procedure-codes", "modifiers"}},
	}

	var buf bytes.Buffer
	renderPrediction(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"Claim CLM-1001: FAIL (confidence 0.87)",
		"Criteria: default preset, focus procedure-codes, modifiers",
		"  1. Missing Modifier GW: line 2 (G0299) lacks modifier GW",
		"  [HIGH] Missing Modifier GW: line 2 (G0299) lacks modifier GW",
		"CLM-0901         0.910  FAIL     Missing modifier GW",
		"Compared against 5 similar claims.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Findings:") {
		t.Error("empty findings should not be rendered")
	}
}

func TestRenderCorrection(t *testing.T) {
	r := &model.CorrectionReport{
		ClaimID:        "CLM-2001",
		CatalogVersion: "2024.06.1",
		Entries: []model.CorrectionEntry{
			{RuleID: "HOSPICE-GW", Status: model.CorrectionNotApplicable},
			{RuleID: "POS-INHERIT", Status: model.CorrectionApplied, Description: "set place of service 11 on line 2"},
			{RuleID: "DX-POINTER", Status: model.CorrectionSkipped, Description: "ambiguous"},
		},
	}
	var buf bytes.Buffer
	renderCorrection(&buf, r)
	out := buf.String()

	if !strings.HasPrefix(out, "Corrections for claim CLM-2001 (catalog 2024.06.1): 1 applied, 1 skipped") {
		t.Errorf("header:\n%s", out)
	}
	if strings.Contains(out, "HOSPICE-GW") {
		t.Error("not-applicable rules should be hidden")
	}
	if !strings.Contains(out, "POS-INHERIT") || !strings.Contains(out, "DX-POINTER") {
		t.Errorf("missing entries:\n%s", out)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if diff := cmp.Diff(model.DefaultConfig(), cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}

	if err := writeDefaultConfig(path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second write: %v", err)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "****",
		"sk-abcdefghijklm": "sk-a****",
	}
	for in, want := range tests {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"CLM-1001":      "CLM-1001",
		"a/b\\c:d":      "a_b_c_d",
		" claim 7 ":     "claim-7",
		"..":            "claim",
		"":              "claim",
		"x?y*z<w>|\"q\"": "x_y_z_w___q_",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Addr == "" || cfg.Engine.ComparisonLimit != 5 {
		t.Errorf("defaults not applied: %+v", cfg.Engine)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("gateway timeout = %s", cfg.Gateway.Timeout)
	}
}
