package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/claimguard/internal/model"
)

// predictionOutput is the JSON document written by predict and batch
type predictionOutput struct {
	Prediction *model.PredictionResult `json:"prediction_result"`
	Correction *model.CorrectionReport `json:"correction,omitempty"`
}

const rule = "═══════════════════════════════════════════════════════════"

func renderPrediction(w io.Writer, r *model.PredictionResult) {
	fmt.Fprintf(w, "Claim %s: %s (confidence %.2f)\n", r.ClaimID, r.Outcome, r.Confidence)
	if r.CriteriaApplied.Preset != "" {
		fmt.Fprintf(w, "Criteria: %s preset, focus %s\n", r.CriteriaApplied.Preset, strings.Join(r.CriteriaApplied.FocusAreas, ", "))
	} else {
		fmt.Fprintf(w, "Criteria: focus %s\n", strings.Join(r.CriteriaApplied.FocusAreas, ", "))
	}

	if len(r.Reasons) > 0 {
		fmt.Fprintln(w, "\nTop reasons:")
		for i, reason := range r.Reasons {
			fmt.Fprintf(w, "  %d. %s\n", i+1, reason)
		}
	}

	if len(r.RiskFactors) > 0 {
		fmt.Fprintln(w, "\nRisk factors:")
		for _, rf := range r.RiskFactors {
			fmt.Fprintf(w, "  [%s] %s: %s\n", rf.Severity, rf.Factor, rf.Details)
		}
	}

	if len(r.SimilarClaims) > 0 {
		fmt.Fprintln(w, "\nSimilar claims:")
		for _, sc := range r.SimilarClaims {
			line := fmt.Sprintf("  %-16s %.3f  %-7s", sc.ClaimID, sc.SimilarityScore, sc.Outcome)
			if sc.Reason != "" {
				line += "  " + sc.Reason
			}
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}

	if len(r.Findings) > 0 {
		fmt.Fprintln(w, "\nFindings:")
		for _, f := range r.Findings {
			fmt.Fprintf(w, "  %s: %s\n", f.FocusArea, f.Summary)
		}
	}

	if r.SimilarityExplanation != "" {
		fmt.Fprintf(w, "\n%s\n", r.SimilarityExplanation)
	}
}

func renderCorrection(w io.Writer, r *model.CorrectionReport) {
	fmt.Fprintf(w, "Corrections for claim %s (catalog %s): %d applied, %d skipped\n",
		r.ClaimID, r.CatalogVersion, r.Count(model.CorrectionApplied), r.Count(model.CorrectionSkipped))
	for _, e := range r.Entries {
		if e.Status == model.CorrectionNotApplicable {
			continue
		}
		fmt.Fprintf(w, "  %-8s %-16s %s\n", e.Status, e.RuleID, e.Description)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v any) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return writeJSON(f, v)
}

// sanitizeFilename makes a claim id safe to use as a file name
func sanitizeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	).Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		s = "claim"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
