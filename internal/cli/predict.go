package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/engine"
	"github.com/ppiankov/claimguard/internal/model"
)

var (
	outJSON        string
	outputFormat   string
	requestTimeout time.Duration
	autoCorrect    bool
)

// predictCmd represents the predict command
var predictCmd = &cobra.Command{
	Use:   "predict <claim-id>",
	Short: "Predict whether a claim will pass or fail adjudication",
	Long: `Predict fetches a claim, builds a similarity query for comparable historical
claims, compares the claim against them and reports PASS or FAIL with a
confidence, ranked reasons, risk factors and the similar claims used.

Example:
  claimguard predict CLM-000123
  claimguard predict CLM-000123 --preset strict --json prediction.json
  claimguard predict CLM-000123 --focus modifiers,amounts --risk "missing modifiers"
  claimguard predict CLM-000123 --auto-correct
  claimguard --mock --fixtures testdata/fixtures.json predict CLM-1001`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	addCriteriaFlags(predictCmd.Flags())
	predictCmd.Flags().StringVar(&outJSON, "json", "", "also write the result as JSON to this path")
	predictCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "stdout format (text, json)")
	predictCmd.Flags().DurationVar(&requestTimeout, "timeout", 2*time.Minute, "overall prediction timeout")
	predictCmd.Flags().BoolVar(&autoCorrect, "auto-correct", false, "run the correction catalog when the prediction is FAIL")
}

// addCriteriaFlags registers the analyst criteria overrides shared by predict and batch
func addCriteriaFlags(fs *pflag.FlagSet) {
	fs.String("preset", "", "criteria preset (default, strict, lenient)")
	fs.StringSlice("focus", nil, "focus areas, replacing the preset's (e.g. procedure-codes,modifiers)")
	fs.String("similarity-rule", "", "similarity rule, replacing the preset's")
	fs.StringArray("risk", nil, "risk factor label, replacing the preset's (repeatable)")
	fs.String("context", "", "comparison context, e.g. \"Compare with claims from last 90 days\"")
}

// criteriaFromFlags builds a request carrying only the overrides the user supplied
func criteriaFromFlags(fs *pflag.FlagSet) criteria.Request {
	var req criteria.Request
	req.Preset, _ = fs.GetString("preset")
	if fs.Changed("focus") {
		req.FocusAreas, _ = fs.GetStringSlice("focus")
	}
	if fs.Changed("similarity-rule") {
		v, _ := fs.GetString("similarity-rule")
		req.SimilarityRule = &v
	}
	if fs.Changed("risk") {
		req.RiskFactors, _ = fs.GetStringArray("risk")
	}
	if fs.Changed("context") {
		v, _ := fs.GetString("context")
		req.ComparisonContext = &v
	}
	return req
}

func runPredict(cmd *cobra.Command, args []string) error {
	claimID := args[0]
	req := criteriaFromFlags(cmd.Flags())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	eng, closer, err := engine.FromConfig(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	result, err := eng.Predict(ctx, claimID, req)
	if err != nil {
		return fmt.Errorf("predict %s: %w", claimID, err)
	}

	var correction *model.CorrectionReport
	if autoCorrect && result.Outcome == model.OutcomeFail {
		correction, err = eng.Correct(ctx, claimID)
		if err != nil {
			return fmt.Errorf("correct %s: %w", claimID, err)
		}
	}

	if outJSON != "" {
		if err := writeJSONFile(outJSON, predictionOutput{Prediction: result, Correction: correction}); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outJSON)
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, predictionOutput{Prediction: result, Correction: correction})
	}
	renderPrediction(out, result)
	if correction != nil {
		fmt.Fprintln(out)
		renderCorrection(out, correction)
	}
	return nil
}
