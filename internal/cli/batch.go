package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimguard/internal/engine"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/worker"
)

var (
	outputDir    string
	batchTimeout time.Duration
	batchCorrect bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Predict multiple claims from a file in parallel",
	Long: `Batch predicts every claim id listed in a file:
- Read claim ids from the input file (one per line, # comments allowed)
- Predict claims in parallel with a configurable worker count
- Optionally run the correction catalog on claims predicted to FAIL
- Write one JSON document per claim to the output directory

Example:
  claimguard batch claims.txt
  claimguard batch claims.txt --concurrency 8 --output-dir ./predictions
  claimguard batch claims.txt --preset strict --auto-correct`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("concurrency", 0, "number of concurrent workers (default from concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./claimguard-results", "output directory for per-claim results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchCorrect, "auto-correct", false, "run the correction catalog on claims predicted to FAIL")
	addCriteriaFlags(batchCmd.Flags())

	_ = viper.BindPFlag("concurrency.workers", batchCmd.Flags().Lookup("concurrency"))
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	req := criteriaFromFlags(cmd.Flags())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	workers := cfg.Concurrency.Workers
	if workers <= 0 {
		workers = model.DefaultConfig().Concurrency.Workers
	}

	fmt.Fprintf(os.Stderr, "\n%s\n  ClaimGuard Batch Prediction\n%s\n\n", rule, rule)
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  Gateway:      %s\n\n", cfg.Gateway.Mode)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	eng, closer, err := engine.FromConfig(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	processor := worker.NewBatchProcessor(eng, workers).
		WithCriteria(req).
		WithAutoCorrect(batchCorrect)

	start := time.Now()
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	var passed, failed, errored, corrected int
	for _, result := range results {
		if result.Error != nil {
			errored++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.ClaimID, result.Error)
			continue
		}

		path := filepath.Join(outputDir, sanitizeFilename(result.ClaimID)+".json")
		if err := writeJSONFile(path, predictionOutput{Prediction: result.Prediction, Correction: result.Correction}); err != nil {
			errored++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.ClaimID, err)
			continue
		}

		switch result.Prediction.Outcome {
		case model.OutcomeFail:
			failed++
		default:
			passed++
		}
		note := ""
		if result.Correction != nil {
			corrected++
			note = fmt.Sprintf(", %d corrections applied", result.Correction.Count(model.CorrectionApplied))
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %s (confidence %.2f%s)\n", result.ClaimID, result.Prediction.Outcome, result.Prediction.Confidence, note)
	}

	fmt.Fprintf(os.Stderr, "\n%s\n  Batch Complete\n%s\n\n", rule, rule)
	fmt.Fprintf(os.Stderr, "  Total:      %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  PASS:       %d\n", passed)
	fmt.Fprintf(os.Stderr, "  FAIL:       %d\n", failed)
	if batchCorrect {
		fmt.Fprintf(os.Stderr, "  Corrected:  %d\n", corrected)
	}
	fmt.Fprintf(os.Stderr, "  Errors:     %d\n", errored)
	fmt.Fprintf(os.Stderr, "  Elapsed:    %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Output:     %s\n\n", outputDir)

	if errored > 0 && errored == len(results) {
		return fmt.Errorf("all %d claims failed", errored)
	}
	return nil
}
