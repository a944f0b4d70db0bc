package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimguard/internal/engine"
)

var correctTimeout time.Duration

// correctCmd represents the correct command
var correctCmd = &cobra.Command{
	Use:   "correct <claim-id>",
	Short: "Run the correction rule catalog against a claim",
	Long: `Correct fetches a fresh snapshot of the claim and evaluates every rule of the
correction catalog against it. Each rule reports APPLIED, SKIPPED or
NOT_APPLICABLE. Nothing is written back to the claims repository.

Example:
  claimguard correct CLM-000123
  claimguard correct CLM-000123 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "stdout format (text, json)")
	correctCmd.Flags().DurationVar(&correctTimeout, "timeout", time.Minute, "overall correction timeout")
}

func runCorrect(cmd *cobra.Command, args []string) error {
	claimID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, closer, err := engine.FromConfig(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), correctTimeout)
	defer cancel()

	report, err := eng.Correct(ctx, claimID)
	if err != nil {
		return fmt.Errorf("correct %s: %w", claimID, err)
	}

	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	renderCorrection(cmd.OutOrStdout(), report)
	return nil
}
