package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimguard/internal/criteria"
	"github.com/ppiankov/claimguard/internal/model"
)

// presetsCmd represents the presets command
var presetsCmd = &cobra.Command{
	Use:   "presets [name]",
	Short: "List criteria presets or show one in full",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		names := criteria.Presets()
		if len(args) == 1 {
			names = []string{strings.ToLower(args[0])}
		}

		var shown []model.CriteriaApplied
		for _, name := range names {
			p, ok := criteria.Preset(name)
			if !ok {
				return fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(criteria.Presets(), ", "))
			}
			shown = append(shown, p.Applied())
		}

		if outputFormat == "json" {
			return writeJSON(out, shown)
		}
		for i, p := range shown {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%s\n", p.Preset)
			fmt.Fprintf(out, "  focus areas:        %s\n", strings.Join(p.FocusAreas, ", "))
			fmt.Fprintf(out, "  similarity rule:    %s\n", p.SimilarityRule)
			fmt.Fprintf(out, "  risk factors:       %s\n", strings.Join(p.RiskFactors, "; "))
			fmt.Fprintf(out, "  comparison context: %s\n", p.ComparisonContext)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "stdout format (text, json)")
}
