package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/variantly/variantly/internal/engine"
	"github.com/variantly/variantly/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Show detailed results for an experiment",
	Long:  `Show per-variant conversion rates, confidence intervals, and the significance verdict.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	id := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		eng := engine.New(s, nil)

		results, err := eng.GetExperimentResults(context.Background(), id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("experiment '%s' not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}

		exp := results.Experiment

		fmt.Printf("EXPERIMENT: %s (%s)\n", exp.Name, exp.ID)
		fmt.Printf("STATUS: %s\n", strings.ToUpper(string(exp.Status)))
		if m := exp.PrimaryMetric(); m != nil {
			fmt.Printf("PRIMARY METRIC: %s (%s)\n", m.Name, m.EventType)
		}
		fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
		fmt.Println()

		fmt.Println("VARIANT           PARTICIPANTS  CONVERSIONS  RATE     95% CI")
		fmt.Println(strings.Repeat("─", 68))

		for _, v := range results.Variants {
			marker := ""
			if v.Variant.IsControl {
				marker = " (control)"
			}
			if results.Significance != nil && results.Significance.Winner == v.Variant.ID {
				marker = " ← WINNER"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
			if v.Participants == 0 {
				ciStr = "N/A"
			}

			name := v.Variant.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-12d  %-11d  %-7s  %s%s\n",
				name,
				v.Participants,
				v.Conversions,
				fmt.Sprintf("%.1f%%", v.ConversionRate),
				ciStr,
				marker,
			)
		}

		fmt.Println()

		if sig := results.Significance; sig != nil {
			if sig.IsSignificant && sig.Winner != "" {
				winner := exp.VariantByID(sig.Winner)
				fmt.Printf("Significant at %.0f%% confidence: \"%s\" leads control by %.1f points (z-test: %.1f%%)\n",
					sig.Confidence, winner.Name, sig.DifferencePts, sig.ZConfidence)
			} else if sig.IsSignificant {
				fmt.Printf("Significant gap (%.1f points) but no challenger beats control\n", sig.DifferencePts)
			} else {
				fmt.Printf("No significant difference yet (%.1f point gap, z-test: %.1f%%)\n",
					sig.DifferencePts, sig.ZConfidence)
			}
		}

		return nil
	})
}
