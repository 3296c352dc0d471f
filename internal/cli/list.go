package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/variantly/variantly/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long:  `List all experiments with their status and exposure counts.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		exps, err := s.ListExperiments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(exps) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with: variantly create --template content")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVARIANTS\tTRAFFIC\tPARTICIPANTS\tCREATED")

		for _, exp := range exps {
			exposures, err := s.CountEventsByVariant(ctx, exp.ID, store.EventExposure)
			if err != nil {
				return fmt.Errorf("failed to get counts for %s: %w", exp.ID, err)
			}

			participants := 0
			for _, n := range exposures {
				participants += n
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.0f%%\t%d\t%s\n",
				exp.ID,
				exp.Name,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				exp.TrafficAllocation,
				participants,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
