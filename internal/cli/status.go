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

var statusCmd = &cobra.Command{
	Use:   "status <experiment-id> <draft|active|paused|completed>",
	Short: "Update an experiment's lifecycle status",
	Long: `Update an experiment's lifecycle status. Only active experiments accept
new assignments; existing assignments keep resolving regardless of status.

Example:
  variantly status onboarding-welcome-copy active`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	status := store.ExperimentStatus(strings.ToLower(args[1]))

	return withStore(func(s *store.SQLiteStore) error {
		eng := engine.New(s, nil)

		err := eng.UpdateExperimentStatus(context.Background(), id, status)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("experiment '%s' not found", id)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Experiment '%s' is now %s\n", id, strings.ToUpper(string(status)))
		return nil
	})
}
