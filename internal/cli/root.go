package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "variantly",
	Short: "Variantly - a minimal, self-hosted experimentation engine",
	Long: `Variantly is a minimal, self-hosted A/B experimentation engine for
trial-signup and onboarding funnels. Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'variantly serve').`,
	RunE: runServe, // Default action is to start the server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("VL_DB_PATH", "./variantly.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
