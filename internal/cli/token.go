package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the running server's admin token",
	Long: `Show the admin API token of the currently running server.

The serve command writes the token to a file alongside the database; this
reads it back so you can call the admin endpoints:

  curl -H "Authorization: Bearer $(variantly token)" http://localhost:8080/v1/experiments`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	tokenFile := filepath.Join(filepath.Dir(dbPath), ".variantly-token")

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no token file found - is the server running? (looked in %s)", tokenFile)
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	fmt.Println(strings.TrimSpace(string(data)))
	return nil
}
