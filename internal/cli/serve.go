package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/variantly/variantly/internal/server"
	"github.com/variantly/variantly/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the variantly HTTP server.

The server provides:
  - Assignment endpoint for requesting a user's variant
  - Track endpoint for reporting conversion events
  - Token-protected admin API for experiments, status, and results
  - Health check and Prometheus metrics endpoints

Example:
  variantly serve --port 8080`,
	RunE: runServe,
}

func init() {
	defaultPort := 8080
	if p := os.Getenv("VL_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			defaultPort = parsed
		}
	}

	serveCmd.Flags().IntVarP(&port, "port", "p", defaultPort, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// Token file path (alongside database), read by the token command
	tokenFile := filepath.Join(filepath.Dir(dbPath), ".variantly-token")

	srv := server.New(s, port, tokenFile, logger)

	fmt.Printf("variantly running on http://localhost:%d\n", port)
	fmt.Printf("Admin token: %s\n", srv.Token())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}
