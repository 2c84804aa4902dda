package cli

import (
	"fmt"
	"os"

	"github.com/dshills/sheltercache/internal/redact"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitIncomplete   = 1
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "sheltercache",
	Short: "Offline cache manager for the shelter map",
	Long:  "sheltercache populates, serves and evicts the versioned offline cache of the shelter map page.",
}

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports err on stderr, with secrets masked, and records code as the
// exit status.
func fail(code int, err error) error {
	fmt.Fprintf(os.Stderr, "Error: %s\n", redact.Secrets(err.Error()))
	exitCode = code
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print sheltercache version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "sheltercache version %s\n", version)
	},
}
