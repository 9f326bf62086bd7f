package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/redact"
	"github.com/dshills/nftdrop/internal/verify"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitStateError   = 4
	ExitAborted      = 5
)

// Global flags
var (
	flagConfig   string
	flagEnvFile  string
	flagCache    string
	flagAssets   string
	flagNetwork  string
	flagLogLevel string
	flagLogFile  string
	flagLogJSON  bool
	flagYes      bool
)

var rootCmd = &cobra.Command{
	Use:   "nftdrop",
	Short: "Upload, mint and verify an NFT collection",
	Long: "nftdrop uploads asset pairs to Arweave through Bundlr, mints them as " +
		"Metaplex NFTs on Solana and verifies them into a sized collection. " +
		"Progress is kept in a local cache so every step can be rerun.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ./nftdrop.yaml or the user config dir)")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	pf.StringVar(&flagCache, "cache", "", "Cache file path")
	pf.StringVar(&flagAssets, "assets", "", "Assets directory")
	pf.StringVar(&flagNetwork, "network", "", "Network mode (production, development)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFile, "log-file", "", "Also write JSON logs to this file, rotated")
	pf.BoolVar(&flagLogJSON, "log-json", false, "Log JSON to stderr")
	pf.BoolVarP(&flagYes, "yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(createCollectionCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(fundCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

// Run executes the root command and returns an exit code.
func Run() int {
	exitCode = ExitSuccess
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var errAborted = errors.New("aborted")

// usageError marks a bad combination of arguments found by a handler.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// exitCodeFor maps a handler error to the process exit code.
func exitCodeFor(err error) int {
	var (
		cfgErr   *config.ConfigError
		consErr  *cache.ConsistencyError
		stateErr *verify.StateError
		usageErr *usageError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errAborted):
		return ExitAborted
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &consErr), errors.As(err, &stateErr),
		errors.Is(err, fs.ErrNotExist), errors.Is(err, asset.ErrUnpaired):
		return ExitStateError
	default:
		return ExitRuntimeError
	}
}

// handle adapts a command body so that its error is reported on stderr
// and turned into the exit code instead of cobra's usage error.
func handle(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", redact.URLs(err.Error()))
			exitCode = exitCodeFor(err)
		}
		return nil
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print nftdrop version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "nftdrop version %s\n", version)
	},
}
