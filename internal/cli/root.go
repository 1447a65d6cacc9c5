package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/config"
	"github.com/roach88/storefront/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	User     string
	StoreID  string
	Timeout  time.Duration

	// Config is loaded from the environment before any command runs;
	// explicit flags override it.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the storefront CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront commerce state tools",
		Long: `Inspect and drive the commerce state of storefront users: saved
addresses, the cart, checkout records and the orders reconciled from them.

Settings come from the environment (STOREFRONT_DB, STOREFRONT_STORE_ID,
STOREFRONT_OP_TIMEOUT, STOREFRONT_LOCAL_ORDERS, LOG_LEVEL, LOG_FORMAT, ...)
and can be overridden with flags.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $STOREFRONT_DB or storefront.db)")
	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "user id to act as")
	cmd.PersistentFlags().StringVar(&opts.StoreID, "store-id", "", "store id used in order numbers (default $STOREFRONT_STORE_ID or SF)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "per-operation timeout (default $STOREFRONT_OP_TIMEOUT or 10s)")

	// Add subcommands
	cmd.AddCommand(NewAddressCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewCheckoutCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// load reads the environment configuration, applies flag overrides and
// builds the logger. Logs go to stderr so JSON output stays parseable.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if o.Database != "" {
		cfg.Store.DatabasePath = o.Database
	}
	if o.StoreID != "" {
		cfg.Store.StoreID = o.StoreID
	}
	if o.Timeout > 0 {
		cfg.Store.OperationTimeout = o.Timeout
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}

	o.Config = cfg
	o.Logger = logging.New(cfg.Logging, cmd.ErrOrStderr())
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
