// Package cli wires Cobra subcommands to the application buses; it is a thin
// controller with no business logic.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/config"
	"github.com/plaenen/shopcore/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	verbose    bool

	cfg *config.Config
}

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "shopctl",
		Short: "Operate the shopcore catalog, accounts and orders",
		// Let main handle fatal error rendering through structured logs.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = opts.logFormat
			}
			if opts.verbose {
				cfg.Log.Level = "debug"
			}
			if err := logging.Configure(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./shopcore.{toml,yaml,json})")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console, text, json")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newHandlersCmd(opts),
		newCategoriesCmd(opts),
		newUsersCmd(opts),
		newOrdersCmd(opts),
		newCacheCmd(opts),
		newNATSCmd(opts),
		newTracesCmd(opts),
		newVersionCmd(),
	)
	return root
}
