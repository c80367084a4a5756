// Package cli builds the contentstore command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lowfatcats/contentstore/pkg/config"
	"github.com/lowfatcats/contentstore/pkg/observability/logger"
	"github.com/lowfatcats/contentstore/pkg/store"
)

// DefaultEnvPrefix prefixes every environment variable read by the loader.
const DefaultEnvPrefix = "CONTENTSTORE"

// BackendOpener opens the store backend. store.Open is the default.
type BackendOpener func(cfg config.StoreConfig, log logger.Logger) (*store.Backend, error)

// Options customize the command tree.
type Options struct {
	Name       string
	ConfigPath string
	EnvPrefix  string
	// OpenBackend replaces store.Open, e.g. with a seeded in-memory store.
	OpenBackend BackendOpener
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level": "observability.log_level",
	"backend":   "store.backend",
	"prefix":    "store.prefix",
}

// NewRootCommand creates the CLI with serve, tables, read, healthcheck,
// version and config subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "contentstore"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	if opts.OpenBackend == nil {
		opts.OpenBackend = store.Open
	}

	app := &app{opts: opts}
	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         "Content and Brief data-access service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("backend", "", "store backend (dynamodb, mongodb, memory)")
	flags.String("prefix", "", "table name prefix")

	rootCmd.AddCommand(
		app.serveCommand(),
		app.tablesCommand(),
		app.getCommand(),
		app.briefCommand(),
		app.listCommand(),
		app.queryCommand(),
		app.scanCommand(),
		app.healthcheckCommand(),
		app.versionCommand(),
		app.configCommand(),
	)
	return rootCmd
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
