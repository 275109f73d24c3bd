// Package cli implements the metatables command line: the API server plus
// table and metadata-table commands that run against a local catalog.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arkilian/metatables/internal/app"
	"github.com/arkilian/metatables/internal/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	envFile    string
	dataDir    string
	logLevel   string
	jsonOutput bool
}

// NewRootCommand builds the metatables command tree.
func NewRootCommand(version string) *cobra.Command {
	if version == "" {
		version = "dev"
	}
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "metatables",
		Version: version,
		Short:   "Metadata tables over manifest-based table snapshots",
		Long: `metatables plans and scans the entries and all_entries metadata tables of
tables kept in a SQLite catalog, and serves the same operations over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file loaded before the environment")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Base directory for the catalog and local warehouse")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	root.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "tables", Title: "Tables:"},
		&cobra.Group{ID: "metadata", Title: "Metadata Tables:"},
	)

	root.AddCommand(
		newServeCommand(opts),
		newTableCommand(opts),
		newSchemaCommand(opts),
		newPlanCommand(opts),
		newScanCommand(opts),
		newExportCommand(opts),
	)
	return root
}

// Execute runs the command tree with os.Args.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}

// loadConfig layers the .env file, the config file, the environment and
// flags, in increasing priority.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if o.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	config.LoadFromEnv(cfg)

	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// openApp creates the application and opens its shared resources without
// serving HTTP. The caller closes it with Stop.
func (o *globalOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	// Commands write results to stdout; keep logs quiet unless asked.
	if o.logLevel == "" && os.Getenv(config.EnvPrefix+"LOG_LEVEL") == "" {
		cfg.Log.Level = "warn"
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Open(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
