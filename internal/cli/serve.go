package cli

import (
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/arkilian/metatables/internal/app"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the metadata-table HTTP API",
		Args:    cobra.NoArgs,
		GroupID: "server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			level.Info(a.Logger()).Log("msg", "configuration",
				"data_dir", cfg.DataDir,
				"catalog", cfg.Catalog.Path,
				"storage", cfg.Storage.Type,
				"worker_pool_size", cfg.Scan.WorkerPoolSize,
				"metrics", cfg.Metrics.Enabled)

			return a.WaitForShutdown(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "http-addr", "", "HTTP listen address (default from config)")
	return cmd
}
