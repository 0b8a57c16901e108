package cli

import (
	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/logging"
	"github.com/plaenen/shopcore/pkg/natsutil"
	"github.com/plaenen/shopcore/pkg/runner"
)

func newNATSCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nats",
		Short: "Run NATS infrastructure for the cache",
	}
	cmd.AddCommand(newNATSServeCmd(opts))
	return cmd
}

func newNATSServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host     string
		port     int
		storeDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an embedded JetStream server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("store-dir") {
				storeDir = opts.cfg.Cache.NATS.StoreDir
			}
			logger := logging.Logger()
			svc := natsutil.NewService(logger,
				natsutil.WithHost(host),
				natsutil.WithPort(port),
				natsutil.WithStoreDir(storeDir),
			)
			ctx, stop := runner.ShutdownContext(cmd.Context())
			defer stop()
			return runner.New([]runner.Service{svc}, runner.WithLogger(logger)).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen host")
	cmd.Flags().IntVar(&port, "port", 4222, "Client port")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "JetStream storage directory (default cache.nats.store_dir)")
	return cmd
}
