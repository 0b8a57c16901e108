package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/logging"
	"github.com/plaenen/shopcore/pkg/runner"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the query cache",
	}
	cmd.AddCommand(
		newCacheInvalidateCmd(opts),
		newCachePurgeCmd(opts),
		newCacheJanitorCmd(opts),
	)
	return cmd
}

func newCacheInvalidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate TAG...",
		Short: "Invalidate every cached result stored under the given tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			if err := e.app.Invalidator.InvalidateTags(cmd.Context(), args...); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d tag(s)\n", len(args))
			return err
		}),
	}
}

func newCachePurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired and stale cache entries once",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			if e.app.Janitor == nil {
				return fmt.Errorf("cache backend %q cannot be purged", e.app.CacheBackend())
			}
			removed, err := e.app.Janitor.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d entr(ies) from %s cache\n", removed, e.app.CacheBackend())
			return err
		}),
	}
}

func newCacheJanitorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "janitor",
		Short: "Purge the cache periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			if e.app.Janitor == nil {
				return fmt.Errorf("cache backend %q cannot be purged", e.app.CacheBackend())
			}
			ctx, stop := runner.ShutdownContext(cmd.Context())
			defer stop()
			return runner.New([]runner.Service{e.app.Janitor}, runner.WithLogger(logging.Logger())).Run(ctx)
		}),
	}
}
