package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/app"
	"github.com/plaenen/shopcore/pkg/cqrs"
)

func newHandlersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List every message and the handler it resolves to",
		Args:  cobra.NoArgs,
		RunE: opts.withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tMESSAGE\tHANDLER\tCACHED")
			for _, msg := range append(app.Commands(), app.Queries()...) {
				kind, _ := cqrs.KindOf(msg)
				handler, _ := cqrs.HandlerName(kind, cqrs.ShortTypeName(msg))
				_, cached := msg.(cqrs.Cacheable)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", kind, cqrs.ShortTypeName(msg), handler, cached)
			}
			return tw.Flush()
		}),
	}
}
