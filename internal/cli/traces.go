package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/pkg/observability"
)

func newTracesCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Show recent spans recorded by the sqlite exporter",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		spans := e.spans
		if spans == nil {
			var err error
			if spans, err = observability.NewSQLiteSpanExporter(cmd.Context(), e.db, opts.cfg.Telemetry.Retention); err != nil {
				return err
			}
		}
		records, err := spans.RecentSpans(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), records)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "START\tTRACE\tSPAN\tNAME\tDURATION\tSTATUS")
		for _, r := range records {
			status := "ok"
			if r.Failed {
				status = "error: " + r.StatusMessage
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Start.Local().Format(time.DateTime), r.TraceID, r.SpanID, r.Name, r.Duration, status)
		}
		return tw.Flush()
	})
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of spans")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print spans as JSON")
	return cmd
}
