package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttlink/internal/journal"
)

func newEventsCmd(g *globalFlags) *cobra.Command {
	var (
		filter  journal.Filter
		since   time.Duration
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List link events recorded in the journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			db, err := openJournalDB(cmd.Context(), cfg.Journal)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only use

			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			res, err := journal.NewSQLiteRepository(db.DB).List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tCLIENT\tDETAIL\tERROR")
			for _, e := range res.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.OccurredAt.Format(time.RFC3339), e.Kind, e.ClientID, e.Detail, e.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d events\n", len(res.Entries), res.Total)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Kind, "kind", "", "only events of this kind")
	f.StringVar(&filter.ClientID, "client-id", "", "only events from this client id")
	f.DurationVar(&since, "since", 0, "only events newer than this")
	f.IntVarP(&filter.Limit, "limit", "n", 50, "maximum events to show")
	f.BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}
