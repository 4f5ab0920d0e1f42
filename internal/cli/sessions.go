package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/museumlab/dwelltrack/internal/analytics"
	"github.com/museumlab/dwelltrack/internal/store"
)

func newSessionsCmd(g *globals) *cobra.Command {
	var end string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions and their live page records",
		Long: `List every stored session with the page it is on and what has been
accumulated for that page so far.

Examples:
  dwell sessions
  dwell sessions --end 1f0c6c1e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(g, func(s *store.SQLiteStore) error {
				ctx := context.Background()

				if end != "" {
					if err := s.ClearSession(ctx, end); err != nil {
						if err == store.ErrNotFound {
							return fmt.Errorf("session '%s' not found", end)
						}
						return fmt.Errorf("failed to end session: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Ended session %s without submitting its record.\n", end)
					return nil
				}

				slots, err := s.ListSlots(ctx)
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}

				return printSessions(cmd, slots, time.Now())
			})
		},
	}

	cmd.Flags().StringVar(&end, "end", "", "drop a session's record, like closing its tab")
	return cmd
}

func printSessions(cmd *cobra.Command, slots []*store.Slot, now time.Time) error {
	var rows int
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	for _, slot := range slots {
		if slot.Key != analytics.SlotKey {
			continue
		}
		if rows == 0 {
			fmt.Fprintln(w, "SESSION\tPAGE\tOPEN FOR\tHIDDEN\tCHANGES\tSTARTED")
		}
		rows++

		var rec analytics.Record
		if err := json.Unmarshal(slot.Value, &rec); err != nil {
			fmt.Fprintf(w, "%s\t(unreadable)\t-\t-\t-\t-\n", slot.SessionID)
			continue
		}
		live := rec.Finalize(now)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			slot.SessionID,
			rec.PageID,
			formatSeconds(live.DwellTime),
			formatSeconds(rec.HiddenTime),
			rec.VisibilityChanges,
			rec.StartTimestamp.Local().Format("2006-01-02 15:04:05"),
		)
	}

	if rows == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Start one with:")
		fmt.Fprintln(cmd.OutOrStdout(), "  dwell load <page-id>")
		return nil
	}
	return w.Flush()
}
