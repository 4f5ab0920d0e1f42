package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/museumlab/dwelltrack/internal/store"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var sessionID string
	var failed bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journalled submissions",
		Long: `Show every submission sent to the logging endpoint, newest first, with
its outcome. Failed submissions are never retried; this is where they end up.

Examples:
  dwell history
  dwell history --failed
  dwell history --session 1f0c6c1e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.DeliveryFilter{SessionID: sessionID}
			if failed {
				filter.Statuses = []store.DeliveryStatus{store.StatusFailed, store.StatusMalformed}
			}

			return withStore(g, func(s *store.SQLiteStore) error {
				deliveries, err := s.ListDeliveries(context.Background(), filter)
				if err != nil {
					return fmt.Errorf("failed to list submissions: %w", err)
				}

				if len(deliveries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No submissions yet.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tSESSION\tKIND\tSTATUS\tCODE\tERROR")
				for _, d := range deliveries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						shortID(d.SessionID),
						d.Kind,
						strings.ToUpper(string(d.Status)),
						formatCode(d.HTTPCode),
						d.Error,
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "only this session")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed or malformed submissions")
	return cmd
}

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatCode(code int) string {
	if code == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", code)
}
