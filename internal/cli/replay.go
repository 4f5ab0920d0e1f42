package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/museumlab/dwelltrack/internal/replay"
)

func newReplayCmd(g *globals) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Replay a recorded browsing timeline",
		Long: `Replay a YAML or JSON timeline of page loads, visibility changes and
interactions against the logging endpoint, on a virtual clock.

Example script:
  session: visitor-1
  start: 2024-03-01T09:00:00Z
  events:
    - {at: 0s, type: load, page: "5"}
    - {at: 0s, type: hidden}
    - {at: 3s, type: visible}
    - {at: 10s, type: load, page: "6"}

Examples:
  dwell replay visit.yaml
  dwell replay visit.json --session participant-12`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			if sessionID != "" {
				script.Session = sessionID
			}

			ctx := cmd.Context()
			var summary *replay.Summary
			var tabID string

			err = withTracking(ctx, g, func(rt *tracking) error {
				start := script.Start
				if start.IsZero() {
					start = time.Now()
				}
				clock := replay.NewClock(start)

				tab := rt.tab(g, script.Session, clock.Now)
				tabID = tab.ID()

				summary, err = replay.Play(ctx, tab, clock, script, g.logger)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s: replayed %d events, flushed %d page records\n", tabID, summary.Events, len(summary.Flushed))
			for _, rec := range summary.Flushed {
				fmt.Fprintf(out, "  page %s: dwell %s, hidden %s (%d changes), active %s\n",
					rec.PageID,
					formatSeconds(rec.DwellTime),
					formatSeconds(rec.HiddenTime),
					rec.VisibilityChanges,
					formatSeconds(rec.DwellMinusHidden),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (overrides the script's; default random)")
	return cmd
}
