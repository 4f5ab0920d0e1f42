package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoadCmd(g *globals) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "load <page-id>",
		Short: "Record a page load for a session",
		Long: `Record a page load: the session's previous page record is finalized and
submitted, and a fresh record starts for <page-id>. Without --session a new
session is started and its id printed.

Examples:
  dwell load index
  dwell load 42 --session 1f0c6c1e-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageID := args[0]
			out := cmd.OutOrStdout()

			return withTracking(cmd.Context(), g, func(rt *tracking) error {
				tab := rt.tab(g, sessionID, nil)

				final, err := tab.Load(cmd.Context(), pageID)
				if err != nil {
					return fmt.Errorf("failed to record page load: %w", err)
				}

				if final == nil {
					fmt.Fprintf(out, "Session %s: started on page %s\n", tab.ID(), pageID)
					return nil
				}
				fmt.Fprintf(out, "Session %s: left page %s after %s (hidden %s), now on page %s\n",
					tab.ID(), final.PageID, formatSeconds(final.DwellTime), formatSeconds(final.HiddenTime), pageID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: start a new session)")
	return cmd
}
