package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/museumlab/dwelltrack/internal/store"
)

func newExportCmd(g *globals) *cobra.Command {
	var format string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journalled submissions",
		Long: `Export the submission journal in CSV or JSON format.

Examples:
  dwell export --format csv > submissions.csv
  dwell export --format json --session 1f0c6c1e-... > session.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}

			return withStore(g, func(s *store.SQLiteStore) error {
				deliveries, err := s.ListDeliveries(context.Background(), store.DeliveryFilter{SessionID: sessionID})
				if err != nil {
					return fmt.Errorf("failed to get submissions: %w", err)
				}

				if format == "csv" {
					return exportCSV(cmd.OutOrStdout(), deliveries)
				}
				return exportJSON(cmd.OutOrStdout(), deliveries)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "only this session")
	return cmd
}

func exportCSV(out io.Writer, deliveries []*store.Delivery) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"timestamp", "session_id", "kind", "endpoint", "status", "http_code", "error", "payload"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, d := range deliveries {
		row := []string{
			strconv.FormatInt(d.CreatedAt.Unix(), 10),
			d.SessionID,
			d.Kind,
			d.Endpoint,
			string(d.Status),
			strconv.Itoa(d.HTTPCode),
			d.Error,
			d.Payload,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Submissions []jsonSubmission `json:"submissions"`
}

type jsonSubmission struct {
	Timestamp int64  `json:"timestamp"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	Status    string `json:"status"`
	HTTPCode  int    `json:"http_code"`
	Error     string `json:"error,omitempty"`
	Payload   string `json:"payload"`
}

func exportJSON(out io.Writer, deliveries []*store.Delivery) error {
	export := jsonExport{
		Submissions: make([]jsonSubmission, len(deliveries)),
	}

	for i, d := range deliveries {
		export.Submissions[i] = jsonSubmission{
			Timestamp: d.CreatedAt.Unix(),
			SessionID: d.SessionID,
			Kind:      d.Kind,
			Endpoint:  d.Endpoint,
			Status:    string(d.Status),
			HTTPCode:  d.HTTPCode,
			Error:     d.Error,
			Payload:   d.Payload,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
