package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/journal"
)

var (
	flagExportFormat string
	flagExportLimit  int
)

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "json", "Output format: json or csv")
	exportCmd.Flags().IntVar(&flagExportLimit, "limit", 1000, "Maximum rows to export")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the delivery journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		jrnl, err := journal.Open(cfg.State.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jrnl.Close()

		rows, err := jrnl.List(cmd.Context(), flagExportLimit)
		if err != nil {
			return err
		}

		switch flagExportFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		case "csv":
			w := csv.NewWriter(out)
			if err := w.Write([]string{"tx_hash", "log_index", "block_number", "status", "response_code", "attempts", "updated_at"}); err != nil {
				return err
			}
			for _, d := range rows {
				record := []string{
					d.TxHash,
					strconv.FormatUint(uint64(d.LogIndex), 10),
					strconv.FormatUint(d.BlockNumber, 10),
					d.Status,
					strconv.Itoa(d.ResponseCode),
					strconv.Itoa(d.Attempts),
					d.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		default:
			return fmt.Errorf("unsupported format: %s", flagExportFormat)
		}
	},
}
