package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"websnatch/internal/history"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions from the local archive",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().IntP("limit", "n", 20, "Number of entries to show")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := setupConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History.Disabled {
		return errors.New("history archive is disabled in the configuration")
	}

	db, err := history.Open(cfg.HistoryDir(), history.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	recs, err := db.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversions recorded yet.")
		return nil
	}

	for _, r := range recs {
		line := fmt.Sprintf("%s  %-6s  %s", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.URL)
		switch {
		case r.Status == history.StatusOK:
			line += fmt.Sprintf("  -> %s (%d bytes)", r.OutputPath, r.PDFBytes)
		case r.Error != "":
			line += "  (" + r.Error + ")"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
