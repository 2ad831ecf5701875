package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"etlwatch/internal/config"
	"etlwatch/internal/status"
	"etlwatch/internal/storage"
)

type statusStore interface {
	LatestRecords(ctx context.Context) ([]status.Record, error)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest stored status of every pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			db, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			return executeStatus(cmd, db)
		},
	}
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	records, err := db.LatestRecords(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No check history. Run 'etlwatch quick' or 'etlwatch serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PIPELINE\tSTATUS\tDETAIL\tEVALUATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Pipeline,
			r.Status,
			r.Detail,
			r.EvaluatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	return nil
}
