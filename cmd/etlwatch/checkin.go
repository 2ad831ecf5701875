package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"etlwatch/internal/status"
)

func checkinCmd() *cobra.Command {
	var point string
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Run one scheduled check-in batch and report it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.runner.RunCheckin(ctx, point)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records)

			if status.Worst(records) == status.Critical {
				return fmt.Errorf("check-in %q has critical pipelines", point)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&point, "point", "", "check-in point (e.g. morning, first_shift, second_shift)")
	cmd.MarkFlagRequired("point")
	return cmd
}

func quickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quick",
		Short: "Run one quick pass over all pipelines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.runner.RunQuick(ctx)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records)

			if status.Worst(records) == status.Critical {
				return fmt.Errorf("one or more pipelines are critical")
			}
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Send the daily pipeline summary now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.reporter == nil {
				return fmt.Errorf("daily summary requires chat alerts to be enabled")
			}
			return a.reporter.Run(ctx)
		},
	}
}

func printRecords(out io.Writer, records []status.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PIPELINE\tSTATUS\tDETAIL\tEVALUATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Pipeline,
			r.Status,
			strings.ReplaceAll(r.Detail, "\t", " "),
			r.EvaluatedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
}
