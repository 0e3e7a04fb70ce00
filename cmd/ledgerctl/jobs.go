package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"skinstudio/internal/adapter/repo"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect enhancement jobs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			jobs, err := repo.NewJobLedger(e.runner, e.cfg.DBTimeout).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB ID\tIMAGE\tSTATUS\tPROGRESS\tUPDATED")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", j.JobID, j.ImageID, j.State, j.Progress, j.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "number of jobs to show")

	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			job, err := repo.NewJobLedger(e.runner, e.cfg.DBTimeout).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func counterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Inspect named counters",
	}
	var name string
	next := &cobra.Command{
		Use:   "next",
		Short: "Advance a counter and print its new value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			value, err := repo.NewCounter(e.runner, e.cfg.DBTimeout).Next(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", name, value)
			return nil
		},
	}
	next.Flags().StringVar(&name, "name", repo.CounterImageUpload, "counter name")
	cmd.AddCommand(next)
	return cmd
}
