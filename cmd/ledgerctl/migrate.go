package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skinstudio/internal/adapter/repo"
	"skinstudio/internal/sqlinline"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the counter and job tables if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			for i, stmt := range sqlinline.Schema {
				if _, err := e.runner.Exec(cmd.Context(), stmt); err != nil {
					return fmt.Errorf("schema statement %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d schema statements\n", len(sqlinline.Schema))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var floor int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Raise the image upload counter to at least --floor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			value, err := repo.NewCounter(e.runner, 10*time.Second).Seed(cmd.Context(), repo.CounterImageUpload, floor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", repo.CounterImageUpload, value)
			return nil
		},
	}
	cmd.Flags().Int64Var(&floor, "floor", 0, "minimum counter value")
	return cmd
}
