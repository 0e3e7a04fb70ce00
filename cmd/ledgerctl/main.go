// Command ledgerctl administers the enhancement job ledger.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"skinstudio/internal/infra"
)

type env struct {
	cfg    *infra.Config
	runner *infra.SQLRunner
	close  func()
}

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Manage the skin studio job ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()
	rootCmd.AddCommand(migrateCmd(), seedCmd(), jobsCmd(), counterCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

// connect opens the database named by DATABASE_URL or DIRECT_URL.
func connect(ctx context.Context) (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv)
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := infra.PingDB(ctx, pool, cfg.DBTimeout); err != nil {
		pool.Close()
		return nil, err
	}
	return &env{
		cfg:    cfg,
		runner: infra.NewSQLRunner(pool, logger),
		close:  pool.Close,
	}, nil
}
