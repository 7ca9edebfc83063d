// migrate runs the embedded SQL migrations against DATABASE_URL.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"coliving-platform/backend/internal/config"
	"coliving-platform/backend/internal/db/migrate"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or roll back the Postgres schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		runCmd("up", "Apply all pending migrations", migrate.Up),
		runCmd("down", "Roll back all migrations", migrate.Down),
		versionCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}

func runCmd(use, short string, direction migrate.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrate.Run(dsn, direction); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: ok\n", direction)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			v, dirty, err := migrate.Version(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}
}
