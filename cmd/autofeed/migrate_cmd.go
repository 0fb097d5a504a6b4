package main

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|status>",
		Short: "Apply schema migrations to the master database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "up", "down", "status":
			default:
				return withCode(exitUsage, fmt.Errorf("unrecognized migrate command %q", args[0]))
			}

			cfg, err := configuration.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}

			db, err := goose.OpenDBWithDriver("postgres", cfg.Database.ConnectionString())
			if err != nil {
				return withCode(exitDB, err)
			}
			defer func() { _ = db.Close() }()

			return withCode(exitDB, goose.RunContext(cmd.Context(), args[0], db, cfg.MigrationsDir))
		},
	}
}
