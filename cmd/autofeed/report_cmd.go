package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/submitty/registrar-autofeed/modules/report"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

func newReportCmd() *cobra.Command {
	var term string

	cmd := &cobra.Command{
		Use:   "report <pass>",
		Short: "Add/drop census report; pass 1 before the feed, pass 2 after",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}

			db, err := sqlx.ConnectContext(cmd.Context(), "postgres", cfg.Database.ConnectionString())
			if err != nil {
				return withCode(exitDB, err)
			}
			defer func() { _ = db.Close() }()

			logger := logrus.New()
			logger.SetLevel(cfg.LogrusLogLevel())
			svc := report.NewService(cfg, report.NewRepository(db), logger)

			switch args[0] {
			case "1":
				return withCode(exitDB, svc.PassOne(cmd.Context(), term))
			case "2":
				return withCode(exitDB, svc.PassTwo(cmd.Context(), term))
			default:
				return withCode(exitUsage, fmt.Errorf("unrecognized pass %q, want 1 or 2", args[0]))
			}
		},
	}
	cmd.Flags().StringVarP(&term, "term", "t", "", "term code, e.g. f24")
	_ = cmd.MarkFlagRequired("term")
	return cmd
}
