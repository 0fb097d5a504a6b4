package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/submitty/registrar-autofeed/modules/feed/acquire"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

func newFetchLocalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-local",
		Short: "Validate and copy an uploaded CSV into the feed's working location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			if cfg.Local.SourceCSV == "" {
				return withCode(exitUsage, fmt.Errorf("LOCAL_SOURCE_CSV is not configured"))
			}
			return withCode(exitValidation, acquire.FetchLocal(cfg.Local.SourceCSV, cfg.Feed.CSVFile, time.Now()))
		},
	}
}
