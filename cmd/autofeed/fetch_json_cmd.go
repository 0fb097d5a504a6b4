package main

import (
	"github.com/spf13/cobra"

	"github.com/submitty/registrar-autofeed/modules/feed/acquire"
	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

func newFetchJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-json",
		Short: "Fetch registrar JSON drops over SSH and flatten them into the feed CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withCode(exitValidation, acquire.NewJSONFetcher(cfg).Fetch())
		},
	}
}
