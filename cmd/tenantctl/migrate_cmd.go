package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantgate/migrations"
	"github.com/iota-uz/tenantgate/pkg/configuration"
)

type migrationOutput struct {
	Command string   `json:"command"`
	Store   string   `json:"store,omitempty"`
	Applied []string `json:"applied"`
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the shared registry migrations (public schema)",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			defer conf.Unload()
			results, err := migrations.ApplyShared(cmd.Context(), conf.Database.Opts)
			if err != nil {
				return err
			}
			out := migrationOutput{Command: "migrate", Applied: []string{}}
			for _, r := range results {
				out.Applied = append(out.Applied, r.Source.Path)
			}
			return writeJSON(out)
		},
	}
}
