package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Tenant registry and store administration",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newTenantCmd(),
		newUserCmd(),
	)
	return cmd
}
