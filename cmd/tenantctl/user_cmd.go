package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantgate/modules/core/domain/aggregates/role"
	"github.com/iota-uz/tenantgate/modules/core/services"
)

type userOutput struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users inside a tenant store",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		tenantKey   string
		email       string
		password    string
		firstName   string
		lastName    string
		roleName    string
		permissions []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user in the tenant's store",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := newToolkit(cmd.Context())
			if err != nil {
				return err
			}
			defer tk.Close()

			t, err := tk.lifecycle.Find(cmd.Context(), tenantKey)
			if err != nil {
				return fmt.Errorf("tenant %q: %w", tenantKey, err)
			}
			var roles []*role.Role
			if roleName != "" {
				roles = append(roles, role.New(roleName, role.WithPermissions(permissions...)))
			}
			u, err := tk.users.Create(cmd.Context(), t.StoreName(), services.CreateUserParams{
				Email:     email,
				Password:  password,
				FirstName: firstName,
				LastName:  lastName,
				Roles:     roles,
			})
			if err != nil {
				return err
			}
			return writeJSON(userOutput{
				ID:          u.ID().String(),
				TenantID:    t.ID().String(),
				Email:       u.Email(),
				Roles:       u.RoleNames(),
				Permissions: u.Permissions(),
			})
		},
	}
	cmd.Flags().StringVar(&tenantKey, "tenant", "", "Tenant routing key or UUID (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&roleName, "role", "", "Role to create and assign")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "Permission code of --role, repeatable")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
