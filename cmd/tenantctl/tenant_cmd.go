package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantgate/migrations"
	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/modules/core/services"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Register tenants and drive their lifecycle",
	}
	cmd.AddCommand(
		newTenantCreateCmd(),
		newTenantProvisionCmd(),
		newTenantTransitionCmd("activate", "Mark a provisioned tenant active", func(ctx context.Context, tk *toolkit, id uuid.UUID, _ string) (*tenant.Tenant, error) {
			return tk.lifecycle.Activate(ctx, id)
		}),
		newTenantTransitionCmd("suspend", "Suspend an active tenant", func(ctx context.Context, tk *toolkit, id uuid.UUID, reason string) (*tenant.Tenant, error) {
			return tk.lifecycle.Suspend(ctx, id, reason)
		}),
		newTenantTransitionCmd("reactivate", "Reactivate a suspended tenant", func(ctx context.Context, tk *toolkit, id uuid.UUID, _ string) (*tenant.Tenant, error) {
			return tk.lifecycle.Reactivate(ctx, id)
		}),
		newTenantTransitionCmd("terminate", "Terminate a tenant permanently", func(ctx context.Context, tk *toolkit, id uuid.UUID, _ string) (*tenant.Tenant, error) {
			return tk.lifecycle.Terminate(ctx, id)
		}),
		newTenantPlanCmd(),
	)
	return cmd
}

func newTenantCreateCmd() *cobra.Command {
	var (
		name        string
		storeName   string
		routingKeys []string
		planID      string
		endDate     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant in provisioning state",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := services.RegisterTenantParams{
				Name:        name,
				StoreName:   storeName,
				RoutingKeys: routingKeys,
				PlanID:      planID,
			}
			if endDate != "" {
				d, err := time.Parse("2006-01-02", endDate)
				if err != nil {
					return fmt.Errorf("invalid --subscription-end: %w", err)
				}
				params.SubscriptionEndDate = &d
			}

			tk, err := newToolkit(cmd.Context())
			if err != nil {
				return err
			}
			defer tk.Close()

			t, err := tk.lifecycle.Register(cmd.Context(), params)
			if err != nil {
				return err
			}
			return writeJSON(toTenantOutput(t))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&storeName, "store", "", "Schema name of the tenant store (required)")
	cmd.Flags().StringSliceVar(&routingKeys, "key", nil, "Routing key, repeatable (required)")
	cmd.Flags().StringVar(&planID, "plan", "free", "Plan id")
	cmd.Flags().StringVar(&endDate, "subscription-end", "", "Subscription end date (UTC, YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newTenantProvisionCmd() *cobra.Command {
	var (
		tenantID string
		activate bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the tenant store schema, migrate it and activate the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			tk, err := newToolkit(cmd.Context())
			if err != nil {
				return err
			}
			defer tk.Close()

			t, err := tk.lifecycle.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if t.Status() != tenant.StatusProvisioning {
				return fmt.Errorf("tenant %s is %s, not provisioning", id, t.Status())
			}
			if _, err := migrations.ProvisionStore(cmd.Context(), tk.conf.Database.Opts, t.StoreName()); err != nil {
				return err
			}
			if activate {
				if t, err = tk.lifecycle.Activate(cmd.Context(), id); err != nil {
					return err
				}
			}
			return writeJSON(toTenantOutput(t))
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().BoolVar(&activate, "activate", true, "Activate the tenant once its store is ready")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

type transitionFunc func(ctx context.Context, tk *toolkit, id uuid.UUID, reason string) (*tenant.Tenant, error)

func newTenantTransitionCmd(use, short string, fn transitionFunc) *cobra.Command {
	var (
		tenantID string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			tk, err := newToolkit(cmd.Context())
			if err != nil {
				return err
			}
			defer tk.Close()

			t, err := fn(cmd.Context(), tk, id, reason)
			if err != nil {
				return err
			}
			return writeJSON(toTenantOutput(t))
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	if use == "suspend" {
		cmd.Flags().StringVar(&reason, "reason", "", "Suspension reason")
	}
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newTenantPlanCmd() *cobra.Command {
	var (
		tenantID string
		planID   string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Move a tenant to another plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			tk, err := newToolkit(cmd.Context())
			if err != nil {
				return err
			}
			defer tk.Close()

			t, err := tk.lifecycle.ChangePlan(cmd.Context(), id, planID)
			if err != nil {
				return err
			}
			return writeJSON(toTenantOutput(t))
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&planID, "plan", "", "Plan id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
