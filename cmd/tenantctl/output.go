package main

import (
	"encoding/json"
	"os"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
)

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type tenantOutput struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	StoreName     string   `json:"store_name"`
	RoutingKeys   []string `json:"routing_keys"`
	Status        string   `json:"status"`
	PlanID        string   `json:"plan_id,omitempty"`
	SuspendReason string   `json:"suspend_reason,omitempty"`
}

func toTenantOutput(t *tenant.Tenant) tenantOutput {
	return tenantOutput{
		ID:            t.ID().String(),
		Name:          t.Name(),
		StoreName:     t.StoreName(),
		RoutingKeys:   t.RoutingKeys(),
		Status:        t.Status().String(),
		PlanID:        t.PlanID(),
		SuspendReason: t.SuspendReason(),
	}
}
