package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/modules/core/presentation/controllers/dtos"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/application"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/middleware"
)

func NewMeController(app application.Application) application.Controller {
	return &MeController{
		userService: app.Service(services.UserService{}).(*services.UserService),
	}
}

type MeController struct {
	userService *services.UserService
}

func (c *MeController) Key() string {
	return "/api/v1/me"
}

func (c *MeController) Register(r *mux.Router) {
	handler := middleware.RequireAuth()(middleware.RequireTenant()(http.HandlerFunc(c.Get)))
	r.Handle(c.Key(), handler).Methods(http.MethodGet)
}

// Get returns the caller as seen from the current tenant's store. A token
// issued for another tenant is rejected.
func (c *MeController) Get(w http.ResponseWriter, r *http.Request) {
	u, err := c.userService.GetCurrent(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := composables.UseTenant(r.Context())
	if err != nil {
		writeServiceError(w, r, services.ErrTenantRequired)
		return
	}
	writeJSON(w, http.StatusOK, &dtos.MeResponse{
		UserResponse: dtos.UserToResponse(u),
		TenantID:     t.TenantID.String(),
		PlanID:       t.PlanID,
	})
}
