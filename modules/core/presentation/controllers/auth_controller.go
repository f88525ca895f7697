package controllers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/modules/core/presentation/controllers/dtos"
	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/application"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
	"github.com/iota-uz/tenantgate/pkg/middleware"
)

type AuthControllerOptions struct {
	// Login attempts allowed per client ip and minute; 0 disables the limit.
	LoginPerMinute int
}

func NewAuthController(app application.Application, opts AuthControllerOptions) application.Controller {
	return &AuthController{
		app:         app,
		authService: app.Service(services.AuthService{}).(*services.AuthService),
		resolver:    app.Service(services.TenantResolver{}).(*services.TenantResolver),
		opts:        opts,
	}
}

type AuthController struct {
	app         application.Application
	authService *services.AuthService
	resolver    *services.TenantResolver
	opts        AuthControllerOptions
}

func (c *AuthController) Key() string {
	return "/api/v1/auth"
}

// Register mounts every route on one subrouter and wraps per-route
// middleware around the handler, so a method mismatch still reaches the
// router's 405 handler.
func (c *AuthController) Register(r *mux.Router) {
	router := r.PathPrefix(c.Key()).Subrouter()

	var login http.Handler = http.HandlerFunc(c.Login)
	if c.opts.LoginPerMinute > 0 {
		login = middleware.IPRateLimitPeriod(c.opts.LoginPerMinute, time.Minute)(login)
	}
	router.Handle("/login", login).Methods(http.MethodPost)
	router.HandleFunc("/refresh", c.Refresh).Methods(http.MethodPost)
	router.HandleFunc("/revoke", c.Revoke).Methods(http.MethodPost)
	router.Handle("/revoke-all", middleware.RequireAuth()(http.HandlerFunc(c.RevokeAll))).Methods(http.MethodPost)
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	dto := &dtos.LoginDTO{}
	if !decodeJSON(w, r, dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeJSONError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "invalid login request", errs)
		return
	}

	// The login route bypasses the access gate, so a key missing from the
	// body may still come from the header or host.
	routingKey := dto.RoutingKey
	if routingKey == "" {
		routingKey, _ = c.resolver.ExtractKey(r)
	}
	if routingKey == "" {
		writeServiceError(w, r, services.ErrTenantRequired)
		return
	}

	ip, _ := composables.UseIP(r.Context())
	result, err := c.authService.Login(r.Context(), services.LoginParams{
		RoutingKey: routingKey,
		Email:      dto.Email,
		Password:   dto.Password,
		ClientIP:   ip,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.LoginResultToResponse(result))
}

func (c *AuthController) Refresh(w http.ResponseWriter, r *http.Request) {
	dto := &dtos.RefreshTokenDTO{}
	if !decodeJSON(w, r, dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeJSONError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "refreshToken is required", errs)
		return
	}

	ip, _ := composables.UseIP(r.Context())
	pair, err := c.authService.Refresh(r.Context(), dto.RefreshToken, ip)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.TokenPairToResponse(*pair))
}

func (c *AuthController) Revoke(w http.ResponseWriter, r *http.Request) {
	dto := &dtos.RefreshTokenDTO{}
	if !decodeJSON(w, r, dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		writeJSONError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "refreshToken is required", errs)
		return
	}

	ip, _ := composables.UseIP(r.Context())
	if err := c.authService.Revoke(r.Context(), dto.RefreshToken, ip); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AuthController) RevokeAll(w http.ResponseWriter, r *http.Request) {
	identity, err := composables.UseIdentity(r.Context())
	if err != nil {
		writeServiceError(w, r, services.ErrUnauthenticated)
		return
	}
	ip, _ := composables.UseIP(r.Context())
	count, err := c.authService.RevokeAllInTenant(r.Context(), identity.TenantID, identity.UserID, ip)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &dtos.RevokeAllResponse{Revoked: count})
}
