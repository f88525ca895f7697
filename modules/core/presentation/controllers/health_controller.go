package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/pkg/application"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// NewHealthController reports liveness; with a pinger it also checks the
// shared registry database.
func NewHealthController(db Pinger) application.Controller {
	return &HealthController{db: db}
}

type HealthController struct {
	db Pinger
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc(c.Key(), c.Get).Methods(http.MethodGet)
}

func (c *HealthController) Get(w http.ResponseWriter, r *http.Request) {
	if c.db == nil {
		writeJSON(w, http.StatusOK, &HealthResponse{Status: "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := c.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, &HealthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, &HealthResponse{Status: "ok", Database: "ok"})
}
