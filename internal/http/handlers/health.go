package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency. A nil Fn is reported as disabled.
type HealthCheck struct {
	Name     string
	Fn       func(ctx context.Context) error
	Optional bool
}

type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
}

func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	out := healthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for _, chk := range h.checks {
		switch {
		case chk.Fn == nil:
			out.Checks[chk.Name] = "disabled"
		case chk.Fn(ctx) != nil:
			out.Checks[chk.Name] = "down"
			if !chk.Optional {
				out.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		default:
			out.Checks[chk.Name] = "ok"
		}
	}
	c.JSON(status, out)
}
