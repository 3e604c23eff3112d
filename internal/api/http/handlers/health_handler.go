package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-service/internal/persistence"
)

const readinessTimeout = 2 * time.Second

type dependencyProbe interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	probes      map[string]dependencyProbe
}

// NewHealthHandler builds the handler. Without postgres the service runs on the
// in-memory store, and readiness says so instead of failing.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		probes: map[string]dependencyProbe{
			"postgres": postgres,
			"redis":    redis,
		},
	}
}

// Live reports that the process is up.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every enabled dependency.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	deps := fiber.Map{}
	ready := true
	for name, probe := range h.probes {
		if !probe.Enabled() {
			deps[name] = "disabled"
			continue
		}
		if err := probe.Ping(ctx); err != nil {
			deps[name] = err.Error()
			ready = false
			continue
		}
		deps[name] = "ok"
	}

	store := "memory"
	if h.probes["postgres"].Enabled() {
		store = "postgres"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": deps,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"store":        store,
		"dependencies": deps,
	})
}
