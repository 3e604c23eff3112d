package http

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spec-kit/civic-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	ServiceName    string
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Requests       *handlers.RequestsHandler
	Tasks          *handlers.TasksHandler
	SLA            *handlers.SLAHandler
	Directory      *handlers.DirectoryHandler
	AuthMiddleware *auth.AuthMiddleware

	// MetricsRegistry enables /metrics and per-route HTTP metrics when set.
	MetricsRegistry prometheus.Registerer

	// EvidenceDir is served read-only under EvidencePath when both are set.
	EvidenceDir  string
	EvidencePath string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.MetricsRegistry != nil {
		prom := fiberprometheus.NewWithRegistry(cfg.MetricsRegistry, cfg.ServiceName, "civic", "http", nil)
		prom.RegisterAt(app, "/metrics")
		app.Use(prom.Middleware)
	}

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.EvidenceDir != "" && cfg.EvidencePath != "" {
		app.Static(cfg.EvidencePath, cfg.EvidenceDir, fiber.Static{Browse: false})
	}

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/auth/me", cfg.Auth.Me)

	requests := protected.Group("/requests")
	requests.Post("/", auth.RequireCapability(auth.CapCreateRequest), cfg.Requests.CreateRequest)
	requests.Get("/", cfg.Requests.ListRequests)
	requests.Post("/merge", auth.RequireCapability(auth.CapMergeRequests), cfg.Requests.Merge)
	requests.Post("/similar", cfg.Requests.Similar)
	requests.Get("/:id", cfg.Requests.GetRequest)
	requests.Delete("/:id", auth.RequireCapability(auth.CapDeleteRequest), cfg.Requests.Delete)
	requests.Get("/:id/history", cfg.Requests.GetHistory)
	requests.Get("/:id/evidence", cfg.Requests.ListEvidence)
	requests.Post("/:id/support", auth.RequireCapability(auth.CapSupportRequest), cfg.Requests.Support)
	requests.Post("/:id/validate", auth.RequireCapability(auth.CapValidateRequest), cfg.Requests.Validate)
	requests.Post("/:id/assign", auth.RequireCapability(auth.CapAssignRequest), cfg.Requests.Assign)
	requests.Post("/:id/feedback", auth.RequireCapability(auth.CapGiveFeedback), cfg.Requests.Feedback)

	requests.Post("/:id/tasks", auth.RequireCapability(auth.CapCreateTask), cfg.Tasks.AddTask)
	requests.Patch("/:id/tasks/:taskId", auth.RequireCapability(auth.CapUpdateTaskStatus), cfg.Tasks.UpdateTaskStatus)
	requests.Post("/:id/completion", auth.RequireCapability(auth.CapSubmitCompletion), cfg.Tasks.SubmitCompletion)
	requests.Post("/:id/verify", auth.RequireCapability(auth.CapVerifyCompletion), cfg.Tasks.VerifyCompletion)

	requests.Get("/:id/sla", auth.RequireCapability(auth.CapViewSLA), cfg.SLA.Evaluate)
	requests.Post("/:id/sla/check", auth.RequireCapability(auth.CapCheckSLA), cfg.SLA.Check)

	sla := protected.Group("/sla")
	sla.Get("/hours", cfg.SLA.Hours)
	sla.Post("/sweep", auth.RequireCapability(auth.CapCheckSLA), cfg.SLA.Sweep)

	departments := protected.Group("/departments")
	departments.Get("/", cfg.Directory.ListDepartments)
	departments.Post("/", auth.RequireCapability(auth.CapManageDirectory), cfg.Directory.CreateDepartment)
	departments.Patch("/:id/sla", auth.RequireCapability(auth.CapManageTeams), cfg.Directory.UpdateDepartmentSLA)
	departments.Put("/:id/head", auth.RequireCapability(auth.CapManageDirectory), cfg.Directory.AssignDepartmentHead)

	teams := protected.Group("/teams")
	teams.Get("/", cfg.Directory.ListTeams)
	teams.Post("/", auth.RequireCapability(auth.CapManageTeams), cfg.Directory.CreateTeam)
	teams.Post("/:id/members", auth.RequireCapability(auth.CapManageTeams), cfg.Directory.AddTeamMembers)
	teams.Delete("/:id/members/:userId", auth.RequireCapability(auth.CapManageTeams), cfg.Directory.RemoveTeamMember)
	teams.Put("/:id/leader", auth.RequireCapability(auth.CapManageTeams), cfg.Directory.ReassignTeamLeader)

	users := protected.Group("/users")
	users.Get("/", auth.RequireCapability(auth.CapManageTeams), cfg.Directory.ListUsers)
	users.Post("/", auth.RequireCapability(auth.CapManageDirectory), cfg.Directory.CreateUser)
	users.Post("/:id/deactivate", auth.RequireCapability(auth.CapManageDirectory), cfg.Directory.DeactivateUser)
	users.Delete("/:id", auth.RequireCapability(auth.CapManageDirectory), cfg.Directory.DeleteUser)
}
