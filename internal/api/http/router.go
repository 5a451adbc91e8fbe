package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/kanban-service/internal/api/http/handlers"
	"github.com/spec-kit/kanban-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health           *handlers.HealthHandler
	Lanes            *handlers.LanesHandler
	Tickets          *handlers.TicketsHandler
	Settings         *handlers.SettingsHandler
	TenantMiddleware *auth.TenantMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.TenantMiddleware.Handle)

	api.Post("/lanes", cfg.Lanes.CreateLane)
	api.Get("/lanes", cfg.Lanes.ListLanes)
	api.Get("/lanes/:id", cfg.Lanes.GetLane)
	api.Put("/lanes/:id", cfg.Lanes.UpdateLane)
	api.Delete("/lanes/:id", cfg.Lanes.DeleteLane)
	api.Get("/board", cfg.Lanes.Board)

	api.Post("/tickets", cfg.Tickets.CreateTicket)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Post("/tickets/:id/move", cfg.Tickets.MoveTicket)
	api.Post("/tickets/:id/messages", cfg.Tickets.RecordMessage)
	api.Get("/tickets/:id/transitions", cfg.Tickets.ListTransitions)

	api.Get("/settings", cfg.Settings.GetSettings)
	api.Put("/settings", cfg.Settings.UpdateSettings)
}
