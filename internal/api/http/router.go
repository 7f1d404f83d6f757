package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Lifecycle      *handlers.LifecycleHandler
	Inbox          *handlers.InboxHandler
	Activity       *handlers.ActivityHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole())
	api.Get("/me", cfg.Users.Me)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.DeleteTicket)

	tickets.Post("/:id/assign", auth.RequireRole(domain.RoleAgent, domain.RoleAdmin), cfg.Lifecycle.Assign)
	tickets.Post("/:id/reassign", auth.RequireRole(domain.RoleAgent, domain.RoleAdmin), cfg.Lifecycle.Reassign)
	tickets.Post("/:id/resolve", auth.RequireRole(domain.RoleAgent, domain.RoleAdmin), cfg.Lifecycle.Resolve)
	tickets.Post("/:id/close", cfg.Lifecycle.Close)
	tickets.Post("/:id/reopen", cfg.Lifecycle.Reopen)
	tickets.Patch("/:id/status", cfg.Lifecycle.ChangeStatus)

	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Delete("/:id/comments/:commentId", cfg.Tickets.DeleteComment)

	tickets.Get("/:id/feedback", cfg.Tickets.GetFeedback)
	tickets.Post("/:id/feedback", auth.RequireRole(domain.RoleClient), cfg.Tickets.SubmitFeedback)

	tickets.Get("/:id/activity", cfg.Activity.ListForTicket)
	api.Get("/activity", auth.RequireRole(domain.RoleAgent, domain.RoleAdmin), cfg.Activity.List)

	notifications := api.Group("/notifications")
	notifications.Get("/", cfg.Inbox.List)
	notifications.Get("/unread-count", cfg.Inbox.UnreadCount)
	notifications.Post("/read-all", cfg.Inbox.MarkAllRead)
	notifications.Post("/:id/read", cfg.Inbox.MarkRead)
	notifications.Delete("/:id", cfg.Inbox.Delete)
}
