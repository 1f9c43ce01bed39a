package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-portal/internal/api/http/handlers"
	"github.com/spec-kit/civic-portal/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Issues         *handlers.IssuesHandler
	Admin          *handlers.AdminHandler
	Notifications  *handlers.NotificationsHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	issues := app.Group("/issues", cfg.AuthMiddleware.Handle)
	issues.Post("", cfg.Issues.CreateIssue)
	issues.Get("", cfg.Issues.ListIssues)
	issues.Post("/bulk", cfg.Admin.BulkUpdate)
	issues.Get("/:id", cfg.Issues.GetIssue)
	issues.Post("/:id/transition", cfg.Issues.Transition)
	issues.Post("/:id/assign", cfg.Admin.Assign)
	issues.Patch("/:id/priority", cfg.Admin.SetPriority)
	issues.Post("/:id/comments", cfg.Issues.AddComment)
	issues.Get("/:id/timeline", cfg.Issues.GetTimeline)

	app.Delete("/comments/:id", cfg.AuthMiddleware.Handle, cfg.Issues.DeleteComment)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/users", cfg.Users.ListUsers)
	admin.Patch("/users/:id", cfg.Users.UpdateUserRole)
	admin.Get("/metrics", cfg.Health.Metrics)

	app.Get("/ws", cfg.WS.Upgrade, cfg.WS.Handle())
}
