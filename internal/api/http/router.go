package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chatflow-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Webhooks *handlers.WebhookHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	webhooks := app.Group("/webhooks")
	webhooks.Post("/:tenantId/inbound/:channelInstanceId", cfg.Webhooks.ReceiveMessage)
}
