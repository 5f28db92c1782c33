package router // package router defines how HTTP routes are registered for the operator API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/moverra/transit-reservation/internal/handler" // import the handlers that implement the operator surface
)

// RegisterRoutes registers the health check on the provided Echo
// instance.  This endpoint can be used by load balancers or monitoring
// systems to verify that the service is up and running.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterOperator registers the operator-facing surface of the
// lifecycle core.  Admin-only operations (manual sweeps, timeout
// tuning, queue visibility) live under /v1/admin; the enqueue entry
// point and per-user queries live under /v1.  Authentication for these
// routes is applied by the surrounding API gateway, not here.
func RegisterOperator(e *echo.Echo, h *handler.OperatorHandler) {
	admin := e.Group("/v1/admin")
	// Trigger an on-demand auto-cancellation sweep, optionally with a
	// one-off timeout override.
	admin.POST("/cancellation/run", h.RunCancellation)
	// Read and adjust the cancellation timeout at runtime.
	admin.GET("/cancellation/timeout", h.GetCancellationTimeout)
	admin.PUT("/cancellation/timeout", h.SetCancellationTimeout)
	// Query the immutable cancellation audit log, optionally per user.
	admin.GET("/cancellation/logs", h.ListCancellationLogs)
	// Operational visibility into the notification queue backlog.
	admin.GET("/notifications/pending-count", h.PendingNotificationCount)

	v1 := e.Group("/v1")
	// Live fare for one trip, cache first with a database fallback.
	v1.GET("/trips/:id/price", h.TripPrice)
	// Manual enqueue entry point for other services.
	v1.POST("/notifications", h.EnqueueNotification)
	// Per-user notification history and delivery preferences.
	v1.GET("/users/:id/notifications", h.NotificationHistory)
	v1.GET("/users/:id/preferences", h.GetPreferences)
	v1.PUT("/users/:id/preferences", h.SetPreferences)
}
