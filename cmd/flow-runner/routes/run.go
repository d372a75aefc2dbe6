package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/nodewave/flowrunner/cmd/flow-runner/container"
	"github.com/nodewave/flowrunner/cmd/flow-runner/handlers"
)

// RegisterRunRoutes registers run execution routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRunHandler(c.Runs)

	runs := e.Group("/api/v1/runs")
	{
		runs.POST("", h.CreateRun)
		runs.GET("/:id", h.GetRun)
		runs.GET("/:id/tasks", h.ListTasks)
		runs.POST("/:id/nodes/:node_id/resolve", h.ResolvePause)
	}
}
