package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nodewave/flowrunner/cmd/flow-runner/service"
	"github.com/nodewave/flowrunner/common/workflow"
)

// RunHandler handles run-related requests
type RunHandler struct {
	runs *service.RunService
}

func NewRunHandler(runs *service.RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// CreateRun executes a workflow
// POST /api/v1/runs
func (h *RunHandler) CreateRun(c echo.Context) error {
	var req service.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, batch, err := h.runs.CreateRun(c.Request().Context(), &req)
	if err != nil {
		var invalid *workflow.InvalidGraphError
		if errors.As(err, &invalid) {
			return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if batch != nil {
		return c.JSON(http.StatusCreated, batch)
	}
	return c.JSON(http.StatusCreated, result)
}

// GetRun retrieves a run record
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	run, err := h.runs.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// ListTasks returns the execution trail of a run
// GET /api/v1/runs/:id/tasks
func (h *RunHandler) ListTasks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	tasks, err := h.runs.ListTasks(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run_id": id.String(),
		"tasks":  tasks,
	})
}

// ResolvePause resolves a paused node and resumes the run
// POST /api/v1/runs/:id/nodes/:node_id/resolve
func (h *RunHandler) ResolvePause(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	nodeID := c.Param("node_id")

	var req service.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.runs.ResolvePause(c.Request().Context(), id, nodeID, &req)
	if err != nil {
		if errors.Is(err, service.ErrRunNotResumable) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		var invalid *workflow.InvalidGraphError
		if errors.As(err, &invalid) {
			return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
