package planner

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/cadence/pkg/httputil"
)

// WatchHandler exposes start/stop endpoints for project watchers
type WatchHandler struct {
	db      *pgxpool.Pool
	manager *WatchManager
}

// NewWatchHandler creates a new watch handler
func NewWatchHandler(db *pgxpool.Pool, manager *WatchManager) *WatchHandler {
	return &WatchHandler{db: db, manager: manager}
}

// Start begins watching a project for status transitions
func (h *WatchHandler) Start(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	exists, err := projectExists(c.Context(), h.db, projectID)
	if err != nil {
		return httputil.InternalError(c, "database error")
	}
	if !exists {
		return httputil.NotFound(c, "project")
	}

	if err := h.manager.Watch(projectID); err != nil {
		return httputil.Error(c, err)
	}

	return httputil.Success(c, fiber.Map{
		"project_id": projectID,
		"watching":   true,
	})
}

// Stop stops watching a project. Stopping an unwatched project succeeds.
func (h *WatchHandler) Stop(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	h.manager.Unwatch(projectID)

	return httputil.Success(c, fiber.Map{
		"project_id": projectID,
		"watching":   false,
	})
}

// Status reports whether a project is currently watched
func (h *WatchHandler) Status(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	return httputil.Success(c, fiber.Map{
		"project_id": projectID,
		"watching":   h.manager.Watching(projectID),
	})
}
