package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
	"github.com/atelierhq/cadence/pkg/config"
	"github.com/atelierhq/cadence/pkg/httputil"
)

// ScheduleHandler handles schedule recompute, cascade and critical path
// endpoints. It is the boundary between the pure engine and storage.
type ScheduleHandler struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	cfg      config.SchedulerConfig
	schedule *engine.Scheduler
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(db *pgxpool.Pool, redisClient *redis.Client, cfg config.SchedulerConfig) *ScheduleHandler {
	return &ScheduleHandler{
		db:       db,
		redis:    redisClient,
		cfg:      cfg,
		schedule: engine.NewScheduler(cfg.DefaultStageDuration),
	}
}

// Recompute recomputes dates for every stage of a project from its start
// date and persists the result.
func (h *ScheduleHandler) Recompute(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	projectStart, err := h.projectStart(c.Context(), projectID)
	if err == pgx.ErrNoRows {
		return httputil.NotFound(c, "project")
	}
	if err != nil {
		return httputil.Error(c, err)
	}

	stages, err := loadProjectStages(c.Context(), h.db, projectID)
	if err != nil {
		return httputil.InternalError(c, "database error")
	}

	recomputed, err := h.schedule.RecomputeAll(stages, projectStart)
	if err != nil {
		// Cycles and broken references are data corruption, not user error;
		// surface them loudly.
		log.Error().Err(err).Str("project_id", projectID.String()).Msg("schedule recompute failed")
		return httputil.Error(c, err)
	}

	if err := persistSchedule(c.Context(), h.db, recomputed); err != nil {
		return httputil.InternalError(c, "failed to persist schedule")
	}

	h.invalidateCriticalPath(c.Context(), projectID)

	return httputil.Success(c, recomputed)
}

type cascadeRequest struct {
	NewStart string `json:"new_start"` // YYYY-MM-DD
	NewEnd   string `json:"new_end"`
}

// CascadePreview computes the downstream impact of a date edit without
// writing anything. The UI renders this as a confirmation dialog.
func (h *ScheduleHandler) CascadePreview(c *fiber.Ctx) error {
	report, _, err := h.calculateCascade(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	return httputil.Success(c, report)
}

// CascadeApply applies a valid cascade: the edited stage's window plus all
// affected downstream windows, in one transaction. Invalid cascades are
// rejected with the conflict report so the caller can surface it.
func (h *ScheduleHandler) CascadeApply(c *fiber.Ctx) error {
	report, projectID, err := h.calculateCascade(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	if !report.Valid {
		details := map[string]interface{}{"conflicts": report.Conflicts}
		return httputil.ConflictWithDetails(c, "cascade conflicts with existing schedule", details)
	}

	tx, err := h.db.Begin(c.Context())
	if err != nil {
		return httputil.InternalError(c, "database error")
	}
	defer tx.Rollback(c.Context())

	if _, err := tx.Exec(c.Context(),
		"UPDATE stages SET start_date = $1, end_date = $2, updated_at = NOW() WHERE id = $3",
		report.NewStart, report.NewEnd, report.StageID,
	); err != nil {
		return httputil.InternalError(c, "failed to apply cascade")
	}

	for _, affected := range report.Affected {
		if _, err := tx.Exec(c.Context(),
			"UPDATE stages SET start_date = $1, end_date = $2, updated_at = NOW() WHERE id = $3",
			affected.NewStart, affected.NewEnd, affected.StageID,
		); err != nil {
			return httputil.InternalError(c, "failed to apply cascade")
		}
	}

	if err := tx.Commit(c.Context()); err != nil {
		return httputil.InternalError(c, "failed to apply cascade")
	}

	h.invalidateCriticalPath(c.Context(), projectID)

	log.Info().
		Str("project_id", projectID.String()).
		Str("stage_id", report.StageID.String()).
		Int("affected", len(report.Affected)).
		Msg("cascade applied")

	return httputil.Success(c, report)
}

// CriticalPath returns the project's critical path, cached in Redis until
// the schedule changes.
func (h *ScheduleHandler) CriticalPath(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	cacheKey := criticalPathKey(projectID)
	if cached, err := h.redis.Get(c.Context(), cacheKey).Bytes(); err == nil {
		var path []*models.Stage
		if json.Unmarshal(cached, &path) == nil {
			return httputil.Success(c, path)
		}
	}

	stages, err := loadProjectStages(c.Context(), h.db, projectID)
	if err != nil {
		return httputil.InternalError(c, "database error")
	}

	path, err := engine.CriticalPath(stages)
	if err != nil {
		return httputil.Error(c, err)
	}

	if encoded, err := json.Marshal(path); err == nil {
		if err := h.redis.Set(c.Context(), cacheKey, encoded, h.cfg.CriticalPathCacheTTL).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to cache critical path")
		}
	}

	return httputil.Success(c, path)
}

// Helper methods

func (h *ScheduleHandler) calculateCascade(c *fiber.Ctx) (*engine.CascadeReport, uuid.UUID, error) {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid project ID")
	}
	stageID, err := uuid.Parse(c.Params("stage_id"))
	if err != nil {
		return nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid stage ID")
	}

	var req cascadeRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	newStart, err := time.Parse("2006-01-02", req.NewStart)
	if err != nil {
		return nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid new_start, expected YYYY-MM-DD")
	}
	newEnd, err := time.Parse("2006-01-02", req.NewEnd)
	if err != nil {
		return nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid new_end, expected YYYY-MM-DD")
	}

	stages, err := loadProjectStages(c.Context(), h.db, projectID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	graph, err := engine.NewGraph(stages)
	if err != nil {
		return nil, uuid.Nil, err
	}

	report, err := engine.CalculateCascade(graph, stageID, newStart, newEnd)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return report, projectID, nil
}

func (h *ScheduleHandler) projectStart(ctx context.Context, projectID uuid.UUID) (time.Time, error) {
	var start *time.Time
	err := h.db.QueryRow(ctx,
		"SELECT start_date FROM projects WHERE id = $1 AND deleted_at IS NULL",
		projectID,
	).Scan(&start)
	if err != nil {
		return time.Time{}, err
	}
	if start == nil {
		// No explicit start date; schedule from today
		return models.DateOnly(time.Now()), nil
	}
	return *start, nil
}

func (h *ScheduleHandler) invalidateCriticalPath(ctx context.Context, projectID uuid.UUID) {
	if err := h.redis.Del(ctx, criticalPathKey(projectID)).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate critical path cache")
	}
}

func criticalPathKey(projectID uuid.UUID) string {
	return fmt.Sprintf("cadence:critical-path:%s", projectID)
}
