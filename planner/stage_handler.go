package planner

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
	"github.com/atelierhq/cadence/pkg/httputil"
)

// StageHandler handles stage and dependency endpoints
type StageHandler struct {
	db *pgxpool.Pool
}

// NewStageHandler creates a new stage handler
func NewStageHandler(db *pgxpool.Pool) *StageHandler {
	return &StageHandler{db: db}
}

type stageRequest struct {
	NumberIndex       int     `json:"number_index"`
	Name              string  `json:"name"`
	Description       *string `json:"description,omitempty"`
	EstimatedDuration *int    `json:"estimated_duration,omitempty"`
	IsDeliverable     bool    `json:"is_deliverable"`
	AssigneeID        *string `json:"assignee_id,omitempty"`
}

// Create creates one stage. Bulk seeding at project creation goes through
// CreateBulk instead.
func (h *StageHandler) Create(c *fiber.Ctx) error {
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

	var req stageRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.BadRequest(c, "invalid request body")
	}

	stage, fields := stageFromRequest(projectID, req)
	if len(fields) > 0 {
		return httputil.ValidationError(c, "validation failed", fields)
	}

	if err := h.insertStage(c, stage); err != nil {
		return httputil.InternalError(c, "failed to create stage")
	}

	return httputil.Created(c, stage)
}

// CreateBulk seeds a project's full stage list in one call. Stages may
// reference each other by index in dependencies, so edges are inserted
// after all stages exist and validated as a whole graph.
func (h *StageHandler) CreateBulk(c *fiber.Ctx) error {
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

	var req struct {
		Stages []struct {
			stageRequest
			Dependencies   []int `json:"dependencies"`    // By number index
			ParallelTracks []int `json:"parallel_tracks"` // By number index
		} `json:"stages"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httputil.BadRequest(c, "invalid request body")
	}
	if len(req.Stages) == 0 {
		return httputil.ValidationError(c, "validation failed", map[string]string{
			"stages": "required",
		})
	}

	byIndex := make(map[int]*models.Stage, len(req.Stages))
	stages := make([]*models.Stage, 0, len(req.Stages))
	for _, item := range req.Stages {
		stage, fields := stageFromRequest(projectID, item.stageRequest)
		if len(fields) > 0 {
			return httputil.ValidationError(c, "validation failed", fields)
		}
		if _, dup := byIndex[stage.NumberIndex]; dup {
			return httputil.ValidationError(c, "validation failed", map[string]string{
				"number_index": "duplicate",
			})
		}
		byIndex[stage.NumberIndex] = stage
		stages = append(stages, stage)
	}

	for i, item := range req.Stages {
		stage := stages[i]
		for _, depIndex := range item.Dependencies {
			dep, ok := byIndex[depIndex]
			if !ok {
				return httputil.ValidationError(c, "validation failed", map[string]string{
					"dependencies": "unknown stage index",
				})
			}
			stage.Dependencies = append(stage.Dependencies, dep.ID)
		}
		for _, trackIndex := range item.ParallelTracks {
			track, ok := byIndex[trackIndex]
			if !ok {
				return httputil.ValidationError(c, "validation failed", map[string]string{
					"parallel_tracks": "unknown stage index",
				})
			}
			stage.ParallelTracks = append(stage.ParallelTracks, track.ID)
		}
	}

	// Cycles and self-references are data corruption at seeding time;
	// reject the whole batch before anything is written.
	if _, err := engine.NewGraph(stages); err != nil {
		return httputil.Error(c, err)
	}

	tx, err := h.db.Begin(c.Context())
	if err != nil {
		return httputil.InternalError(c, "database error")
	}
	defer tx.Rollback(c.Context())

	for _, stage := range stages {
		if _, err := tx.Exec(c.Context(),
			`INSERT INTO stages (id, project_id, number_index, name, description, status,
			 estimated_duration, is_deliverable, assignee_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			stage.ID, stage.ProjectID, stage.NumberIndex, stage.Name, stage.Description,
			stage.Status, stage.EstimatedDuration, stage.IsDeliverable, stage.AssigneeID,
			stage.CreatedAt, stage.UpdatedAt,
		); err != nil {
			return httputil.InternalError(c, "failed to create stages")
		}

		for _, depID := range stage.Dependencies {
			if _, err := tx.Exec(c.Context(),
				`INSERT INTO stage_dependencies (id, project_id, stage_id, depends_on, created_at)
				 VALUES ($1, $2, $3, $4, NOW())`,
				uuid.New(), projectID, stage.ID, depID,
			); err != nil {
				return httputil.InternalError(c, "failed to create dependencies")
			}
		}
		for _, trackID := range stage.ParallelTracks {
			if _, err := tx.Exec(c.Context(),
				`INSERT INTO stage_parallel_tracks (id, project_id, stage_id, track_stage_id, created_at)
				 VALUES ($1, $2, $3, $4, NOW())`,
				uuid.New(), projectID, stage.ID, trackID,
			); err != nil {
				return httputil.InternalError(c, "failed to create parallel tracks")
			}
		}
	}

	if err := tx.Commit(c.Context()); err != nil {
		return httputil.InternalError(c, "failed to create stages")
	}

	return httputil.Created(c, stages)
}

// List lists a project's stages with their dependency edges
func (h *StageHandler) List(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	stages, err := loadProjectStages(c.Context(), h.db, projectID)
	if err != nil {
		return httputil.InternalError(c, "database error")
	}

	return httputil.Success(c, stages)
}

// GetByID gets a stage by ID
func (h *StageHandler) GetByID(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}
	stageID, err := uuid.Parse(c.Params("stage_id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid stage ID")
	}

	stage, err := getStage(c.Context(), h.db, projectID, stageID)
	if err != nil {
		return httputil.Error(c, err)
	}

	return httputil.Success(c, stage)
}

// Update updates stage fields. Status transitions to completed freeze the
// stage's dates; date edits go through the cascade endpoints instead.
func (h *StageHandler) Update(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}
	stageID, err := uuid.Parse(c.Params("stage_id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid stage ID")
	}

	var req struct {
		Name              *string `json:"name,omitempty"`
		Description       *string `json:"description,omitempty"`
		Status            *string `json:"status,omitempty"`
		EstimatedDuration *int    `json:"estimated_duration,omitempty"`
		IsDeliverable     *bool   `json:"is_deliverable,omitempty"`
		AssigneeID        *string `json:"assignee_id,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httputil.BadRequest(c, "invalid request body")
	}

	if req.Status != nil && !models.StageStatus(*req.Status).IsValid() {
		return httputil.ValidationError(c, "validation failed", map[string]string{
			"status": "invalid value",
		})
	}
	if req.EstimatedDuration != nil && *req.EstimatedDuration < 0 {
		return httputil.ValidationError(c, "validation failed", map[string]string{
			"estimated_duration": "must not be negative",
		})
	}

	var assigneeID *uuid.UUID
	if req.AssigneeID != nil {
		parsed, err := uuid.Parse(*req.AssigneeID)
		if err != nil {
			return httputil.BadRequest(c, "invalid assignee_id")
		}
		assigneeID = &parsed
	}

	var completedAt *time.Time
	if req.Status != nil && models.StageStatus(*req.Status) == models.StatusCompleted {
		now := time.Now()
		completedAt = &now
	}

	tag, err := h.db.Exec(c.Context(),
		`UPDATE stages SET
		 name = COALESCE($1, name),
		 description = COALESCE($2, description),
		 status = COALESCE($3, status),
		 estimated_duration = COALESCE($4, estimated_duration),
		 is_deliverable = COALESCE($5, is_deliverable),
		 assignee_id = COALESCE($6, assignee_id),
		 completed_at = COALESCE($7, completed_at),
		 updated_at = NOW()
		 WHERE id = $8 AND project_id = $9`,
		req.Name, req.Description, req.Status, req.EstimatedDuration,
		req.IsDeliverable, assigneeID, completedAt, stageID, projectID,
	)
	if err != nil {
		return httputil.InternalError(c, "failed to update stage")
	}
	if tag.RowsAffected() == 0 {
		return httputil.NotFound(c, "stage")
	}

	stage, err := getStage(c.Context(), h.db, projectID, stageID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return httputil.Success(c, stage)
}

// AddDependency adds a dependency edge, rejecting edges that would form a
// cycle or cross projects.
func (h *StageHandler) AddDependency(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}
	stageID, err := uuid.Parse(c.Params("stage_id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid stage ID")
	}

	var req struct {
		DependsOn string `json:"depends_on"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httputil.BadRequest(c, "invalid request body")
	}

	dependsOn, err := uuid.Parse(req.DependsOn)
	if err != nil {
		return httputil.BadRequest(c, "invalid depends_on")
	}
	if stageID == dependsOn {
		return httputil.Error(c, apperrors.ErrSelfDependency)
	}

	stages, err := loadProjectStages(c.Context(), h.db, projectID)
	if err != nil {
		return httputil.InternalError(c, "database error")
	}

	// Validate the graph as it would look with the new edge
	var target *models.Stage
	foundDep := false
	for _, stage := range stages {
		if stage.ID == stageID {
			target = stage
		}
		if stage.ID == dependsOn {
			foundDep = true
		}
	}
	if target == nil {
		return httputil.NotFound(c, "stage")
	}
	if !foundDep {
		return httputil.Error(c, apperrors.ErrCrossProjectDependency)
	}
	if target.DependsOn(dependsOn) {
		return httputil.Conflict(c, "dependency already exists")
	}

	target.Dependencies = append(target.Dependencies, dependsOn)
	if _, err := engine.NewGraph(stages); err != nil {
		return httputil.Error(c, err)
	}

	_, err = h.db.Exec(c.Context(),
		`INSERT INTO stage_dependencies (id, project_id, stage_id, depends_on, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), projectID, stageID, dependsOn,
	)
	if err != nil {
		return httputil.InternalError(c, "failed to add dependency")
	}

	return httputil.Created(c, fiber.Map{
		"stage_id":   stageID.String(),
		"depends_on": dependsOn.String(),
	})
}

// RemoveDependency removes a dependency edge
func (h *StageHandler) RemoveDependency(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}
	stageID, err := uuid.Parse(c.Params("stage_id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid stage ID")
	}
	dependsOn, err := uuid.Parse(c.Params("dep_id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid dependency ID")
	}

	tag, err := h.db.Exec(c.Context(),
		"DELETE FROM stage_dependencies WHERE project_id = $1 AND stage_id = $2 AND depends_on = $3",
		projectID, stageID, dependsOn,
	)
	if err != nil {
		return httputil.InternalError(c, "failed to remove dependency")
	}
	if tag.RowsAffected() == 0 {
		return httputil.NotFound(c, "dependency")
	}

	return httputil.NoContent(c)
}

// Helper methods

func (h *StageHandler) insertStage(c *fiber.Ctx, stage *models.Stage) error {
	_, err := h.db.Exec(c.Context(),
		`INSERT INTO stages (id, project_id, number_index, name, description, status,
		 estimated_duration, is_deliverable, assignee_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		stage.ID, stage.ProjectID, stage.NumberIndex, stage.Name, stage.Description,
		stage.Status, stage.EstimatedDuration, stage.IsDeliverable, stage.AssigneeID,
		stage.CreatedAt, stage.UpdatedAt,
	)
	return err
}

func stageFromRequest(projectID uuid.UUID, req stageRequest) (*models.Stage, map[string]string) {
	fields := make(map[string]string)
	if req.Name == "" {
		fields["name"] = "required"
	}
	if req.NumberIndex < 1 {
		fields["number_index"] = "must be >= 1"
	}
	if req.EstimatedDuration != nil && *req.EstimatedDuration < 0 {
		fields["estimated_duration"] = "must not be negative"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	stage := models.NewStage(projectID, req.NumberIndex, req.Name)
	stage.Description = req.Description
	stage.IsDeliverable = req.IsDeliverable
	if req.EstimatedDuration != nil && *req.EstimatedDuration > 0 {
		stage.EstimatedDuration = *req.EstimatedDuration
	}
	if req.AssigneeID != nil {
		assigneeID, err := uuid.Parse(*req.AssigneeID)
		if err != nil {
			fields["assignee_id"] = "invalid"
			return nil, fields
		}
		stage.AssigneeID = &assigneeID
	}
	return stage, nil
}
