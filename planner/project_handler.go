package planner

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/pkg/httputil"
)

// ProjectHandler handles project endpoints
type ProjectHandler struct {
	db *pgxpool.Pool
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(db *pgxpool.Pool) *ProjectHandler {
	return &ProjectHandler{db: db}
}

// Create creates a new project
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Name        string  `json:"name"`
		ClientName  *string `json:"client_name,omitempty"`
		Description *string `json:"description,omitempty"`
		StartDate   *string `json:"start_date,omitempty"`
		TargetDate  *string `json:"target_date,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httputil.BadRequest(c, "invalid request body")
	}

	if req.Name == "" {
		return httputil.ValidationError(c, "validation failed", map[string]string{
			"name": "required",
		})
	}

	project := models.NewProject(req.Name)
	project.ClientName = req.ClientName
	project.Description = req.Description

	if req.StartDate != nil {
		start, err := time.Parse("2006-01-02", *req.StartDate)
		if err != nil {
			return httputil.BadRequest(c, "invalid start_date format, expected YYYY-MM-DD")
		}
		start = models.DateOnly(start)
		project.StartDate = &start
	}
	if req.TargetDate != nil {
		target, err := time.Parse("2006-01-02", *req.TargetDate)
		if err != nil {
			return httputil.BadRequest(c, "invalid target_date format, expected YYYY-MM-DD")
		}
		target = models.DateOnly(target)
		project.TargetDate = &target
	}

	_, err := h.db.Exec(c.Context(),
		`INSERT INTO projects (id, name, client_name, description, status, start_date, target_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		project.ID, project.Name, project.ClientName, project.Description, project.Status,
		project.StartDate, project.TargetDate, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return httputil.InternalError(c, "failed to create project")
	}

	return httputil.Created(c, project)
}

// List lists projects with pagination
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	params := httputil.ParsePagination(c)

	var totalCount int64
	if err := h.db.QueryRow(c.Context(),
		"SELECT COUNT(*) FROM projects WHERE deleted_at IS NULL",
	).Scan(&totalCount); err != nil {
		return httputil.InternalError(c, "database error")
	}

	rows, err := h.db.Query(c.Context(),
		`SELECT id, name, client_name, description, status, start_date, target_date, created_at, updated_at
		 FROM projects
		 WHERE deleted_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		params.PageSize, params.Offset(),
	)
	if err != nil {
		return httputil.InternalError(c, "database error")
	}
	defer rows.Close()

	projects := make([]models.Project, 0)
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.ClientName, &p.Description, &p.Status,
			&p.StartDate, &p.TargetDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return httputil.InternalError(c, "database error")
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return httputil.InternalError(c, "database error")
	}

	return httputil.SuccessWithMeta(c, projects, httputil.BuildMeta(params.Page, params.PageSize, totalCount))
}

// GetByID gets a project by ID, including stage progress
func (h *ProjectHandler) GetByID(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	var p models.Project
	err = h.db.QueryRow(c.Context(),
		`SELECT id, name, client_name, description, status, start_date, target_date, created_at, updated_at
		 FROM projects WHERE id = $1 AND deleted_at IS NULL`,
		projectID,
	).Scan(&p.ID, &p.Name, &p.ClientName, &p.Description, &p.Status,
		&p.StartDate, &p.TargetDate, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return httputil.NotFound(c, "project")
	}
	if err != nil {
		return httputil.InternalError(c, "database error")
	}

	var total, completed int
	_ = h.db.QueryRow(c.Context(),
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		 FROM stages WHERE project_id = $1`,
		projectID,
	).Scan(&total, &completed)

	return httputil.Success(c, fiber.Map{
		"project":  p,
		"progress": p.CalculateProgress(total, completed),
	})
}

// Update updates project fields
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	var req struct {
		Name        *string `json:"name,omitempty"`
		ClientName  *string `json:"client_name,omitempty"`
		Description *string `json:"description,omitempty"`
		Status      *string `json:"status,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return httputil.BadRequest(c, "invalid request body")
	}

	if req.Status != nil && !models.ProjectStatus(*req.Status).IsValid() {
		return httputil.ValidationError(c, "validation failed", map[string]string{
			"status": "invalid value",
		})
	}

	tag, err := h.db.Exec(c.Context(),
		`UPDATE projects SET
		 name = COALESCE($1, name),
		 client_name = COALESCE($2, client_name),
		 description = COALESCE($3, description),
		 status = COALESCE($4, status),
		 updated_at = NOW()
		 WHERE id = $5 AND deleted_at IS NULL`,
		req.Name, req.ClientName, req.Description, req.Status, projectID,
	)
	if err != nil {
		return httputil.InternalError(c, "failed to update project")
	}
	if tag.RowsAffected() == 0 {
		return httputil.NotFound(c, "project")
	}

	return h.GetByID(c)
}

// Delete soft-deletes a project and removes its stages
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.BadRequest(c, "invalid project ID")
	}

	tag, err := h.db.Exec(c.Context(),
		"UPDATE projects SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL",
		projectID,
	)
	if err != nil {
		return httputil.InternalError(c, "failed to delete project")
	}
	if tag.RowsAffected() == 0 {
		return httputil.NotFound(c, "project")
	}

	// Stages only go away with their project
	_, _ = h.db.Exec(c.Context(), "DELETE FROM stage_dependencies WHERE project_id = $1", projectID)
	_, _ = h.db.Exec(c.Context(), "DELETE FROM stage_parallel_tracks WHERE project_id = $1", projectID)
	_, _ = h.db.Exec(c.Context(), "DELETE FROM stages WHERE project_id = $1", projectID)

	return httputil.NoContent(c)
}
