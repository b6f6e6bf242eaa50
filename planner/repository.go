package planner

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
)

// loadProjectStages loads every stage of a project with its dependency and
// parallel-track edges assembled. This is the snapshot the engine works on.
func loadProjectStages(ctx context.Context, db *pgxpool.Pool, projectID uuid.UUID) ([]*models.Stage, error) {
	rows, err := db.Query(ctx,
		`SELECT id, project_id, number_index, name, description, status, estimated_duration,
		 start_date, end_date, is_deliverable, assignee_id, completed_at, created_at, updated_at
		 FROM stages
		 WHERE project_id = $1
		 ORDER BY number_index ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Stage)
	stages := make([]*models.Stage, 0)
	for rows.Next() {
		var stage models.Stage
		if err := rows.Scan(
			&stage.ID, &stage.ProjectID, &stage.NumberIndex, &stage.Name, &stage.Description,
			&stage.Status, &stage.EstimatedDuration, &stage.StartDate, &stage.EndDate,
			&stage.IsDeliverable, &stage.AssigneeID, &stage.CompletedAt, &stage.CreatedAt, &stage.UpdatedAt,
		); err != nil {
			return nil, err
		}
		stage.Dependencies = []uuid.UUID{}
		stage.ParallelTracks = []uuid.UUID{}
		byID[stage.ID] = &stage
		stages = append(stages, &stage)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	depRows, err := db.Query(ctx,
		"SELECT stage_id, depends_on FROM stage_dependencies WHERE project_id = $1",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer depRows.Close()

	for depRows.Next() {
		var stageID, dependsOn uuid.UUID
		if err := depRows.Scan(&stageID, &dependsOn); err != nil {
			return nil, err
		}
		if stage, ok := byID[stageID]; ok {
			stage.Dependencies = append(stage.Dependencies, dependsOn)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, err
	}

	trackRows, err := db.Query(ctx,
		"SELECT stage_id, track_stage_id FROM stage_parallel_tracks WHERE project_id = $1",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer trackRows.Close()

	for trackRows.Next() {
		var stageID, trackID uuid.UUID
		if err := trackRows.Scan(&stageID, &trackID); err != nil {
			return nil, err
		}
		if stage, ok := byID[stageID]; ok {
			stage.ParallelTracks = append(stage.ParallelTracks, trackID)
		}
	}
	return stages, trackRows.Err()
}

// projectExists checks that a project exists and is not soft-deleted
func projectExists(ctx context.Context, db *pgxpool.Pool, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1 AND deleted_at IS NULL)",
		projectID,
	).Scan(&exists)
	return exists, err
}

// getStage loads a single stage with its dependency edges
func getStage(ctx context.Context, db *pgxpool.Pool, projectID, stageID uuid.UUID) (*models.Stage, error) {
	var stage models.Stage
	err := db.QueryRow(ctx,
		`SELECT id, project_id, number_index, name, description, status, estimated_duration,
		 start_date, end_date, is_deliverable, assignee_id, completed_at, created_at, updated_at
		 FROM stages WHERE id = $1 AND project_id = $2`,
		stageID, projectID,
	).Scan(
		&stage.ID, &stage.ProjectID, &stage.NumberIndex, &stage.Name, &stage.Description,
		&stage.Status, &stage.EstimatedDuration, &stage.StartDate, &stage.EndDate,
		&stage.IsDeliverable, &stage.AssigneeID, &stage.CompletedAt, &stage.CreatedAt, &stage.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrStageNotFound
	}
	if err != nil {
		return nil, err
	}

	stage.Dependencies = []uuid.UUID{}
	stage.ParallelTracks = []uuid.UUID{}

	depRows, err := db.Query(ctx,
		"SELECT depends_on FROM stage_dependencies WHERE stage_id = $1",
		stageID,
	)
	if err != nil {
		return nil, err
	}
	defer depRows.Close()

	for depRows.Next() {
		var dependsOn uuid.UUID
		if err := depRows.Scan(&dependsOn); err != nil {
			return nil, err
		}
		stage.Dependencies = append(stage.Dependencies, dependsOn)
	}
	return &stage, depRows.Err()
}

// persistSchedule writes recomputed start/end dates back in one transaction
func persistSchedule(ctx context.Context, db *pgxpool.Pool, stages []*models.Stage) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stage := range stages {
		if _, err := tx.Exec(ctx,
			"UPDATE stages SET start_date = $1, end_date = $2, estimated_duration = $3, updated_at = NOW() WHERE id = $4",
			stage.StartDate, stage.EndDate, stage.EstimatedDuration, stage.ID,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
