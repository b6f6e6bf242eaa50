package models

import (
	"time"

	"github.com/google/uuid"
)

// Project represents a client engagement whose deliverables are tracked as
// a dependency graph of stages.
type Project struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	ClientName  *string       `json:"client_name,omitempty" db:"client_name"`
	Description *string       `json:"description,omitempty" db:"description"`
	Status      ProjectStatus `json:"status" db:"status"`
	StartDate   *time.Time    `json:"start_date,omitempty" db:"start_date"`
	TargetDate  *time.Time    `json:"target_date,omitempty" db:"target_date"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
}

// NewProject creates a new project with default values
func NewProject(name string) *Project {
	now := time.Now()
	return &Project{
		ID:        uuid.New(),
		Name:      name,
		Status:    ProjectStatusPlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProjectProgress summarizes completion across a project's stages
type ProjectProgress struct {
	TotalStages     int     `json:"total_stages"`
	CompletedStages int     `json:"completed_stages"`
	Percentage      float64 `json:"percentage"`
}

// CalculateProgress calculates progress from completed vs total stages
func (p *Project) CalculateProgress(total, completed int) ProjectProgress {
	var percentage float64
	if total > 0 {
		percentage = float64(completed) / float64(total) * 100
	}
	return ProjectProgress{
		TotalStages:     total,
		CompletedStages: completed,
		Percentage:      percentage,
	}
}
