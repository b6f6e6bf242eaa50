package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStageDuration is the estimated duration (in days) assumed when a
// stage is created without one.
const DefaultStageDuration = 3

// Stage represents a unit of work in the project plan. Dependencies gate
// scheduling; parallel tracks are informational only.
type Stage struct {
	ID                uuid.UUID   `json:"id" db:"id"`
	ProjectID         uuid.UUID   `json:"project_id" db:"project_id"`
	NumberIndex       int         `json:"number_index" db:"number_index"`
	Name              string      `json:"name" db:"name"`
	Description       *string     `json:"description,omitempty" db:"description"`
	Status            StageStatus `json:"status" db:"status"`
	Dependencies      []uuid.UUID `json:"dependencies" db:"-"`
	ParallelTracks    []uuid.UUID `json:"parallel_tracks" db:"-"`
	EstimatedDuration int         `json:"estimated_duration" db:"estimated_duration"` // In days
	StartDate         *time.Time  `json:"start_date,omitempty" db:"start_date"`
	EndDate           *time.Time  `json:"end_date,omitempty" db:"end_date"`
	IsDeliverable     bool        `json:"is_deliverable" db:"is_deliverable"`
	AssigneeID        *uuid.UUID  `json:"assignee_id,omitempty" db:"assignee_id"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

// NewStage creates a new stage with default values
func NewStage(projectID uuid.UUID, numberIndex int, name string) *Stage {
	now := time.Now()
	return &Stage{
		ID:                uuid.New(),
		ProjectID:         projectID,
		NumberIndex:       numberIndex,
		Name:              name,
		Status:            StatusNotStarted,
		Dependencies:      []uuid.UUID{},
		ParallelTracks:    []uuid.UUID{},
		EstimatedDuration: DefaultStageDuration,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Duration returns the estimated duration in days, applying the default when
// the stored value is unset.
func (s *Stage) Duration() int {
	if s.EstimatedDuration <= 0 {
		return DefaultStageDuration
	}
	return s.EstimatedDuration
}

// IsCompleted returns true if the stage is completed
func (s *Stage) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// HasSchedule returns true if both start and end dates are set
func (s *Stage) HasSchedule() bool {
	return s.StartDate != nil && s.EndDate != nil
}

// DependsOn returns true if the stage directly depends on the given stage
func (s *Stage) DependsOn(id uuid.UUID) bool {
	for _, dep := range s.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the stage. The scheduling engine never
// mutates caller-owned stages; it returns clones with recomputed fields.
func (s *Stage) Clone() *Stage {
	c := *s
	c.Dependencies = append([]uuid.UUID{}, s.Dependencies...)
	c.ParallelTracks = append([]uuid.UUID{}, s.ParallelTracks...)
	if s.StartDate != nil {
		d := *s.StartDate
		c.StartDate = &d
	}
	if s.EndDate != nil {
		d := *s.EndDate
		c.EndDate = &d
	}
	if s.CompletedAt != nil {
		d := *s.CompletedAt
		c.CompletedAt = &d
	}
	if s.AssigneeID != nil {
		a := *s.AssigneeID
		c.AssigneeID = &a
	}
	if s.Description != nil {
		d := *s.Description
		c.Description = &d
	}
	return &c
}

// MarkCompleted transitions the stage to completed and freezes its dates
func (s *Stage) MarkCompleted() {
	now := time.Now()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// DateOnly truncates a timestamp to midnight UTC. Stage schedules are
// calendar dates; times of day are never significant.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
