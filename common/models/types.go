package models

// StageStatus represents the status of a project stage
type StageStatus string

const (
	StatusNotStarted StageStatus = "not_started"
	StatusInProgress StageStatus = "in_progress"
	StatusBlocked    StageStatus = "blocked"
	StatusCompleted  StageStatus = "completed"
)

// IsValid checks if the status is valid
func (s StageStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusCompleted:
		return true
	}
	return false
}

// IsManual reports whether the status is user/business driven and must not be
// overridden by dependency-derived state.
func (s StageStatus) IsManual() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// ConflictSeverity represents how severe a cascade conflict is
type ConflictSeverity string

const (
	SeverityWarning  ConflictSeverity = "warning"
	SeverityCritical ConflictSeverity = "critical"
)

// IsValid checks if the severity is valid
func (s ConflictSeverity) IsValid() bool {
	switch s {
	case SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// ProjectStatus represents the status of a project
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

// IsValid checks if the project status is valid
func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusOnHold, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// EventType represents a watcher-emitted domain event type
type EventType string

const (
	EventStatusAutoUpdated EventType = "status_auto_updated"
	EventStageUnblocked    EventType = "stage_unblocked"
)

// IsValid checks if the event type is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventStatusAutoUpdated, EventStageUnblocked:
		return true
	}
	return false
}
