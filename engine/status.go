package engine

import (
	"github.com/google/uuid"

	"github.com/atelierhq/cadence/common/models"
)

// DeriveStatus computes a stage's effective status from its persisted status
// and its dependencies' statuses. Completed and in-progress are business
// states and are returned unchanged; otherwise the stage is ready
// (not_started) when every dependency is completed and blocked when any is
// not. Pure function: no side effects, never mutates the stage.
func DeriveStatus(stage *models.Stage, depStatuses []models.StageStatus) models.StageStatus {
	if stage.Status.IsManual() {
		return stage.Status
	}
	for _, dep := range depStatuses {
		if dep != models.StatusCompleted {
			return models.StatusBlocked
		}
	}
	return models.StatusNotStarted
}

// DeriveAll computes the effective status of every stage in the graph,
// keyed by stage id.
func DeriveAll(g *Graph) map[uuid.UUID]models.StageStatus {
	out := make(map[uuid.UUID]models.StageStatus, g.Len())
	for _, stage := range g.Stages() {
		deps := g.Dependencies(stage.ID)
		statuses := make([]models.StageStatus, len(deps))
		for i, dep := range deps {
			statuses[i] = dep.Status
		}
		out[stage.ID] = DeriveStatus(stage, statuses)
	}
	return out
}
