package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
)

// Scheduler computes start and end dates for every stage of a project from
// the project start date and the dependency graph. It is a full recompute,
// not incremental; CalculateCascade exists for the single-edit case.
type Scheduler struct {
	defaultDuration int
}

// NewScheduler creates a scheduler. defaultDuration (days) is applied to
// stages without an estimated duration; values <= 0 fall back to the model
// default.
func NewScheduler(defaultDuration int) *Scheduler {
	if defaultDuration <= 0 {
		defaultDuration = models.DefaultStageDuration
	}
	return &Scheduler{defaultDuration: defaultDuration}
}

// RecomputeAll computes dates for all stages in a single pass over the
// dependency DAG and returns updated copies ordered by number index.
//
// A stage with no dependencies starts at the project start date; otherwise
// it starts the day after the latest end date among its dependencies. The
// end date is start plus the estimated duration in calendar days. Completed
// stages with recorded dates keep them and act as fixed constraints for
// their dependents.
//
// Re-running on identical input yields identical output. The input slice
// and its stages are never mutated.
func (s *Scheduler) RecomputeAll(stages []*models.Stage, projectStart time.Time) ([]*models.Stage, error) {
	graph, err := NewGraph(stages)
	if err != nil {
		return nil, err
	}

	ordered, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	start := models.DateOnly(projectStart)
	ends := make(map[uuid.UUID]time.Time, len(ordered))
	result := make([]*models.Stage, 0, len(ordered))

	for _, stage := range ordered {
		updated := stage.Clone()

		if stage.IsCompleted() && stage.HasSchedule() {
			// Finished work keeps its historical dates
			ends[stage.ID] = models.DateOnly(*stage.EndDate)
			result = append(result, updated)
			continue
		}

		// Dependency-free stages anchor at the project start; dependent
		// stages follow their dependencies' ends alone, even when a
		// completed dependency finished before the project start.
		var stageStart time.Time
		if len(stage.Dependencies) == 0 {
			stageStart = start
		}
		for _, depID := range stage.Dependencies {
			depEnd, ok := ends[depID]
			if !ok {
				// Topological order guarantees dependencies were processed
				// first; reaching this is a graph bug, not bad input.
				return nil, fmt.Errorf("stage %q reached before dependency %s: %w",
					stage.Name, depID, errors.ErrInternalConsistency)
			}
			if candidate := depEnd.AddDate(0, 0, 1); candidate.After(stageStart) {
				stageStart = candidate
			}
		}

		duration := stage.EstimatedDuration
		if duration <= 0 {
			duration = s.defaultDuration
		}
		stageEnd := stageStart.AddDate(0, 0, duration)

		updated.StartDate = &stageStart
		updated.EndDate = &stageEnd
		updated.EstimatedDuration = duration
		ends[stage.ID] = stageEnd
		result = append(result, updated)
	}

	sortStages(result)
	return result, nil
}
