package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/cadence/common/models"
)

// CriticalPath identifies the chain of stages whose sequential durations
// determine the earliest possible project completion. Standard longest
// path over the DAG: earliest finish per stage in topological order with
// predecessor pointers, reconstructed backward from the maximum finish.
// Ties are broken by number index, keeping the result deterministic.
func CriticalPath(stages []*models.Stage) ([]*models.Stage, error) {
	graph, err := NewGraph(stages)
	if err != nil {
		return nil, err
	}
	return criticalPath(graph)
}

func criticalPath(graph *Graph) ([]*models.Stage, error) {
	ordered, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return []*models.Stage{}, nil
	}

	finish := make(map[uuid.UUID]int, len(ordered))
	pred := make(map[uuid.UUID]uuid.UUID, len(ordered))

	for _, stage := range ordered {
		best := 0
		var bestDep *models.Stage
		for _, dep := range graph.Dependencies(stage.ID) {
			if f := finish[dep.ID]; bestDep == nil || f > best {
				best = f
				bestDep = dep
			}
		}
		finish[stage.ID] = best + stage.Duration()
		if bestDep != nil {
			pred[stage.ID] = bestDep.ID
		}
	}

	// Terminal stage of the path: maximum earliest finish. Ordered iteration
	// means ties resolve to the lowest number index.
	var terminal *models.Stage
	maxFinish := 0
	for _, stage := range ordered {
		if terminal == nil || finish[stage.ID] > maxFinish {
			terminal = stage
			maxFinish = finish[stage.ID]
		}
	}

	var path []*models.Stage
	for cursor := terminal; ; {
		path = append(path, cursor)
		prev, ok := pred[cursor.ID]
		if !ok {
			break
		}
		cursor, _ = graph.Stage(prev)
	}

	// Reverse into dependency order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, nil
}

// ProjectFinish returns the earliest possible completion date given the
// project start: the critical path duration projected onto the calendar.
func ProjectFinish(stages []*models.Stage, projectStart time.Time) (time.Time, error) {
	path, err := CriticalPath(stages)
	if err != nil {
		return time.Time{}, err
	}
	days := 0
	for _, stage := range path {
		days += stage.Duration()
	}
	// One settling day between consecutive stages, matching the scheduler
	if len(path) > 1 {
		days += len(path) - 1
	}
	return models.DateOnly(projectStart).AddDate(0, 0, days), nil
}
