// Package engine implements the dependency-aware scheduling core: a DAG of
// project stages with date propagation, cascade impact analysis, critical
// path computation and a polling status watcher.
//
// The engine performs no I/O and never mutates caller-owned stages; every
// computation works over a snapshot and returns new copies.
package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
)

// Graph holds the full set of stages for a project and answers structural
// queries. Construction validates the dependency relation; a Graph that
// exists is known to be a DAG over known stage ids.
type Graph struct {
	stages     map[uuid.UUID]*models.Stage
	dependents map[uuid.UUID][]uuid.UUID // dependency -> stages that depend on it
}

// NewGraph builds a graph from the given stages. It fails when a dependency
// references an unknown or duplicate stage, a stage depends on itself, a
// duration is negative, or the dependency relation contains a cycle.
func NewGraph(stages []*models.Stage) (*Graph, error) {
	g := &Graph{
		stages:     make(map[uuid.UUID]*models.Stage, len(stages)),
		dependents: make(map[uuid.UUID][]uuid.UUID),
	}

	for _, stage := range stages {
		if _, exists := g.stages[stage.ID]; exists {
			return nil, fmt.Errorf("stage %s: %w", stage.ID, errors.ErrAlreadyExists)
		}
		if stage.EstimatedDuration < 0 {
			return nil, fmt.Errorf("stage %q: %w", stage.Name, errors.ErrNegativeDuration)
		}
		g.stages[stage.ID] = stage
	}

	for _, stage := range stages {
		for _, depID := range stage.Dependencies {
			if depID == stage.ID {
				return nil, fmt.Errorf("stage %q: %w", stage.Name, errors.ErrSelfDependency)
			}
			if _, ok := g.stages[depID]; !ok {
				return nil, fmt.Errorf("stage %q depends on %s: %w", stage.Name, depID, errors.ErrUnknownDependency)
			}
			g.dependents[depID] = append(g.dependents[depID], stage.ID)
		}
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}

	return g, nil
}

// Stage returns the stage with the given id
func (g *Graph) Stage(id uuid.UUID) (*models.Stage, bool) {
	s, ok := g.stages[id]
	return s, ok
}

// Len returns the number of stages in the graph
func (g *Graph) Len() int {
	return len(g.stages)
}

// Stages returns all stages ordered by number index
func (g *Graph) Stages() []*models.Stage {
	out := make([]*models.Stage, 0, len(g.stages))
	for _, s := range g.stages {
		out = append(out, s)
	}
	sortStages(out)
	return out
}

// Dependencies returns the direct dependencies of a stage
func (g *Graph) Dependencies(id uuid.UUID) []*models.Stage {
	stage, ok := g.stages[id]
	if !ok {
		return nil
	}
	out := make([]*models.Stage, 0, len(stage.Dependencies))
	for _, depID := range stage.Dependencies {
		if dep, ok := g.stages[depID]; ok {
			out = append(out, dep)
		}
	}
	sortStages(out)
	return out
}

// Dependents returns the stages that directly depend on the given stage
func (g *Graph) Dependents(id uuid.UUID) []*models.Stage {
	out := make([]*models.Stage, 0, len(g.dependents[id]))
	for _, depID := range g.dependents[id] {
		out = append(out, g.stages[depID])
	}
	sortStages(out)
	return out
}

// Descendants returns the set of stages transitively dependent on the given
// stage. The given stage itself is not included.
func (g *Graph) Descendants(id uuid.UUID) map[uuid.UUID]bool {
	seen := make(map[uuid.UUID]bool)
	queue := append([]uuid.UUID{}, g.dependents[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		queue = append(queue, g.dependents[next]...)
	}
	return seen
}

// TopologicalOrder returns the stages in dependency order, ties broken by
// number index ascending so the order is deterministic for identical input.
// Construction already rejects cycles; this recomputes defensively and
// fails with ErrCyclicDependency if the graph has mutated underneath us.
func (g *Graph) TopologicalOrder() ([]*models.Stage, error) {
	inDeg := make(map[uuid.UUID]int, len(g.stages))
	for id, stage := range g.stages {
		inDeg[id] = len(stage.Dependencies)
	}

	var ready []*models.Stage
	for id, deg := range inDeg {
		if deg == 0 {
			ready = append(ready, g.stages[id])
		}
	}
	sortStages(ready)

	ordered := make([]*models.Stage, 0, len(g.stages))
	for len(ready) > 0 {
		stage := ready[0]
		ready = ready[1:]
		ordered = append(ordered, stage)

		var unlocked []*models.Stage
		for _, depID := range g.dependents[stage.ID] {
			inDeg[depID]--
			if inDeg[depID] == 0 {
				unlocked = append(unlocked, g.stages[depID])
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sortStages(ready)
		}
	}

	if len(ordered) != len(g.stages) {
		return nil, fmt.Errorf("ordered %d of %d stages: %w", len(ordered), len(g.stages), errors.ErrCyclicDependency)
	}

	return ordered, nil
}

// detectCycle runs a DFS with a recursion-stack check over the dependency
// edges.
func (g *Graph) detectCycle() error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[uuid.UUID]int, len(g.stages))

	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		switch state[id] {
		case inStack:
			return fmt.Errorf("stage %q is part of a cycle: %w", g.stages[id].Name, errors.ErrCyclicDependency)
		case done:
			return nil
		}
		state[id] = inStack
		for _, depID := range g.stages[id].Dependencies {
			if err := visit(depID); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	// Iterate in a fixed order so the reported cycle member is stable
	for _, stage := range g.Stages() {
		if err := visit(stage.ID); err != nil {
			return err
		}
	}
	return nil
}

// sortStages orders stages by number index ascending, falling back to id so
// the order is total even when indexes collide.
func sortStages(stages []*models.Stage) {
	sort.Slice(stages, func(i, j int) bool {
		if stages[i].NumberIndex != stages[j].NumberIndex {
			return stages[i].NumberIndex < stages[j].NumberIndex
		}
		return stages[i].ID.String() < stages[j].ID.String()
	})
}
