package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
)

// AffectedStage describes one downstream date adjustment in a cascade
type AffectedStage struct {
	StageID        uuid.UUID  `json:"stage_id"`
	Name           string     `json:"name"`
	OriginalStart  *time.Time `json:"original_start,omitempty"`
	OriginalEnd    *time.Time `json:"original_end,omitempty"`
	NewStart       time.Time  `json:"new_start"`
	NewEnd         time.Time  `json:"new_end"`
	AdjustmentDays int        `json:"adjustment_days"`
}

// CascadeConflict describes why part of a cascade cannot be applied
type CascadeConflict struct {
	StageID  uuid.UUID               `json:"stage_id"`
	Name     string                  `json:"name"`
	Severity models.ConflictSeverity `json:"severity"`
	Reason   string                  `json:"reason"`
}

// CascadeReport is the outcome of a proposed date edit: every downstream
// stage whose window must shift, and any conflicts that make the edit
// invalid. The calculator reports conflicts; it never resolves them.
type CascadeReport struct {
	Valid     bool              `json:"valid"`
	StageID   uuid.UUID         `json:"stage_id"`
	NewStart  time.Time         `json:"new_start"`
	NewEnd    time.Time         `json:"new_end"`
	Affected  []AffectedStage   `json:"affected"`
	Conflicts []CascadeConflict `json:"conflicts"`
}

// CalculateCascade determines the minimal valid adjustment to all stages
// transitively dependent on stageID when its window is manually changed to
// [newStart, newEnd].
//
// Every dependent's new start is the day after the latest effective end
// among ALL of its dependencies, shifted or not, so multi-dependency stages
// follow standard CPM max semantics. Each dependent keeps its own duration.
// The same rule handles both pushing later and pulling earlier: a stage
// only moves earlier as far as its slowest dependency allows.
//
// Completed stages are immutable. Editing one yields Valid=false outright;
// a completed stage downstream becomes a critical conflict, is excluded
// from Affected, and its recorded end keeps constraining its dependents.
//
// Traversal is the graph's topological order restricted to the affected
// subgraph, so results are reproducible for identical inputs.
func CalculateCascade(graph *Graph, stageID uuid.UUID, newStart, newEnd time.Time) (*CascadeReport, error) {
	stage, ok := graph.Stage(stageID)
	if !ok {
		return nil, fmt.Errorf("stage %s: %w", stageID, errors.ErrStageNotFound)
	}

	newStart = models.DateOnly(newStart)
	newEnd = models.DateOnly(newEnd)

	report := &CascadeReport{
		Valid:     true,
		StageID:   stageID,
		NewStart:  newStart,
		NewEnd:    newEnd,
		Affected:  []AffectedStage{},
		Conflicts: []CascadeConflict{},
	}

	if newStart.After(newEnd) {
		report.Valid = false
		report.Conflicts = append(report.Conflicts, CascadeConflict{
			StageID:  stageID,
			Name:     stage.Name,
			Severity: models.SeverityCritical,
			Reason:   errors.ErrInvalidDateRange.Error(),
		})
		return report, nil
	}

	if stage.IsCompleted() {
		report.Valid = false
		report.Conflicts = append(report.Conflicts, CascadeConflict{
			StageID:  stageID,
			Name:     stage.Name,
			Severity: models.SeverityCritical,
			Reason:   errors.ErrStageFinalized.Error(),
		})
		return report, nil
	}

	ordered, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	downstream := graph.Descendants(stageID)

	// Effective end dates seen by dependents: the edited stage contributes
	// its proposed end, recomputed stages their shifted end, everything
	// else its current end.
	effectiveEnds := map[uuid.UUID]time.Time{stageID: newEnd}

	for _, dep := range ordered {
		if !downstream[dep.ID] {
			continue
		}

		if dep.IsCompleted() {
			report.Valid = false
			report.Conflicts = append(report.Conflicts, CascadeConflict{
				StageID:  dep.ID,
				Name:     dep.Name,
				Severity: models.SeverityCritical,
				Reason:   errors.ErrStageFinalized.Error(),
			})
			if dep.EndDate != nil {
				effectiveEnds[dep.ID] = models.DateOnly(*dep.EndDate)
			}
			continue
		}

		start, ok := effectiveStart(graph, dep, effectiveEnds)
		if !ok {
			// No dependency carries a usable end date; nothing to shift from
			continue
		}
		end := start.AddDate(0, 0, dep.Duration())

		current := dep.StartDate
		if current != nil && models.DateOnly(*current).Equal(start) {
			// Window unchanged; dependents still read the current end
			if dep.EndDate != nil {
				effectiveEnds[dep.ID] = models.DateOnly(*dep.EndDate)
			} else {
				effectiveEnds[dep.ID] = end
			}
			continue
		}

		adjustment := 0
		if current != nil {
			adjustment = daysBetween(models.DateOnly(*current), start)
		}

		report.Affected = append(report.Affected, AffectedStage{
			StageID:        dep.ID,
			Name:           dep.Name,
			OriginalStart:  dep.StartDate,
			OriginalEnd:    dep.EndDate,
			NewStart:       start,
			NewEnd:         end,
			AdjustmentDays: adjustment,
		})
		effectiveEnds[dep.ID] = end
	}

	return report, nil
}

// effectiveStart computes the day after the latest effective end among all
// of a stage's dependencies. Returns false when no dependency has a known
// end date.
func effectiveStart(graph *Graph, stage *models.Stage, effectiveEnds map[uuid.UUID]time.Time) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, depID := range stage.Dependencies {
		end, ok := effectiveEnds[depID]
		if !ok {
			dep, exists := graph.Stage(depID)
			if !exists || dep.EndDate == nil {
				continue
			}
			end = models.DateOnly(*dep.EndDate)
		}
		if !found || end.After(latest) {
			latest = end
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return latest.AddDate(0, 0, 1), true
}

// daysBetween returns the number of calendar days from a to b (negative
// when b precedes a). Both are expected to be midnight-normalized.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
