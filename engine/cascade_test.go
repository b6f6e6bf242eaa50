package engine_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
)

// scheduledChain builds the Discovery -> {Moodboards, Logo} fixture with
// dates already computed from a 2025-01-01 project start.
func scheduledChain(t *testing.T) (*engine.Graph, *models.Stage, *models.Stage, *models.Stage) {
	t.Helper()

	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)

	sched := engine.NewScheduler(0)
	result, err := sched.RecomputeAll([]*models.Stage{a, b, c}, date(2025, time.January, 1))
	require.NoError(t, err)

	graph, err := engine.NewGraph(result)
	require.NoError(t, err)

	return graph,
		findStage(t, result, "Discovery"),
		findStage(t, result, "Moodboards"),
		findStage(t, result, "Logo")
}

func TestCalculateCascadePushLater(t *testing.T) {
	graph, a, b, c := scheduledChain(t)

	// Discovery slips two days: ends Jan 6 instead of Jan 4
	report, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 1), date(2025, time.January, 6))
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Empty(t, report.Conflicts)
	require.Len(t, report.Affected, 2)

	var gotB, gotC *engine.AffectedStage
	for i := range report.Affected {
		switch report.Affected[i].StageID {
		case b.ID:
			gotB = &report.Affected[i]
		case c.ID:
			gotC = &report.Affected[i]
		}
	}
	require.NotNil(t, gotB)
	require.NotNil(t, gotC)

	assert.Equal(t, date(2025, time.January, 7), gotB.NewStart)
	assert.Equal(t, date(2025, time.January, 9), gotB.NewEnd)
	assert.Equal(t, 2, gotB.AdjustmentDays)

	assert.Equal(t, date(2025, time.January, 7), gotC.NewStart)
	assert.Equal(t, date(2025, time.January, 12), gotC.NewEnd)
	assert.Equal(t, 2, gotC.AdjustmentDays)
}

func TestCalculateCascadeCompletedStageRejected(t *testing.T) {
	graph, a, _, _ := scheduledChain(t)
	a.Status = models.StatusCompleted

	report, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 1), date(2025, time.January, 6))
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Empty(t, report.Affected)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, a.ID, report.Conflicts[0].StageID)
	assert.Equal(t, models.SeverityCritical, report.Conflicts[0].Severity)
	assert.Equal(t, errors.ErrStageFinalized.Error(), report.Conflicts[0].Reason)
}

func TestCalculateCascadeCompletedDownstreamConflict(t *testing.T) {
	graph, a, b, c := scheduledChain(t)
	b.Status = models.StatusCompleted

	report, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 1), date(2025, time.January, 6))
	require.NoError(t, err)

	assert.False(t, report.Valid, "completed work cannot be rescheduled")
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, b.ID, report.Conflicts[0].StageID)
	assert.Equal(t, models.SeverityCritical, report.Conflicts[0].Severity)

	// The completed stage is never in affected; the movable one still is
	require.Len(t, report.Affected, 1)
	assert.Equal(t, c.ID, report.Affected[0].StageID)
}

func TestCalculateCascadeInvalidDateRange(t *testing.T) {
	graph, a, _, _ := scheduledChain(t)

	report, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 10), date(2025, time.January, 5))
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Empty(t, report.Affected)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, errors.ErrInvalidDateRange.Error(), report.Conflicts[0].Reason)
}

func TestCalculateCascadeUnknownStage(t *testing.T) {
	graph, _, _, _ := scheduledChain(t)

	report, err := engine.CalculateCascade(graph, uuid.New(), date(2025, time.January, 1), date(2025, time.January, 6))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStageNotFound)
	assert.Nil(t, report)
}

func TestCalculateCascadeMonotonic(t *testing.T) {
	// Pushing an end date later never moves any downstream start earlier
	for _, slip := range []int{1, 2, 5, 10} {
		graph, a, _, _ := scheduledChain(t)

		newEnd := date(2025, time.January, 4).AddDate(0, 0, slip)
		report, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 1), newEnd)
		require.NoError(t, err)
		require.True(t, report.Valid)

		for _, affected := range report.Affected {
			require.NotNil(t, affected.OriginalStart)
			assert.False(t, affected.NewStart.Before(*affected.OriginalStart),
				"slip of %d days moved %s earlier", slip, affected.Name)
			assert.Equal(t, slip, affected.AdjustmentDays)
		}
	}
}

func TestCalculateCascadePullEarlierBoundedBySlowerDependency(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)
	d := newStage(4, "Guidelines", 2, b.ID, c.ID)

	sched := engine.NewScheduler(0)
	result, err := sched.RecomputeAll([]*models.Stage{a, b, c, d}, date(2025, time.January, 1))
	require.NoError(t, err)

	graph, err := engine.NewGraph(result)
	require.NoError(t, err)

	// Moodboards finishes three days early. Guidelines depends on both
	// Moodboards and Logo, and Logo hasn't moved, so Guidelines stays put.
	scheduledB := findStage(t, result, "Moodboards")
	report, err := engine.CalculateCascade(graph, scheduledB.ID,
		date(2025, time.January, 2), date(2025, time.January, 4))
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Empty(t, report.Affected, "slower dependency still gates the successor")
}

func TestCalculateCascadePullEarlierPropagates(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)

	sched := engine.NewScheduler(0)
	result, err := sched.RecomputeAll([]*models.Stage{a, b}, date(2025, time.January, 1))
	require.NoError(t, err)

	graph, err := engine.NewGraph(result)
	require.NoError(t, err)

	scheduledA := findStage(t, result, "Discovery")
	report, err := engine.CalculateCascade(graph, scheduledA.ID,
		date(2025, time.January, 1), date(2025, time.January, 2))
	require.NoError(t, err)

	require.True(t, report.Valid)
	require.Len(t, report.Affected, 1)
	assert.Equal(t, date(2025, time.January, 3), report.Affected[0].NewStart)
	assert.Equal(t, -2, report.Affected[0].AdjustmentDays)
}

func TestCalculateCascadeDeterministic(t *testing.T) {
	graph, a, _, _ := scheduledChain(t)

	first, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 1), date(2025, time.January, 6))
	require.NoError(t, err)

	second, err := engine.CalculateCascade(graph, a.ID, date(2025, time.January, 1), date(2025, time.January, 6))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCalculateCascadeMultiLevel(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, b.ID)

	sched := engine.NewScheduler(0)
	result, err := sched.RecomputeAll([]*models.Stage{a, b, c}, date(2025, time.January, 1))
	require.NoError(t, err)

	graph, err := engine.NewGraph(result)
	require.NoError(t, err)

	scheduledA := findStage(t, result, "Discovery")
	report, err := engine.CalculateCascade(graph, scheduledA.ID,
		date(2025, time.January, 1), date(2025, time.January, 7))
	require.NoError(t, err)

	require.True(t, report.Valid)
	require.Len(t, report.Affected, 2, "shift reaches the second level")

	// Scheduled ends were Jan 4 (A), Jan 8 (B start Jan 5 + 2 = Jan 7), so
	// a Jan 7 end pushes B to Jan 8 and C to the day after B's new end.
	gotB := report.Affected[0]
	assert.Equal(t, date(2025, time.January, 8), gotB.NewStart)
	assert.Equal(t, date(2025, time.January, 10), gotB.NewEnd)

	gotC := report.Affected[1]
	assert.Equal(t, date(2025, time.January, 11), gotC.NewStart)
}
