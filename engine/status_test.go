package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		persisted models.StageStatus
		deps      []models.StageStatus
		want      models.StageStatus
	}{
		{
			name:      "completed is authoritative",
			persisted: models.StatusCompleted,
			deps:      []models.StageStatus{models.StatusNotStarted},
			want:      models.StatusCompleted,
		},
		{
			name:      "in progress is authoritative",
			persisted: models.StatusInProgress,
			deps:      []models.StageStatus{models.StatusBlocked},
			want:      models.StatusInProgress,
		},
		{
			name:      "no dependencies is ready",
			persisted: models.StatusNotStarted,
			deps:      nil,
			want:      models.StatusNotStarted,
		},
		{
			name:      "all dependencies completed is ready",
			persisted: models.StatusBlocked,
			deps:      []models.StageStatus{models.StatusCompleted, models.StatusCompleted},
			want:      models.StatusNotStarted,
		},
		{
			name:      "one incomplete dependency blocks",
			persisted: models.StatusNotStarted,
			deps:      []models.StageStatus{models.StatusCompleted, models.StatusInProgress},
			want:      models.StatusBlocked,
		},
		{
			name:      "blocked dependency blocks",
			persisted: models.StatusNotStarted,
			deps:      []models.StageStatus{models.StatusBlocked},
			want:      models.StatusBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := newStage(1, "Stage", 3)
			stage.Status = tt.persisted

			got := engine.DeriveStatus(stage, tt.deps)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveStatusIsPure(t *testing.T) {
	stage := newStage(4, "Guidelines", 2)
	stage.Status = models.StatusNotStarted
	deps := []models.StageStatus{models.StatusCompleted, models.StatusInProgress}

	before := *stage
	first := engine.DeriveStatus(stage, deps)
	second := engine.DeriveStatus(stage, deps)

	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusBlocked, first)
	assert.Equal(t, before, *stage, "input stage must not be mutated")
}

func TestDeriveAll(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	a.Status = models.StatusCompleted
	b := newStage(2, "Moodboards", 2, a.ID)
	b.Status = models.StatusBlocked // stale persisted state
	c := newStage(3, "Logo", 5, b.ID)

	g, err := engine.NewGraph([]*models.Stage{a, b, c})
	require.NoError(t, err)

	derived := engine.DeriveAll(g)

	assert.Equal(t, models.StatusCompleted, derived[a.ID])
	assert.Equal(t, models.StatusNotStarted, derived[b.ID], "dependency completed, stage is ready")
	assert.Equal(t, models.StatusBlocked, derived[c.ID], "direct dependency not completed")
}
