package engine_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
)

// newStage is a test helper building a stage with a fixed project id.
func newStage(index int, name string, duration int, deps ...uuid.UUID) *models.Stage {
	s := models.NewStage(uuid.Nil, index, name)
	s.EstimatedDuration = duration
	s.Dependencies = append(s.Dependencies, deps...)
	return s
}

func TestNewGraphValidation(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)

	tests := []struct {
		name    string
		stages  func() []*models.Stage
		wantErr error
	}{
		{
			name:   "valid graph",
			stages: func() []*models.Stage { return []*models.Stage{a, b} },
		},
		{
			name: "unknown dependency",
			stages: func() []*models.Stage {
				orphan := newStage(3, "Logo", 4, uuid.New())
				return []*models.Stage{a, orphan}
			},
			wantErr: errors.ErrUnknownDependency,
		},
		{
			name: "self dependency",
			stages: func() []*models.Stage {
				s := newStage(1, "Selfie", 2)
				s.Dependencies = []uuid.UUID{s.ID}
				return []*models.Stage{s}
			},
			wantErr: errors.ErrSelfDependency,
		},
		{
			name: "negative duration",
			stages: func() []*models.Stage {
				s := newStage(1, "Negative", -1)
				return []*models.Stage{s}
			},
			wantErr: errors.ErrNegativeDuration,
		},
		{
			name: "duplicate stage id",
			stages: func() []*models.Stage {
				dup := a.Clone()
				return []*models.Stage{a, dup}
			},
			wantErr: errors.ErrAlreadyExists,
		},
		{
			name: "two stage cycle",
			stages: func() []*models.Stage {
				x := newStage(1, "X", 2)
				y := newStage(2, "Y", 2, x.ID)
				x.Dependencies = []uuid.UUID{y.ID}
				return []*models.Stage{x, y}
			},
			wantErr: errors.ErrCyclicDependency,
		},
		{
			name: "three stage cycle",
			stages: func() []*models.Stage {
				x := newStage(1, "X", 2)
				y := newStage(2, "Y", 2, x.ID)
				z := newStage(3, "Z", 2, y.ID)
				x.Dependencies = []uuid.UUID{z.ID}
				return []*models.Stage{x, y, z}
			},
			wantErr: errors.ErrCyclicDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := engine.NewGraph(tt.stages())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, g)
		})
	}
}

func TestGraphNeighbors(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)
	d := newStage(4, "Guidelines", 2, b.ID, c.ID)

	g, err := engine.NewGraph([]*models.Stage{a, b, c, d})
	require.NoError(t, err)

	deps := g.Dependencies(d.ID)
	require.Len(t, deps, 2)
	assert.Equal(t, b.ID, deps[0].ID)
	assert.Equal(t, c.ID, deps[1].ID)

	dependents := g.Dependents(a.ID)
	require.Len(t, dependents, 2)
	assert.Equal(t, b.ID, dependents[0].ID)
	assert.Equal(t, c.ID, dependents[1].ID)

	assert.Empty(t, g.Dependencies(a.ID))
	assert.Empty(t, g.Dependents(d.ID))
}

func TestGraphDescendants(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, b.ID)
	solo := newStage(4, "Print", 2)

	g, err := engine.NewGraph([]*models.Stage{a, b, c, solo})
	require.NoError(t, err)

	downstream := g.Descendants(a.ID)
	assert.Len(t, downstream, 2)
	assert.True(t, downstream[b.ID])
	assert.True(t, downstream[c.ID])
	assert.False(t, downstream[a.ID])
	assert.False(t, downstream[solo.ID])
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)
	d := newStage(4, "Guidelines", 2, b.ID, c.ID)

	stages := []*models.Stage{d, c, b, a} // shuffled input

	g, err := engine.NewGraph(stages)
	require.NoError(t, err)

	first, err := g.TopologicalOrder()
	require.NoError(t, err)

	wantNames := []string{"Discovery", "Moodboards", "Logo", "Guidelines"}
	gotNames := make([]string, len(first))
	for i, s := range first {
		gotNames[i] = s.Name
	}
	assert.Equal(t, wantNames, gotNames)

	// Repeated calls yield the identical order
	second, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTopologicalOrderTieBreakByNumberIndex(t *testing.T) {
	// Three independent roots must come out in number index order
	third := newStage(3, "Third", 1)
	first := newStage(1, "First", 1)
	second := newStage(2, "Second", 1)

	g, err := engine.NewGraph([]*models.Stage{third, first, second})
	require.NoError(t, err)

	ordered, err := g.TopologicalOrder()
	require.NoError(t, err)

	require.Len(t, ordered, 3)
	assert.Equal(t, "First", ordered[0].Name)
	assert.Equal(t, "Second", ordered[1].Name)
	assert.Equal(t, "Third", ordered[2].Name)
}
