package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
)

func TestCriticalPathBasic(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)

	path, err := engine.CriticalPath([]*models.Stage{a, b, c})
	require.NoError(t, err)

	require.Len(t, path, 2)
	assert.Equal(t, "Discovery", path[0].Name)
	assert.Equal(t, "Logo", path[1].Name)
}

func TestCriticalPathIsConnectedChain(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)
	d := newStage(4, "Guidelines", 2, b.ID, c.ID)
	e := newStage(5, "Print", 1)

	path, err := engine.CriticalPath([]*models.Stage{a, b, c, d, e})
	require.NoError(t, err)

	require.NotEmpty(t, path)
	// Each stage after the first depends directly on its predecessor
	for i := 1; i < len(path); i++ {
		assert.True(t, path[i].DependsOn(path[i-1].ID),
			"%s must depend on %s", path[i].Name, path[i-1].Name)
	}

	// Duration along the path equals the maximum earliest finish: 3+5+2
	total := 0
	for _, stage := range path {
		total += stage.Duration()
	}
	assert.Equal(t, 10, total)
}

func TestCriticalPathSingleStage(t *testing.T) {
	a := newStage(1, "Discovery", 3)

	path, err := engine.CriticalPath([]*models.Stage{a})
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, a.ID, path[0].ID)
}

func TestCriticalPathEmpty(t *testing.T) {
	path, err := engine.CriticalPath(nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCriticalPathCycleFails(t *testing.T) {
	x := newStage(1, "X", 2)
	y := newStage(2, "Y", 2, x.ID)
	x.Dependencies = append(x.Dependencies, y.ID)

	path, err := engine.CriticalPath([]*models.Stage{x, y})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCyclicDependency)
	assert.Nil(t, path)
}

func TestProjectFinish(t *testing.T) {
	a := newStage(1, "Discovery", 3)
	b := newStage(2, "Moodboards", 2, a.ID)
	c := newStage(3, "Logo", 5, a.ID)

	finish, err := engine.ProjectFinish([]*models.Stage{a, b, c}, date(2025, time.January, 1))
	require.NoError(t, err)

	// Matches the scheduler: Logo ends Jan 10
	assert.Equal(t, date(2025, time.January, 10), finish)
}
