package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
)

// stageSource is a fetch stub whose stage list can be swapped between ticks
type stageSource struct {
	mu     sync.Mutex
	stages []*models.Stage
	err    error
}

func (s *stageSource) fetch(ctx context.Context) ([]*models.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*models.Stage, len(s.stages))
	for i, stage := range s.stages {
		out[i] = stage.Clone()
	}
	return out, nil
}

func (s *stageSource) set(stages []*models.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = stages
}

func (s *stageSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// eventSink collects watcher events under a lock
type eventSink struct {
	mu     sync.Mutex
	events []engine.Event
}

func (s *eventSink) handle(e engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) all() []engine.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Event{}, s.events...)
}

func TestWatcherEmitsStageUnblocked(t *testing.T) {
	dep := newStage(1, "Discovery", 3)
	dep.Status = models.StatusInProgress
	blocked := newStage(2, "Moodboards", 2, dep.ID)

	source := &stageSource{stages: []*models.Stage{dep, blocked}}
	sink := &eventSink{}

	w := engine.NewWatcher(uuid.New(), 10*time.Millisecond, source.fetch, zerolog.Nop())
	sub := w.Subscribe(sink.handle)
	defer sub.Cancel()

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// Let the baseline tick land, then complete the dependency
	time.Sleep(30 * time.Millisecond)
	done := dep.Clone()
	done.Status = models.StatusCompleted
	source.set([]*models.Stage{done, blocked})

	require.Eventually(t, func() bool {
		return len(sink.all()) > 0
	}, time.Second, 5*time.Millisecond)

	events := sink.all()
	require.Len(t, events, 1, "exactly one transition event")
	assert.Equal(t, models.EventStageUnblocked, events[0].Type)
	assert.Equal(t, blocked.ID, events[0].Stage.ID)
	assert.Equal(t, models.StatusBlocked, events[0].PreviousStatus)
	assert.Equal(t, models.StatusNotStarted, events[0].NewStatus)
}

func TestWatcherEmitsStatusAutoUpdated(t *testing.T) {
	dep := newStage(1, "Discovery", 3)
	dep.Status = models.StatusCompleted
	ready := newStage(2, "Moodboards", 2, dep.ID)

	source := &stageSource{stages: []*models.Stage{dep, ready}}
	sink := &eventSink{}

	w := engine.NewWatcher(uuid.New(), 10*time.Millisecond, source.fetch, zerolog.Nop())
	sub := w.Subscribe(sink.handle)
	defer sub.Cancel()

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	// Dependency reopens: the ready stage becomes blocked again
	reopened := dep.Clone()
	reopened.Status = models.StatusInProgress
	source.set([]*models.Stage{reopened, ready})

	require.Eventually(t, func() bool {
		return len(sink.all()) > 0
	}, time.Second, 5*time.Millisecond)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventStatusAutoUpdated, events[0].Type)
	assert.Equal(t, models.StatusNotStarted, events[0].PreviousStatus)
	assert.Equal(t, models.StatusBlocked, events[0].NewStatus)
}

func TestWatcherNoEventsOnFailedFetch(t *testing.T) {
	dep := newStage(1, "Discovery", 3)
	dep.Status = models.StatusInProgress
	blocked := newStage(2, "Moodboards", 2, dep.ID)

	source := &stageSource{stages: []*models.Stage{dep, blocked}}
	sink := &eventSink{}

	w := engine.NewWatcher(uuid.New(), 10*time.Millisecond, source.fetch, zerolog.Nop())
	sub := w.Subscribe(sink.handle)
	defer sub.Cancel()

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	source.fail(errors.ErrServiceUnavailable)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.all(), "failed ticks must not emit")

	// Loop keeps ticking: recovery plus a real transition still emits
	done := dep.Clone()
	done.Status = models.StatusCompleted
	source.set([]*models.Stage{done, blocked})
	source.fail(nil)

	require.Eventually(t, func() bool {
		return len(sink.all()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWatcherStartTwiceFails(t *testing.T) {
	source := &stageSource{}
	w := engine.NewWatcher(uuid.New(), 10*time.Millisecond, source.fetch, zerolog.Nop())

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	err := w.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrWatcherAlreadyRunning)
}

func TestWatcherStopIdempotent(t *testing.T) {
	source := &stageSource{}
	w := engine.NewWatcher(uuid.New(), 10*time.Millisecond, source.fetch, zerolog.Nop())

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Running())

	w.Stop()
	assert.False(t, w.Running())
	w.Stop() // second stop is a no-op

	// Restart after stop works
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestWatcherIndependentSubscribers(t *testing.T) {
	dep := newStage(1, "Discovery", 3)
	dep.Status = models.StatusInProgress
	blocked := newStage(2, "Moodboards", 2, dep.ID)

	source := &stageSource{stages: []*models.Stage{dep, blocked}}
	first := &eventSink{}
	second := &eventSink{}

	w := engine.NewWatcher(uuid.New(), 10*time.Millisecond, source.fetch, zerolog.Nop())
	subFirst := w.Subscribe(first.handle)
	subSecond := w.Subscribe(second.handle)
	defer subSecond.Cancel()

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	subFirst.Cancel() // cancelling one must not affect the other

	done := dep.Clone()
	done.Status = models.StatusCompleted
	source.set([]*models.Stage{done, blocked})

	require.Eventually(t, func() bool {
		return len(second.all()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, first.all())
	assert.True(t, w.Running(), "unsubscribing never stops the loop")
}
