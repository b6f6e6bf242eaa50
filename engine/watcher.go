package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
)

// DefaultWatchInterval is the tick interval used when none is configured
const DefaultWatchInterval = 3 * time.Second

// Event is a discrete status transition detected by the watcher
type Event struct {
	Type           models.EventType   `json:"type"`
	ProjectID      uuid.UUID          `json:"project_id"`
	Stage          *models.Stage      `json:"stage"`
	PreviousStatus models.StageStatus `json:"previous_status"`
	NewStatus      models.StageStatus `json:"new_status"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// FetchFunc supplies the current stage list for a project. The watcher owns
// no storage; the caller decides where stages come from.
type FetchFunc func(ctx context.Context) ([]*models.Stage, error)

// Subscription identifies one registered event handler
type Subscription struct {
	id      int
	watcher *Watcher
}

// Cancel removes the subscription. Other subscribers and the watch loop
// itself are unaffected. Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.watcher.unsubscribe(s.id)
}

// Watcher periodically re-derives stage statuses for one project and emits
// transition events. One instance per open project; construct and tear it
// down with the project's lifecycle rather than sharing a singleton.
type Watcher struct {
	projectID uuid.UUID
	interval  time.Duration
	fetch     FetchFunc
	log       zerolog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	nextSub  int
	handlers map[int]func(Event)
	snapshot map[uuid.UUID]models.StageStatus
}

// NewWatcher creates a stopped watcher for the given project. An interval
// <= 0 falls back to DefaultWatchInterval.
func NewWatcher(projectID uuid.UUID, interval time.Duration, fetch FetchFunc, logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		projectID: projectID,
		interval:  interval,
		fetch:     fetch,
		log:       logger.With().Str("project_id", projectID.String()).Logger(),
		handlers:  make(map[int]func(Event)),
	}
}

// Subscribe registers a handler that receives every event. Handlers run
// sequentially on the watch goroutine; keep them fast.
func (w *Watcher) Subscribe(handler func(Event)) *Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSub++
	w.handlers[w.nextSub] = handler
	return &Subscription{id: w.nextSub, watcher: w}
}

func (w *Watcher) unsubscribe(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.handlers, id)
}

// Running reports whether the watch loop is active
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start begins the watch loop. The first successful fetch only primes the
// status snapshot; events fire from the second tick on, one per detected
// transition. Returns ErrWatcherAlreadyRunning if already started.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.ErrWatcherAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.snapshot = nil

	go w.loop(ctx)

	w.log.Info().Dur("interval", w.interval).Msg("watcher started")
	return nil
}

// Stop halts the watch loop and waits for any in-flight tick to finish. No
// events fire after Stop returns. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.log.Info().Msg("watcher stopped")
}

// loop runs ticks sequentially; a tick never overlaps the previous one
// because both share this goroutine.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Prime the snapshot immediately instead of waiting a full interval
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	stages, err := w.fetch(ctx)
	if err != nil {
		// Transient fetch failures must not kill the loop, and a failed
		// tick must not emit events against incomplete data.
		w.log.Warn().Err(err).Msg("stage fetch failed; skipping tick")
		return
	}

	graph, err := NewGraph(stages)
	if err != nil {
		w.log.Error().Err(err).Msg("stage data no longer forms a valid graph; skipping tick")
		return
	}

	derived := DeriveAll(graph)

	w.mu.Lock()
	previous := w.snapshot
	w.snapshot = derived
	handlers := make([]func(Event), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	if previous == nil {
		return // baseline tick
	}
	if ctx.Err() != nil {
		return // stopped while fetching; suppress events
	}

	now := time.Now()
	for _, stage := range graph.Stages() {
		oldStatus, seen := previous[stage.ID]
		newStatus := derived[stage.ID]
		if !seen || oldStatus == newStatus {
			continue
		}
		// Transitions into or out of manual states are user-driven; the
		// watcher only reports derivation-driven blocked/ready flips.
		if oldStatus.IsManual() || newStatus.IsManual() {
			continue
		}

		eventType := models.EventStatusAutoUpdated
		if oldStatus == models.StatusBlocked && newStatus == models.StatusNotStarted {
			eventType = models.EventStageUnblocked
		}

		event := Event{
			Type:           eventType,
			ProjectID:      w.projectID,
			Stage:          stage.Clone(),
			PreviousStatus: oldStatus,
			NewStatus:      newStatus,
			OccurredAt:     now,
		}

		w.log.Debug().
			Str("stage_id", stage.ID.String()).
			Str("event", string(eventType)).
			Str("from", string(oldStatus)).
			Str("to", string(newStatus)).
			Msg("stage transition")

		for _, handler := range handlers {
			handler(event)
		}
	}
}
