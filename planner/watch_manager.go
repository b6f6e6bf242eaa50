package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	apperrors "github.com/atelierhq/cadence/common/errors"
	"github.com/atelierhq/cadence/common/models"
	"github.com/atelierhq/cadence/engine"
)

// WatchManager owns one watcher per watched project. Watchers poll the
// database for status transitions and publish them to Redis so other
// services (and websocket bridges) can react without polling themselves.
type WatchManager struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	watchers map[uuid.UUID]*engine.Watcher
}

// NewWatchManager creates a watch manager
func NewWatchManager(db *pgxpool.Pool, redisClient *redis.Client, interval time.Duration, logger zerolog.Logger) *WatchManager {
	return &WatchManager{
		db:       db,
		redis:    redisClient,
		interval: interval,
		logger:   logger,
		watchers: make(map[uuid.UUID]*engine.Watcher),
	}
}

// Watch starts watching a project. Returns ErrWatcherAlreadyRunning if the
// project is already watched. The watcher's lifetime is tied to the manager,
// not the request that started it.
func (m *WatchManager) Watch(projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.watchers[projectID]; ok && existing.Running() {
		return apperrors.ErrWatcherAlreadyRunning
	}

	fetch := func(ctx context.Context) ([]*models.Stage, error) {
		return loadProjectStages(ctx, m.db, projectID)
	}

	watcher := engine.NewWatcher(projectID, m.interval, fetch, m.logger)
	watcher.Subscribe(m.publish)

	if err := watcher.Start(context.Background()); err != nil {
		return err
	}
	m.watchers[projectID] = watcher
	return nil
}

// Unwatch stops watching a project. Stopping an unwatched project is a no-op.
func (m *WatchManager) Unwatch(projectID uuid.UUID) {
	m.mu.Lock()
	watcher, ok := m.watchers[projectID]
	if ok {
		delete(m.watchers, projectID)
	}
	m.mu.Unlock()

	if ok {
		watcher.Stop()
	}
}

// Watching reports whether a project is currently watched.
func (m *WatchManager) Watching(projectID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	watcher, ok := m.watchers[projectID]
	return ok && watcher.Running()
}

// Shutdown stops all watchers and waits for their loops to exit.
func (m *WatchManager) Shutdown() {
	m.mu.Lock()
	watchers := make([]*engine.Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.watchers = make(map[uuid.UUID]*engine.Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}

func (m *WatchManager) publish(event engine.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to encode watch event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := eventChannel(event.ProjectID)
	if err := m.redis.Publish(ctx, channel, payload).Err(); err != nil {
		m.logger.Error().Err(err).Str("channel", channel).Msg("failed to publish watch event")
		return
	}

	m.logger.Debug().
		Str("channel", channel).
		Str("event_type", string(event.Type)).
		Str("stage_id", event.Stage.ID.String()).
		Msg("watch event published")
}

func eventChannel(projectID uuid.UUID) string {
	return fmt.Sprintf("cadence:events:%s", projectID)
}
