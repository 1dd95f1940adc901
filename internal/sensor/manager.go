package sensor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/airvpn-bridge/internal/coordinator"
	"github.com/rickgao/airvpn-bridge/internal/model"
)

// Sink receives projected states.
type Sink interface {
	Name() string
	PublishStates(ctx context.Context, states []State) error
	PublishAvailability(ctx context.Context, available bool) error
}

// SnapshotSource is the coordinator surface the manager needs.
// *coordinator.Coordinator satisfies it.
type SnapshotSource interface {
	Current() *model.Snapshot
	Status() coordinator.Status
	Subscribe(fn func(*model.Snapshot)) *coordinator.Subscription
	SubscribeStatus(fn func(coordinator.Status)) *coordinator.Subscription
}

// Recorder receives sink publish metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObservePublish(sink string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObservePublish(string, error) {}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPublishTimeout bounds each sink call.
func WithPublishTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithRecorder sets the publish metrics recorder.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// Manager keeps the latest projected states and publishes them to sinks.
type Manager struct {
	src      SnapshotSource
	sinks    []Sink
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration

	// applyMu orders snapshot application and publishing; statusMu does the
	// same for availability.
	applyMu  sync.Mutex
	applied  *model.Snapshot
	statusMu sync.Mutex
	attempt  time.Time

	mu        sync.RWMutex
	states    []State
	byID      map[string]int
	available bool
	published bool // availability published at least once

	snapSub   *coordinator.Subscription
	statusSub *coordinator.Subscription
}

// NewManager creates a new Manager.
func NewManager(src SnapshotSource, sinks []Sink, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		src:      src,
		sinks:    sinks,
		logger:   logger,
		recorder: nopRecorder{},
		timeout:  10 * time.Second,
		byID:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the source. If the source already holds a snapshot it
// is projected and published immediately.
//
// A refresh may complete between subscribing and reading Current, so the
// callback and Start can deliver snapshots in either order. Snapshots are
// applied at most once each, and one fetched before the last applied snapshot
// is ignored; statuses older than the last applied attempt are ignored too.
func (m *Manager) Start(ctx context.Context) error {
	if m.snapSub != nil {
		return errors.New("manager already started")
	}

	m.snapSub = m.src.Subscribe(m.onSnapshot)
	m.statusSub = m.src.SubscribeStatus(m.onStatus)

	if snap := m.src.Current(); snap != nil {
		m.onSnapshot(snap)
	}
	if st := m.src.Status(); st.LastResult != coordinator.ResultNone {
		m.onStatus(st)
	}

	m.logger.Info("sensor manager started", "sinks", len(m.sinks))
	return nil
}

// Stop unsubscribes from the source.
func (m *Manager) Stop(ctx context.Context) error {
	if m.snapSub != nil {
		m.snapSub.Unsubscribe()
	}
	if m.statusSub != nil {
		m.statusSub.Unsubscribe()
	}
	m.logger.Info("sensor manager stopped")
	return nil
}

// States returns a copy of the latest projected states.
func (m *Manager) States() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, len(m.states))
	copy(out, m.states)
	return out
}

// State returns the latest state for one entity.
func (m *Manager) State(uniqueID string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[uniqueID]
	if !ok {
		return State{}, false
	}
	return m.states[i], true
}

// Available reports whether the latest refresh succeeded.
func (m *Manager) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

func (m *Manager) onSnapshot(snap *model.Snapshot) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	if prev := m.applied; prev != nil && (snap == prev || snap.FetchedAt.Before(prev.FetchedAt)) {
		m.logger.Debug("skipping stale snapshot", "fetched_at", snap.FetchedAt, "applied", prev.FetchedAt)
		return
	}
	m.applied = snap

	states := Project(snap)
	byID := make(map[string]int, len(states))
	for i, st := range states {
		byID[st.Entity.UniqueID] = i
	}

	m.mu.Lock()
	m.states = states
	m.byID = byID
	m.mu.Unlock()

	for _, sink := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := sink.PublishStates(ctx, states)
		cancel()

		m.recorder.ObservePublish(sink.Name(), err)
		if err != nil {
			m.logger.Warn("publish states failed", "sink", sink.Name(), "error", err)
			continue
		}
		m.logger.Debug("states published", "sink", sink.Name(), "states", len(states))
	}
}

// onStatus publishes availability when it changes. A failed refresh marks
// every entity unavailable while the last states remain cached.
func (m *Manager) onStatus(st coordinator.Status) {
	available := st.LastResult == coordinator.ResultSuccess

	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if st.LastAttempt.Before(m.attempt) {
		return
	}
	m.attempt = st.LastAttempt

	m.mu.Lock()
	changed := !m.published || m.available != available
	m.available = available
	m.published = true
	m.mu.Unlock()

	if !changed {
		return
	}

	for _, sink := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := sink.PublishAvailability(ctx, available)
		cancel()

		m.recorder.ObservePublish(sink.Name(), err)
		if err != nil {
			m.logger.Warn("publish availability failed", "sink", sink.Name(), "error", err)
		}
	}

	if available {
		m.logger.Info("entities available")
	} else {
		m.logger.Warn("entities unavailable, serving stale data", "error", st.LastErr)
	}
}
