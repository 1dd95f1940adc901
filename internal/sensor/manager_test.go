package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/airvpn-bridge/internal/coordinator"
	"github.com/rickgao/airvpn-bridge/internal/model"
)

type fakeSink struct {
	name string
	fail error

	mu           sync.Mutex
	batches      [][]State
	availability []bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) PublishStates(ctx context.Context, states []State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, states)
	return s.fail
}

func (s *fakeSink) PublishAvailability(ctx context.Context, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability = append(s.availability, available)
	return s.fail
}

type switchFetcher struct {
	fail atomic.Bool
}

func (f *switchFetcher) Fetch(context.Context) (*model.Snapshot, error) {
	if f.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return testSnapshot(), nil
}

type countingRecorder struct {
	mu     sync.Mutex
	total  map[string]int
	errors map[string]int
}

func (r *countingRecorder) ObservePublish(sink string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total == nil {
		r.total = map[string]int{}
		r.errors = map[string]int{}
	}
	r.total[sink]++
	if err != nil {
		r.errors[sink]++
	}
}

func newCoordinator(f coordinator.Fetcher) *coordinator.Coordinator {
	return coordinator.New(coordinator.Config{Interval: time.Hour, Timeout: time.Second}, f, nil)
}

func TestManager_PublishesAfterEachSuccess(t *testing.T) {
	f := &switchFetcher{}
	c := newCoordinator(f)
	sink := &fakeSink{name: "fake"}

	m := NewManager(c, []Sink{sink}, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(context.Background())

	c.RefreshNow(context.Background())
	c.RefreshNow(context.Background())

	if len(sink.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(sink.batches))
	}
	if len(sink.batches[0]) != len(Project(testSnapshot())) {
		t.Errorf("batch size = %d, want %d", len(sink.batches[0]), len(Project(testSnapshot())))
	}
	// Availability is only republished on change.
	if len(sink.availability) != 1 || !sink.availability[0] {
		t.Errorf("availability = %v, want [true]", sink.availability)
	}

	st, ok := m.State("airvpn_account_alice_credits")
	if !ok || st.String() != "10" {
		t.Errorf("State(credits) = %v, %v, want 10", st.String(), ok)
	}
	if !m.Available() {
		t.Error("Available should be true")
	}
}

func TestManager_FailureMarksUnavailable(t *testing.T) {
	f := &switchFetcher{}
	c := newCoordinator(f)
	sink := &fakeSink{name: "fake"}

	m := NewManager(c, []Sink{sink}, nil)
	m.Start(context.Background())
	defer m.Stop(context.Background())

	c.RefreshNow(context.Background())
	f.fail.Store(true)
	c.RefreshNow(context.Background())
	c.RefreshNow(context.Background())

	if len(sink.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(sink.batches))
	}
	want := []bool{true, false}
	if len(sink.availability) != len(want) {
		t.Fatalf("availability = %v, want %v", sink.availability, want)
	}
	for i := range want {
		if sink.availability[i] != want[i] {
			t.Errorf("availability[%d] = %v, want %v", i, sink.availability[i], want[i])
		}
	}

	if m.Available() {
		t.Error("Available should be false after a failed refresh")
	}
	if len(m.States()) == 0 {
		t.Error("stale states should stay cached")
	}
}

func TestManager_StartWithExistingSnapshot(t *testing.T) {
	c := newCoordinator(&switchFetcher{})
	c.RefreshNow(context.Background())

	sink := &fakeSink{name: "fake"}
	m := NewManager(c, []Sink{sink}, nil)
	m.Start(context.Background())
	defer m.Stop(context.Background())

	if len(sink.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(sink.batches))
	}
	if len(sink.availability) != 1 || !sink.availability[0] {
		t.Errorf("availability = %v, want [true]", sink.availability)
	}
}

func TestManager_SinkErrorDoesNotStopOthers(t *testing.T) {
	c := newCoordinator(&switchFetcher{})
	bad := &fakeSink{name: "bad", fail: errors.New("broker down")}
	good := &fakeSink{name: "good"}
	rec := &countingRecorder{}

	m := NewManager(c, []Sink{bad, good}, nil, WithRecorder(rec))
	m.Start(context.Background())
	defer m.Stop(context.Background())

	c.RefreshNow(context.Background())

	if len(good.batches) != 1 {
		t.Errorf("good sink batches = %d, want 1", len(good.batches))
	}
	if rec.errors["bad"] != 2 || rec.errors["good"] != 0 {
		t.Errorf("errors = %v, want bad=2 good=0", rec.errors)
	}
	if rec.total["good"] != 2 {
		t.Errorf("good total = %d, want 2", rec.total["good"])
	}
}

func TestManager_StopUnsubscribes(t *testing.T) {
	c := newCoordinator(&switchFetcher{})
	sink := &fakeSink{name: "fake"}

	m := NewManager(c, []Sink{sink}, nil)
	m.Start(context.Background())
	m.Stop(context.Background())

	c.RefreshNow(context.Background())
	if len(sink.batches) != 0 {
		t.Errorf("batches after Stop = %d, want 0", len(sink.batches))
	}
}

func TestManager_StartTwice(t *testing.T) {
	m := NewManager(newCoordinator(&switchFetcher{}), nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestManager_IgnoresOlderSnapshot(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	m := NewManager(newCoordinator(&switchFetcher{}), []Sink{sink}, nil)

	older := testSnapshot()
	newer := testSnapshot()
	newer.FetchedAt = older.FetchedAt.Add(time.Minute)
	newer.User["credits"] = json.Number("11")

	m.onSnapshot(newer)
	m.onSnapshot(older)
	m.onSnapshot(newer)

	if len(sink.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sink.batches))
	}
	st, ok := m.State("airvpn_account_alice_credits")
	if !ok {
		t.Fatal("credits state missing")
	}
	if st.String() != "11" {
		t.Errorf("credits = %q, want 11 from the newer snapshot", st.String())
	}
}

func TestManager_IgnoresOlderStatus(t *testing.T) {
	sink := &fakeSink{name: "fake"}
	m := NewManager(newCoordinator(&switchFetcher{}), []Sink{sink}, nil)

	now := time.Now()
	m.onStatus(coordinator.Status{LastResult: coordinator.ResultSuccess, LastAttempt: now})
	m.onStatus(coordinator.Status{
		LastResult:  coordinator.ResultFailed,
		LastErr:     errors.New("upstream down"),
		LastAttempt: now.Add(-time.Minute),
	})

	if !m.Available() {
		t.Error("older failed status should not mark entities unavailable")
	}
	if len(sink.availability) != 1 || !sink.availability[0] {
		t.Errorf("availability = %v, want [true]", sink.availability)
	}
}
