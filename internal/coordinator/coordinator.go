package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/airvpn-bridge/internal/fetcher"
	"github.com/rickgao/airvpn-bridge/internal/model"
)

// ErrStopped is returned by RefreshNow once Stop has been called.
var ErrStopped = errors.New("coordinator stopped")

// refreshKey is the single singleflight key; every refresh coalesces on it.
const refreshKey = "refresh"

// Fetcher produces one snapshot per call. *fetcher.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) (*model.Snapshot, error)
}

// Recorder receives refresh metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveRefresh(result string, d time.Duration)
	SetLastSuccess(t time.Time)
	SetObservers(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRefresh(string, time.Duration) {}
func (nopRecorder) SetLastSuccess(time.Time)             {}
func (nopRecorder) SetObservers(int)                     {}

// Config holds coordinator configuration.
type Config struct {
	Name               string        // Used in logs (default: "airvpn")
	Interval           time.Duration // Refresh period (default: 5m)
	Timeout            time.Duration // Per-cycle fetch timeout (default: 60s)
	RequireInitialData bool          // Fail Start when the first refresh fails
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:     "airvpn",
		Interval: 5 * time.Minute,
		Timeout:  60 * time.Second,
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Coordinator owns the current snapshot and its refresh schedule.
type Coordinator struct {
	cfg      Config
	fetcher  Fetcher
	logger   *slog.Logger
	recorder Recorder

	group singleflight.Group

	mu        sync.RWMutex
	snapshot  *model.Snapshot
	status    Status
	cycleDone chan struct{} // non-nil while a cycle (fetch + notify) runs
	ready     bool
	started   bool
	stopped   bool

	snapshotSubs subscriptions
	statusSubs   subscriptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Coordinator.
func New(cfg Config, f Fetcher, logger *slog.Logger, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		cfg:      cfg,
		fetcher:  f,
		logger:   logger.With("coordinator", cfg.Name),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start performs the first refresh synchronously, then begins the refresh loop.
// A failed first refresh is recorded in Status and only returned when
// RequireInitialData is set.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.RefreshNow(c.ctx); err != nil {
		if ctx.Err() != nil {
			c.cancel()
			return ctx.Err()
		}
		if c.cfg.RequireInitialData {
			c.cancel()
			c.mu.Lock()
			c.stopped = true
			c.mu.Unlock()
			return fmt.Errorf("initial refresh: %w", err)
		}
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	c.logger.Info("coordinator started",
		"interval", c.cfg.Interval,
		"timeout", c.cfg.Timeout,
		"initial_result", c.Status().LastResult,
	)

	return nil
}

// Stop cancels the refresh loop. A cycle already in flight is allowed to
// finish; no new cycle starts.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	inflight := c.cycleDone
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		if inflight != nil {
			<-inflight
		}
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("coordinator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the first refresh has completed.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Current returns the latest successful snapshot, or nil if none yet.
// The snapshot is shared and must not be modified.
func (c *Coordinator) Current() *model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Status returns a copy of the refresh status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Subscribe registers fn to be called once after every successful cycle.
// fn runs on the refresh goroutine; a blocking fn stalls future refreshes.
func (c *Coordinator) Subscribe(fn func(*model.Snapshot)) *Subscription {
	sub := newSubscription(c)
	sub.onSnapshot = fn
	n := c.snapshotSubs.add(sub)
	c.recorder.SetObservers(n)
	return sub
}

// SubscribeStatus registers fn to be called once after every cycle,
// successful or not.
func (c *Coordinator) SubscribeStatus(fn func(Status)) *Subscription {
	sub := newSubscription(c)
	sub.onStatus = fn
	c.statusSubs.add(sub)
	return sub
}

func (c *Coordinator) removeSubscription(sub *Subscription) {
	if sub.onSnapshot != nil {
		n := c.snapshotSubs.remove(sub)
		c.recorder.SetObservers(n)
		return
	}
	c.statusSubs.remove(sub)
}

// RefreshNow runs a refresh cycle, or joins the one already in flight, and
// returns its error. Cancelling ctx stops the wait, not the shared fetch.
func (c *Coordinator) RefreshNow(ctx context.Context) error {
	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()
	if stopped {
		return ErrStopped
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return nil, c.refresh()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main refresh loop.
func (c *Coordinator) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			// Cycle errors are logged and recorded by refresh.
			_ = c.RefreshNow(c.ctx)
		}
	}
}

// refresh runs one fetch cycle and notifies subscribers. singleflight
// guarantees at most one refresh runs at a time.
func (c *Coordinator) refresh() error {
	done := make(chan struct{})

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.status.State = StateRefreshing
	c.cycleDone = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cycleDone = nil
		c.mu.Unlock()
		close(done)
	}()

	// The fetch is not tied to Stop so an in-flight cycle can finish.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := c.fetcher.Fetch(ctx)
	duration := time.Since(start)

	c.mu.Lock()
	prev := c.status
	c.status.State = StateIdle
	c.status.LastAttempt = start
	if err != nil {
		c.status.LastResult = ResultFailed
		c.status.LastErr = err
		c.status.ConsecutiveFailures++
	} else {
		if snap.FetchedAt.IsZero() {
			snap.FetchedAt = time.Now()
		}
		c.snapshot = snap
		c.status.LastResult = ResultSuccess
		c.status.LastErr = nil
		c.status.LastSuccess = snap.FetchedAt
		c.status.ConsecutiveFailures = 0
	}
	status := c.status
	c.mu.Unlock()

	c.recorder.ObserveRefresh(status.LastResult.String(), duration)
	c.logCycle(prev, status, snap, duration)

	if err == nil {
		c.recorder.SetLastSuccess(status.LastSuccess)
		c.notifySnapshot(snap)
	}
	c.notifyStatus(status)

	return err
}

// logCycle logs the first failure of a streak loudly and repeats quietly.
func (c *Coordinator) logCycle(prev, cur Status, snap *model.Snapshot, d time.Duration) {
	if cur.Failed() {
		attrs := []any{
			"error", cur.LastErr,
			"failures", cur.ConsecutiveFailures,
			"duration", d,
		}
		if kind, ok := fetcher.KindOf(cur.LastErr); ok {
			attrs = append(attrs, "kind", kind.String())
		}
		if prev.Failed() {
			c.logger.Debug("refresh still failing", attrs...)
			return
		}
		c.logger.Error("refresh failed, keeping last snapshot", attrs...)
		return
	}

	if prev.Failed() {
		c.logger.Info("refresh recovered",
			"failures", prev.ConsecutiveFailures,
			"duration", d,
		)
	}

	c.logger.Info("refresh complete",
		"devices", len(snap.Devices),
		"sessions", len(snap.Sessions),
		"duration", d,
	)
}

func (c *Coordinator) notifySnapshot(snap *model.Snapshot) {
	for _, sub := range c.snapshotSubs.copy() {
		if sub.begin() {
			sub.onSnapshot(snap)
		}
	}
}

func (c *Coordinator) notifyStatus(status Status) {
	for _, sub := range c.statusSubs.copy() {
		if sub.begin() {
			sub.onStatus(status)
		}
	}
}
