package coordinator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/airvpn-bridge/internal/model"
)

// Subscription is a handle returned by Subscribe and SubscribeStatus.
type Subscription struct {
	id string
	c  *Coordinator

	onSnapshot func(*model.Snapshot)
	onStatus   func(Status)

	mu     sync.Mutex
	active bool
}

// ID returns a unique identifier for the subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe removes the subscription. It is idempotent and may be called
// from inside the subscription's own callback.
//
// An invocation begins when the notifier commits to it under the
// subscription's lock. No invocation is committed after Unsubscribe returns.
// When Unsubscribe is called from another goroutine, a callback committed
// just before it may still be running, or about to run, on the refresh
// goroutine; callers that need to wait for it must synchronize with the
// callback themselves.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	if wasActive {
		s.c.removeSubscription(s)
	}
}

// begin commits one invocation. It reports false once Unsubscribe has run.
func (s *Subscription) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// subscriptions is an insertion-ordered set of subscriptions.
type subscriptions struct {
	mu   sync.Mutex
	list []*Subscription
}

func (s *subscriptions) add(sub *Subscription) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, sub)
	return len(s.list)
}

func (s *subscriptions) remove(sub *Subscription) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.list {
		if existing == sub {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			break
		}
	}
	return len(s.list)
}

// copy returns the current list so callbacks run without the lock held.
func (s *subscriptions) copy() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Subscription, len(s.list))
	copy(out, s.list)
	return out
}

func newSubscription(c *Coordinator) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		c:      c,
		active: true,
	}
}
