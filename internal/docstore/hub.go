package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"silent-auction/utils"
)

// Runner evaluates a query against the backing store
type Runner func(ctx context.Context, q Query) ([]Document, error)

// Relay forwards change events to other processes sharing the store
type Relay interface {
	Publish(ctx context.Context, collection string) error
}

// Hub tracks live subscriptions and wakes them when their collection changes
type Hub struct {
	mu    sync.Mutex
	subs  map[*Subscription]struct{}
	relay Relay
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// SetRelay makes Changed also publish to other instances
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

// Changed is called by stores after a successful commit
func (h *Hub) Changed(ctx context.Context, collections ...string) {
	h.Notify(collections...)

	h.mu.Lock()
	relay := h.relay
	h.mu.Unlock()
	if relay == nil {
		return
	}
	for _, c := range uniq(collections) {
		if err := relay.Publish(ctx, c); err != nil {
			utils.Warn("docstore: failed to relay change", map[string]any{"collection": c, "error": err.Error()})
		}
	}
}

// Notify wakes local subscriptions on the given collections. Wakeups coalesce:
// a subscription that is busy re-runs its query once for any number of changes.
func (h *Hub) Notify(collections ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		for _, c := range collections {
			if s.query.Collection == c {
				select {
				case s.wake <- struct{}{}:
				default:
				}
				break
			}
		}
	}
}

// Subscribe starts a subscription that delivers the full result of q now and
// after every change to q.Collection, until cancelled or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, q Query, run Runner) (*Subscription, error) {
	if q.Collection == "" {
		return nil, errors.New("docstore: subscribe requires a collection")
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		hub:     h,
		query:   q,
		run:     run,
		ctx:     subCtx,
		cancel:  cancel,
		out:     make(chan Snapshot),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go s.loop()
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscription is a cancellable stream of query snapshots. Once Cancel
// returns, the Snapshots channel is closed and nothing more is delivered.
type Subscription struct {
	hub     *Hub
	query   Query
	run     Runner
	ctx     context.Context
	cancel  context.CancelFunc
	out     chan Snapshot
	wake    chan struct{}
	stopped chan struct{}
}

func (s *Subscription) Snapshots() <-chan Snapshot { return s.out }

// Done is closed when the subscription starts shutting down
func (s *Subscription) Done() <-chan struct{} { return s.ctx.Done() }

// Cancel stops the subscription and waits for delivery to end
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.stopped
}

func (s *Subscription) loop() {
	defer close(s.stopped)
	defer close(s.out)
	defer s.hub.remove(s)

	for {
		docs, err := s.run(s.ctx, s.query)
		if s.ctx.Err() != nil {
			return
		}

		if err != nil {
			utils.Warn("docstore: subscription refresh failed", map[string]any{"collection": s.query.Collection, "error": err.Error()})
		} else {
			snap := Snapshot{Query: s.query, Docs: docs, ReadTime: time.Now().UTC()}
			select {
			case s.out <- snap:
			case <-s.ctx.Done():
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return
		}
	}
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
