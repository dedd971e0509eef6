// Package summarybus fans per-frame summaries out to observers (stats
// display, logging sinks) without ever blocking the probe that publishes
// them.
package summarybus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/aggregator"
)

var (
	ErrBusClosed          = errors.New("summarybus: bus is closed")
	ErrSubscriberExists   = errors.New("summarybus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("summarybus: subscriber not found")
	ErrNilChannel         = errors.New("summarybus: nil channel provided")
)

// DropPolicy defines what happens when a subscriber cannot keep up.
type DropPolicy int

const (
	// DropNew discards the summary being published when the channel is full.
	DropNew DropPolicy = iota
	// DropOld keeps only the latest summary.
	DropOld
)

// SubscriberStats tracks delivery for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats is a snapshot of the whole bus.
type Stats struct {
	Published   uint64
	Subscribers map[string]SubscriberStats
}

// DropRate returns the fraction (0.0 to 1.0) of deliveries that were dropped.
func (s Stats) DropRate() float64 {
	var sent, dropped uint64
	for _, sub := range s.Subscribers {
		sent += sub.Sent
		dropped += sub.Dropped
	}
	if sent+dropped == 0 {
		return 0
	}
	return float64(dropped) / float64(sent+dropped)
}

type subscriber struct {
	policy  DropPolicy
	sent    atomic.Uint64
	dropped atomic.Uint64

	ch     chan<- aggregator.FrameSummary // DropNew
	latest *Latest                        // DropOld
}

// Bus distributes frame summaries. It implements aggregator.Publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   atomic.Uint64
	closed      bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch with the DropNew policy.
func (b *Bus) Subscribe(id string, ch chan<- aggregator.FrameSummary) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.canAdd(id); err != nil {
		return err
	}
	b.subscribers[id] = &subscriber{policy: DropNew, ch: ch}
	return nil
}

// SubscribeLatest registers a DropOld subscriber and returns the holder of
// the most recent summary.
func (b *Bus) SubscribeLatest(id string) (*Latest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.canAdd(id); err != nil {
		return nil, err
	}
	l := &Latest{}
	b.subscribers[id] = &subscriber{policy: DropOld, latest: l}
	return l, nil
}

func (b *Bus) canAdd(id string) error {
	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	return nil
}

// Publish hands s to every subscriber. It never blocks.
func (b *Bus) Publish(s aggregator.FrameSummary) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subscribers {
		switch sub.policy {
		case DropNew:
			select {
			case sub.ch <- s:
				sub.sent.Add(1)
			default:
				sub.dropped.Add(1)
			}
		case DropOld:
			if sub.latest.set(s) {
				sub.dropped.Add(1)
			}
			sub.sent.Add(1)
		}
	}
}

// Unsubscribe removes a subscriber. The channel of a DropNew subscriber is
// not closed; it belongs to the caller.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns a snapshot of delivery counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, sub := range b.subscribers {
		st.Subscribers[id] = SubscriberStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}
	}
	return st
}

// Close stops delivery. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subscribers = map[string]*subscriber{}
}

// Latest holds the most recent summary of a DropOld subscriber.
type Latest struct {
	mu      sync.Mutex
	summary aggregator.FrameSummary
	seq     uint64
	read    uint64
}

// set stores s and reports whether an unread summary was overwritten.
func (l *Latest) set(s aggregator.FrameSummary) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	overwrote := l.seq > l.read
	l.summary = s
	l.seq++
	return overwrote
}

// TryReceive returns the latest summary if one arrived since the last call.
func (l *Latest) TryReceive() (aggregator.FrameSummary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seq == l.read {
		return aggregator.FrameSummary{}, false
	}
	l.read = l.seq
	return l.summary, true
}

var _ aggregator.Publisher = (*Bus)(nil)
