// Package pubsub fans payload-free "recompute" signals out to every
// connection subscribed to a match topic. Signals deliberately carry no
// state: each recipient re-reads the latest committed record, so a
// coalesced or superseded signal can never cause a stale view.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed reports use of a bus after Close.
var ErrClosed = errors.New("pubsub: bus closed")

// Subscription delivers coalesced recompute signals for one topic.
type Subscription interface {
	// Signals yields at least one value after every publish that followed
	// the subscription. Consecutive publishes may coalesce into one value.
	Signals() <-chan struct{}
	// Close removes the subscription from its topic. Idempotent.
	Close() error
}

// Bus manages topic membership and signal delivery. Publish must never block
// on a slow subscriber.
type Bus interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Publish(ctx context.Context, topic string) error
	Close() error
}

// Fanout is the in-process Bus used by single-instance deployments.
type Fanout struct {
	mu     sync.RWMutex
	topics map[string]map[*fanoutSub]struct{}
	closed bool

	published atomic.Int64
}

// NewFanout constructs an empty in-process bus.
func NewFanout() *Fanout {
	return &Fanout{topics: make(map[string]map[*fanoutSub]struct{})}
}

type fanoutSub struct {
	bus   *Fanout
	topic string
	ch    chan struct{}
	// closed is guarded by bus.mu, so the subscription and bus close paths
	// serialise on one lock and cannot deadlock against each other.
	closed bool
}

func (s *fanoutSub) Signals() <-chan struct{} { return s.ch }

// Close removes the subscription from its topic and closes the signal
// channel, so receivers ranging over Signals terminate. Idempotent, and safe
// against a concurrent bus Close.
func (s *fanoutSub) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *fanoutSub) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if members, ok := s.bus.topics[s.topic]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(s.bus.topics, s.topic)
		}
	}
	//1.- Closing under the write lock keeps Publish from sending on a closed channel.
	close(s.ch)
}

// Subscribe adds a member to the topic. The signal buffer holds exactly one
// pending value; a publish finding it full is a no-op because the pending
// signal already guarantees a re-read of newer state.
func (f *Fanout) Subscribe(_ context.Context, topic string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	sub := &fanoutSub{bus: f, topic: topic, ch: make(chan struct{}, 1)}
	members, ok := f.topics[topic]
	if !ok {
		members = make(map[*fanoutSub]struct{})
		f.topics[topic] = members
	}
	members[sub] = struct{}{}
	return sub, nil
}

// Publish signals every current member of the topic without blocking.
func (f *Fanout) Publish(_ context.Context, topic string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	f.published.Add(1)
	for sub := range f.topics[topic] {
		select {
		case sub.ch <- struct{}{}:
		default:
			//1.- A signal is already pending; the subscriber will re-read anyway.
		}
	}
	return nil
}

// Published reports the total number of publish calls, for stats endpoints.
func (f *Fanout) Published() int64 { return f.published.Load() }

// Close tears the bus down; every live subscription's signal channel closes.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, members := range f.topics {
		for sub := range members {
			sub.closeLocked()
		}
	}
	f.topics = make(map[string]map[*fanoutSub]struct{})
	return nil
}
