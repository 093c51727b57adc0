// Package presence disconnects players whose heartbeats have gone silent.
// The sweeper periodically walks the live match records, marks slots stale
// past the TTL as disconnected, and signals the affected match topics so
// remaining players see the drop immediately.
package presence

import (
	"context"
	"time"

	"rpsls/broker/internal/logging"
	"rpsls/broker/internal/match"
	"rpsls/broker/internal/pubsub"
)

// Sweeper drives periodic staleness sweeps over a match store.
type Sweeper struct {
	store    *match.Store
	bus      pubsub.Bus
	logger   *logging.Logger
	ttl      time.Duration
	interval time.Duration

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper wires a sweeper; it does nothing until Start is called. A
// non-positive ttl or interval disables sweeping entirely.
func NewSweeper(store *match.Store, bus pubsub.Bus, logger *logging.Logger, ttl, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = logging.L()
	}
	return &Sweeper{
		store:    store,
		bus:      bus,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. A sweeper with a non-positive ttl or
// interval never starts.
func (s *Sweeper) Start() {
	if s == nil || s.started || s.ttl <= 0 || s.interval <= 0 {
		return
	}
	s.started = true
	go s.loop()
}

func (s *Sweeper) loop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one pass and reports how many records changed. Exposed so
// tests and shutdown paths can force a deterministic pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s == nil || s.store == nil {
		return 0
	}
	results := s.store.SweepStale(s.ttl)
	for _, res := range results {
		if res.Orphaned {
			s.logger.Info("stale match removed",
				logging.String("match_id", res.Snapshot.MatchID.String()))
			continue
		}
		s.logger.Info("stale player disconnected",
			logging.String("match_id", res.Snapshot.MatchID.String()))
		//1.- Survivors re-read the record on this signal and see the drop.
		if err := s.bus.Publish(ctx, res.Snapshot.MatchID.Topic()); err != nil {
			s.logger.Warn("presence publish failed",
				logging.String("match_id", res.Snapshot.MatchID.String()),
				logging.Error(err))
		}
	}
	return len(results)
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s == nil || !s.started {
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}
