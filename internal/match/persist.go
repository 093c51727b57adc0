package match

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"

	"rpsls/broker/internal/logging"
)

// Persister periodically writes the live match table to disk so a broker
// restart does not strand mid-match players. The file is snappy-compressed
// JSON; on load every restored slot comes back disconnected and the liveness
// sweep reclaims slots whose players never return.
type Persister struct {
	store    *Store
	path     string
	interval time.Duration
	log      *logging.Logger
	now      func() time.Time

	mu    sync.Mutex
	dirty bool

	flushCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type persistedState struct {
	SavedAt time.Time  `json:"saved_at"`
	Matches []Snapshot `json:"matches"`
}

// PersisterOption configures optional Persister behaviour.
type PersisterOption func(*Persister)

// WithPersisterClock overrides the persister time source for tests.
func WithPersisterClock(clock func() time.Time) PersisterOption {
	return func(p *Persister) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewPersister restores any previously saved state into the store and starts
// the flush loop. A nil persister is returned (with no error) when no path is
// configured, so callers can treat persistence as optional.
func NewPersister(store *Store, path string, interval time.Duration, logger *logging.Logger, opts ...PersisterOption) (*Persister, error) {
	if path == "" || interval <= 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.L()
	}
	p := &Persister{
		store:    store,
		path:     path,
		interval: interval,
		log:      logger,
		now:      time.Now,
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	go p.loop()
	return p, nil
}

func (p *Persister) load() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return err
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	p.store.Restore(state.Matches)
	p.log.Info("restored live matches", logging.Int("count", len(state.Matches)))
	return nil
}

func (p *Persister) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.doneCh)
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.flushCh:
			p.flush()
		case <-p.stopCh:
			p.flush()
			return
		}
	}
}

// MarkDirty requests a flush soon. Safe to call from any goroutine; repeated
// calls before the flush coalesce.
func (p *Persister) MarkDirty() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

// Flush immediately persists the current live matches to disk.
func (p *Persister) Flush() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return nil
	}
	p.dirty = false
	p.mu.Unlock()

	state := persistedState{SavedAt: p.now().UTC(), Matches: p.store.Export()}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return os.WriteFile(p.path, snappy.Encode(nil, data), 0o644)
}

func (p *Persister) flush() {
	if err := p.Flush(); err != nil {
		p.log.Error("failed to persist live matches", logging.Error(err))
	}
}

// Close stops the flush loop and writes any pending state.
func (p *Persister) Close() error {
	if p == nil {
		return nil
	}
	close(p.stopCh)
	<-p.doneCh
	return nil
}
