package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"rpsls/broker/internal/logging"
)

// RedisBus is the Bus used when several broker instances share the fanout
// fabric. Topics map directly onto Redis pub/sub channels, so a commit on
// one instance signals subscribers on every instance.
type RedisBus struct {
	client    *redis.Client
	log       *logging.Logger
	published atomic.Int64
}

// NewRedisBus connects to the given Redis endpoint.
func NewRedisBus(addr, password string, logger *logging.Logger) *RedisBus {
	if logger == nil {
		logger = logging.L()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisBus{client: client, log: logger}
}

// Ping verifies the connection, for startup checks.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *redisSub) Signals() <-chan struct{} { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
	})
	return err
}

// Subscribe joins the topic's Redis channel and pumps incoming messages into
// a coalescing one-slot signal buffer, preserving the in-process semantics.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	//1.- Force the SUBSCRIBE round trip so membership exists before we return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSub{pubsub: pubsub, ch: make(chan struct{}, 1), cancel: cancel}
	go func() {
		//1.- The pump is the only sender, so it may close the signal channel on exit.
		defer close(sub.ch)
		messages := pubsub.Channel()
		for {
			select {
			case <-pumpCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case sub.ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return sub, nil
}

// Publish signals the topic across all broker instances.
func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	if err := b.client.Publish(ctx, topic, "1").Err(); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Published reports how many signals this instance has published.
func (b *RedisBus) Published() int64 { return b.published.Load() }

// Close releases the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
