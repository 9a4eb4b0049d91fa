package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
	Subscribe(trailerID string) chan SSEEvent
	Unsubscribe(trailerID string, ch chan SSEEvent)
	Publish(trailerID string, evt SSEEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub, so streams work
// across multiple API replicas.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	sub map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{
		rdb: redis.NewClient(opt),
		sub: map[chan SSEEvent]*redis.PubSub{},
	}, nil
}

func (b *RedisBroker) Subscribe(trailerID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(trailerID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.sub[ch] = ps
	b.mu.Unlock()
	go forwardMessages(ps.Channel(), ch)
	return ch
}

// forwardMessages pumps pubsub payloads into ch until the pubsub channel
// closes. Only this goroutine closes ch; Unsubscribe tears down the
// pubsub and lets the drain run its course, so a message arriving during
// teardown can never hit a closed channel.
func forwardMessages(msgs <-chan *redis.Message, ch chan SSEEvent) {
	defer close(ch)
	for msg := range msgs {
		var evt SSEEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

func (b *RedisBroker) Unsubscribe(trailerID string, ch chan SSEEvent) {
	b.mu.Lock()
	ps := b.sub[ch]
	delete(b.sub, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(trailerID string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(trailerID), data).Err()
}

func (b *RedisBroker) chanName(trailerID string) string { return "trailer:" + trailerID }
