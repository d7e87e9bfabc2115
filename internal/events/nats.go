package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// NATSSubscriber delivers raw event payloads from NATS subjects. Delivery
// never blocks the NATS client: a payload that does not fit the buffer is
// dropped, logged and counted in Dropped.
type NATSSubscriber struct {
	conn    *nats.Conn
	log     *zap.Logger
	buffer  int
	dropped atomic.Uint64
}

// NewNATSSubscriber connects with unlimited reconnects. Extra options are
// appended to the defaults.
func NewNATSSubscriber(url string, log *zap.Logger, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSSubscriber{conn: nc, log: log, buffer: DefaultBuffer}, nil
}

// WithBuffer sets the channel capacity of later subscriptions.
func (s *NATSSubscriber) WithBuffer(n int) *NATSSubscriber {
	if n > 0 {
		s.buffer = n
	}
	return s
}

// Dropped reports how many payloads were discarded across all
// subscriptions because the consumer fell behind.
func (s *NATSSubscriber) Dropped() uint64 { return s.dropped.Load() }

type subscription struct {
	owner *NATSSubscriber
	topic string
	ch    chan []byte
	sub   *nats.Subscription

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (sb *subscription) deliver(msg *nats.Msg) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return
	}
	select {
	case sb.ch <- msg.Data:
	default:
		total := sb.owner.dropped.Add(1)
		sb.owner.log.Warn("event dropped: subscriber buffer full",
			zap.String("topic", sb.topic),
			zap.String("subject", msg.Subject),
			zap.Int("size", len(msg.Data)),
			zap.Int("buffer", cap(sb.ch)),
			zap.Uint64("dropped_total", total),
		)
	}
}

func (sb *subscription) cancel() {
	sb.once.Do(func() {
		if sb.sub != nil {
			_ = sb.sub.Unsubscribe()
		}
		sb.mu.Lock()
		sb.closed = true
		sb.mu.Unlock()
		for {
			select {
			case <-sb.ch:
			default:
				close(sb.ch)
				return
			}
		}
	})
}

// Subscribe returns a channel of payloads for topic (wildcards allowed) and
// a cancel func that unsubscribes and closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	sb := &subscription{owner: s, topic: topic, ch: make(chan []byte, s.buffer)}

	sub, err := s.conn.Subscribe(topic, sb.deliver)
	if err != nil {
		close(sb.ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	sb.sub = sub
	// the server must know about the subscription before we return
	if err := s.conn.Flush(); err != nil {
		sb.cancel()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return sb.ch, sb.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
