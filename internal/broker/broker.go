package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/LeventeLantos/chat-hub/internal/config"
)

const (
	heartbeat = 10 * time.Second
	locale    = "en_US"

	// How long Err waits for the close notification after the delivery
	// channel has already been closed.
	closeReasonWait = time.Second
)

// Stream is a live consumer on one queue.
type Stream interface {
	Deliveries() <-chan amqp.Delivery
	// Err reports why the delivery channel closed, or nil if unknown.
	Err() error
	Close() error
}

type Source interface {
	Consume(ctx context.Context, queue string) (Stream, error)
}

type Dialer func(url string, cfg amqp.Config) (*amqp.Connection, error)

// AMQPSource opens one connection per queue.
type AMQPSource struct {
	cfg  config.BrokerConfig
	dial Dialer
	log  *zap.Logger
}

func NewAMQPSource(cfg config.BrokerConfig, log *zap.Logger) *AMQPSource {
	return &AMQPSource{cfg: cfg, dial: amqp.DialConfig, log: log}
}

func (s *AMQPSource) Consume(ctx context.Context, queue string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(queue)

	conn, err := s.dial(s.cfg.URL, amqp.Config{
		Heartbeat:  heartbeat,
		Locale:     locale,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}

	if _, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", queue, err)
	}

	tag := ConsumerTag(s.cfg.ConsumerTag, queue)
	msgs, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	s.log.Debug("consumer attached", zap.String("queue", queue), zap.String("consumer_tag", tag))

	st := &amqpStream{
		conn:       conn,
		ch:         ch,
		deliveries: msgs,
		done:       make(chan struct{}),
	}
	go st.watch(
		conn.NotifyClose(make(chan *amqp.Error, 1)),
		ch.NotifyClose(make(chan *amqp.Error, 1)),
	)
	return st, nil
}

// ConsumerTag is unique per connection so a reconnect never collides with a
// consumer the broker has not reaped yet.
func ConsumerTag(prefix, queue string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, queue, uuid.NewString())
}

type amqpStream struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery

	mu     sync.Mutex
	reason error
	done   chan struct{}
}

func (s *amqpStream) watch(connClosed, chClosed <-chan *amqp.Error) {
	defer close(s.done)

	var aerr *amqp.Error
	select {
	case aerr = <-connClosed:
	case aerr = <-chClosed:
	}
	if aerr == nil {
		return
	}
	s.mu.Lock()
	s.reason = aerr
	s.mu.Unlock()
}

func (s *amqpStream) Deliveries() <-chan amqp.Delivery { return s.deliveries }

func (s *amqpStream) Err() error {
	select {
	case <-s.done:
	case <-time.After(closeReasonWait):
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *amqpStream) Close() error {
	var errs []error
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
