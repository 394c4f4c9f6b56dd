package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/chat-hub/internal/broker"
)

var ErrStreamClosed = errors.New("delivery stream closed")

// Handler processes one delivery body. It runs after the delivery has been
// acknowledged, so its error is only logged and counted.
type Handler func(ctx context.Context, queue string, body []byte) error

// Submitter is satisfied by *ants.Pool.
type Submitter interface {
	Submit(task func()) error
}

type Supervisor struct {
	source     broker.Source
	pool       Submitter
	handle     Handler
	retryDelay time.Duration
	tasks      *sync.WaitGroup
	stats      *Registry
	log        *zap.Logger
}

type Options struct {
	Source     broker.Source
	Pool       Submitter
	Handler    Handler
	RetryDelay time.Duration
	// Tasks tracks spawned work; nothing waits on it during shutdown.
	Tasks *sync.WaitGroup
	Stats *Registry
	Log   *zap.Logger
}

func New(o Options) *Supervisor {
	if o.Tasks == nil {
		o.Tasks = &sync.WaitGroup{}
	}
	if o.Stats == nil {
		o.Stats = NewRegistry()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return &Supervisor{
		source:     o.Source,
		pool:       o.Pool,
		handle:     o.Handler,
		retryDelay: o.RetryDelay,
		tasks:      o.Tasks,
		stats:      o.Stats,
		log:        o.Log,
	}
}

// Run consumes queue until ctx is done (nil) or the delivery stream closes
// (ErrStreamClosed). Connecting is retried forever at a fixed delay.
func (s *Supervisor) Run(ctx context.Context, queue string) error {
	log := s.log.With(zap.String("queue", queue))

	stream, ok := s.connect(ctx, queue, log)
	if !ok {
		s.stats.SetState(queue, StateStopped)
		return nil
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug("close stream", zap.Error(err))
		}
	}()
	defer s.stats.SetState(queue, StateStopped)

	s.stats.SetState(queue, StateConsuming)
	log.Info("consuming")

	deliveries := stream.Deliveries()
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				reason := stream.Err()
				log.Error("delivery stream closed", zap.Error(reason))
				if reason != nil {
					return fmt.Errorf("%w: %s: %v", ErrStreamClosed, queue, reason)
				}
				return fmt.Errorf("%w: %s", ErrStreamClosed, queue)
			}
			s.accept(ctx, queue, d, log)
		}
	}
}

func (s *Supervisor) connect(ctx context.Context, queue string, log *zap.Logger) (broker.Stream, bool) {
	s.stats.SetState(queue, StateConnecting)
	for {
		stream, err := s.source.Consume(ctx, queue)
		if err == nil {
			return stream, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		log.Warn("connect failed, retrying", zap.Error(err), zap.Duration("retry_in", s.retryDelay))

		t := time.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}
	}
}

// accept spawns the task and acknowledges right away, without waiting for
// the task to finish. Failures after this point are never redelivered.
func (s *Supervisor) accept(ctx context.Context, queue string, d amqp.Delivery, log *zap.Logger) {
	c := s.stats.counters(queue)
	c.received.Add(1)

	body := make([]byte, len(d.Body))
	copy(body, d.Body)

	taskID := uuid.NewString()
	taskLog := log.With(zap.String("task_id", taskID))
	taskCtx := context.WithoutCancel(ctx)

	s.tasks.Add(1)
	task := func() {
		defer s.tasks.Done()
		if err := s.handle(taskCtx, queue, body); err != nil {
			c.failed.Add(1)
			taskLog.Error("task failed", zap.Error(err))
			return
		}
		c.succeeded.Add(1)
		taskLog.Debug("task done")
	}
	if err := s.pool.Submit(task); err != nil {
		taskLog.Warn("worker pool rejected task, running unpooled", zap.Error(err))
		go task()
	}

	if err := d.Ack(false); err != nil {
		c.ackFailed.Add(1)
		taskLog.Error("ack failed", zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
		return
	}
	c.acked.Add(1)
}

// RunGroup runs one supervisor loop per queue. The first error cancels the
// others and is returned once all of them have stopped.
func RunGroup(ctx context.Context, queues []string, run func(ctx context.Context, queue string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		q := q
		g.Go(func() error { return run(gctx, q) })
	}
	return g.Wait()
}
