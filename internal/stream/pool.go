// Package stream moves position samples from the inbound stream to the rule
// engine and alerts from the engine to the outbound streams.
package stream

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Handler processes one message. Returned errors are logged and counted;
// they never stop the worker.
type Handler func(ctx context.Context, payload []byte) error

// Submitter accepts messages for processing. done, when non-nil, is called
// once the message has been handled or dropped.
type Submitter interface {
	Submit(ctx context.Context, key string, payload []byte, done func()) error
	TrySubmit(key string, payload []byte, done func()) bool
}

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

type job struct {
	payload []byte
	done    func()
}

// Pool runs a fixed set of workers, each draining its own bounded queue.
// Messages are sharded by key so that all messages of one truck are handled
// by the same worker in submission order.
type Pool struct {
	queues  []chan job
	handler Handler
	metrics *Metrics
	log     logger.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	group   *errgroup.Group
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(cfg PoolConfig, handler Handler, metrics *Metrics, log logger.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	queues := make([]chan job, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan job, cfg.QueueSize)
	}
	return &Pool{
		queues:  queues,
		handler: handler,
		metrics: metrics,
		log:     log.With(logger.String("component", "pool")),
	}
}

// Start launches the workers. Handlers run with a context that carries ctx's
// values but is never cancelled, so Close drains evaluations already queued.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	handlerCtx := context.WithoutCancel(ctx)
	p.group = &errgroup.Group{}
	for i, queue := range p.queues {
		p.group.Go(func() error {
			p.work(handlerCtx, i, queue)
			return nil
		})
	}
	p.log.Info("worker pool started", logger.Int("workers", len(p.queues)))
}

func (p *Pool) work(ctx context.Context, shard int, queue <-chan job) {
	for j := range queue {
		if err := p.handler(ctx, j.payload); err != nil {
			p.metrics.HandlerErrors.Inc()
			p.log.Warn("message rejected",
				logger.Int("shard", shard),
				logger.Error(err))
		}
		p.finish(j)
	}
}

func (p *Pool) finish(j job) {
	p.metrics.InFlight.Dec()
	if j.done != nil {
		j.done()
	}
}

func (p *Pool) shard(key string) chan job {
	return p.queues[xxhash.Sum64String(key)%uint64(len(p.queues))]
}

// Submit queues a message, blocking while the shard's queue is full. It
// returns ctx's error if ctx ends first and ErrPoolClosed after Close; in
// both cases done is not called.
func (p *Pool) Submit(ctx context.Context, key string, payload []byte, done func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.metrics.InFlight.Inc()
	select {
	case p.shard(key) <- job{payload: payload, done: done}:
		return nil
	case <-ctx.Done():
		p.metrics.InFlight.Dec()
		p.metrics.MessagesDropped.WithLabelValues("shutdown").Inc()
		return ctx.Err()
	}
}

// TrySubmit queues a message without blocking. A full queue drops the
// message and calls done immediately.
func (p *Pool) TrySubmit(key string, payload []byte, done func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	reason := "shutdown"
	if !p.closed {
		p.metrics.InFlight.Inc()
		select {
		case p.shard(key) <- job{payload: payload, done: done}:
			return true
		default:
			p.metrics.InFlight.Dec()
			reason = "queue_full"
		}
	}

	p.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	if done != nil {
		done()
	}
	return false
}

// Close stops accepting messages and waits until every queued message has
// been handled. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	group := p.group
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	err := group.Wait()
	p.log.Info("worker pool drained")
	return err
}
