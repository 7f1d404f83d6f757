package events

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// ErrOutboxClosed is returned by Publish after Close.
var ErrOutboxClosed = errors.New("events: outbox closed")

type envelope struct {
	ctx   context.Context
	event Event
}

// Outbox queues events in memory and delivers them on worker goroutines.
// Events for the same ticket always land on the same worker, so their
// relative order is kept. When a worker queue is full the event is
// delivered inline rather than dropped.
type Outbox struct {
	registry

	stateMu sync.RWMutex
	closed  bool
	queues  []chan envelope
	wg      sync.WaitGroup
}

// NewOutbox starts workers goroutines, each with a queue of queueSize.
func NewOutbox(workers, queueSize int, logger *zap.Logger, metrics *observability.Metrics) *Outbox {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Outbox{
		registry: registry{logger: logger, metrics: metrics},
		queues:   make([]chan envelope, workers),
	}
	for i := range o.queues {
		o.queues[i] = make(chan envelope, queueSize)
		o.wg.Add(1)
		go o.work(o.queues[i])
	}
	return o
}

// Publish enqueues event for asynchronous delivery.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}

	env := envelope{ctx: context.WithoutCancel(ctx), event: event}
	queue := o.queues[o.shard(event.Metadata().TicketID)]
	select {
	case queue <- env:
		o.metrics.SetOutboxDepth(o.depth())
	default:
		o.logger.Warn("outbox queue full; delivering inline",
			zap.String("event_kind", string(event.Kind())),
			zap.String("ticket_id", event.Metadata().TicketID))
		o.deliver(env.ctx, event)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to expire.
func (o *Outbox) Close(ctx context.Context) error {
	o.stateMu.Lock()
	if o.closed {
		o.stateMu.Unlock()
		return nil
	}
	o.closed = true
	for _, q := range o.queues {
		close(q)
	}
	o.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) work(queue <-chan envelope) {
	defer o.wg.Done()
	for env := range queue {
		o.deliver(env.ctx, env.event)
		o.metrics.SetOutboxDepth(o.depth())
	}
}

func (o *Outbox) shard(key string) int {
	if len(o.queues) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(o.queues)))
}

func (o *Outbox) depth() int {
	n := 0
	for _, q := range o.queues {
		n += len(q)
	}
	return n
}
