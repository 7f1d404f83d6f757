package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// Dispatcher fans domain events out to subscribers. Publish never reports
// subscriber failures; those are logged and counted where they happen.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(name string, handler Visitor)
}

type subscriber struct {
	name    string
	handler Visitor
}

// registry holds subscribers and delivers to them.
type registry struct {
	mu          sync.RWMutex
	subscribers []subscriber
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func (r *registry) Subscribe(name string, handler Visitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, subscriber{name: name, handler: handler})
}

func (r *registry) deliver(ctx context.Context, event Event) {
	r.mu.RLock()
	subs := append([]subscriber{}, r.subscribers...)
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := r.invoke(ctx, sub, event); err != nil {
			meta := event.Metadata()
			r.logger.Error("event handler failed",
				zap.String("subscriber", sub.name),
				zap.String("event_kind", string(event.Kind())),
				zap.String("event_id", meta.ID),
				zap.String("ticket_id", meta.TicketID),
				zap.Error(err))
			r.metrics.RecordEventFailure(string(event.Kind()))
		}
	}
}

func (r *registry) invoke(ctx context.Context, sub subscriber, event Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", sub.name, rec)
		}
	}()
	return event.Accept(ctx, sub.handler)
}

// syncDispatcher delivers on the caller's goroutine.
type syncDispatcher struct {
	registry
}

// NewSyncDispatcher creates a dispatcher that delivers before Publish returns.
func NewSyncDispatcher(logger *zap.Logger, metrics *observability.Metrics) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &syncDispatcher{registry: registry{logger: logger, metrics: metrics}}
}

// Publish synchronously invokes handlers for the given event.
func (d *syncDispatcher) Publish(ctx context.Context, event Event) error {
	d.deliver(context.WithoutCancel(ctx), event)
	return nil
}
