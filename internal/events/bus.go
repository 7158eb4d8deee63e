// Package events is the in-process publish/subscribe channel that
// decouples portal actions from the components reacting to them.
// Delivery is synchronous, in registration order, and not persisted.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Daytron/revworks-sub001/internal/metrics"
)

type Handler func(ctx context.Context, ev Event) error

// Completer is implemented by events that want to hear how fan-out went.
type Completer interface {
	Complete(err error)
}

type Subscription struct {
	id   uint64
	kind Kind
}

type subscriber struct {
	id      uint64
	name    string
	handler Handler
}

// DeliveryError reports one subscriber's failure during a Publish.
type DeliveryError struct {
	Kind       Kind
	Subscriber string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Kind, e.Subscriber, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]subscriber
	nextID   uint64
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]subscriber),
		logger:   logger,
	}
}

// Subscribe registers h for kind. name labels the subscriber in logs.
func (b *Bus) Subscribe(kind Kind, name string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], subscriber{id: b.nextID, name: name, handler: h})
	return Subscription{id: b.nextID, kind: kind}
}

// On registers a handler typed to one event variant. E must be a value type.
func On[E Event](b *Bus, name string, fn func(ctx context.Context, ev E) error) Subscription {
	var zero E
	return b.Subscribe(zero.Kind(), name, func(ctx context.Context, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", ev, zero.Kind())
		}
		return fn(ctx, typed)
	})
}

// Unsubscribe removes the subscription and reports whether it was present.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			// copy so in-flight publishes keep their snapshot intact
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, sub.kind)
			} else {
				b.handlers[sub.kind] = next
			}
			return true
		}
	}
	return false
}

// Publish delivers ev to every subscriber registered for its kind when
// Publish is called. A failing or panicking subscriber does not stop the
// fan-out; all failures are returned joined.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	kind := ev.Kind()

	b.mu.RLock()
	subs := b.handlers[kind]
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := b.deliver(ctx, s, ev); err != nil {
			metrics.EventDeliveryFailuresTotal.WithLabelValues(string(kind)).Inc()
			b.logger.Error("event subscriber failed", "kind", kind, "subscriber", s.name, "error", err)
			errs = append(errs, &DeliveryError{Kind: kind, Subscriber: s.name, Err: err})
		}
	}

	err := errors.Join(errs...)
	if c, ok := ev.(Completer); ok {
		c.Complete(err)
	}
	return err
}

func (b *Bus) deliver(ctx context.Context, s subscriber, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, ev)
}

// Subscribers reports how many handlers are registered for kind.
func (b *Bus) Subscribers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}
