// Package events provides the in-process domain event dispatcher.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/alchemorsel/mealsnap/internal/domain/mealphoto"
	"github.com/alchemorsel/mealsnap/internal/domain/shared"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"go.uber.org/zap"
)

// Dispatcher delivers events synchronously to registered handlers. Handler
// errors and panics are logged and never reach the publisher.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	log      *zap.Logger
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]shared.EventHandler),
		log:      log.Named("events"),
	}
}

var (
	_ shared.EventDispatcher  = (*Dispatcher)(nil)
	_ outbound.EventPublisher = (*Dispatcher)(nil)
)

// Register registers an event handler
func (d *Dispatcher) Register(eventName string, handler shared.EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventName] = append(d.handlers[eventName], handler)
	d.log.Debug("Registered event handler", zap.String("event", eventName))
}

// Dispatch dispatches an event to registered handlers. It returns the first
// handler error after every handler has run.
func (d *Dispatcher) Dispatch(event shared.DomainEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventName()]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.log.Debug("No handlers registered for event", zap.String("event", event.EventName()))
		return nil
	}

	var first error
	for _, h := range handlers {
		if err := d.invoke(h, event); err != nil {
			d.log.Error("Failed to handle event",
				zap.String("event", event.EventName()),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Dispatcher) invoke(h shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h(event)
}

// Publish dispatches each event, logging failures
func (d *Dispatcher) Publish(_ context.Context, events ...shared.DomainEvent) {
	for _, e := range events {
		_ = d.Dispatch(e)
	}
}

// LogHandler returns a handler that writes analysis and confirmation events
// to the log.
func LogHandler(log *zap.Logger) shared.EventHandler {
	log = log.Named("domain_events")
	return func(event shared.DomainEvent) error {
		switch e := event.(type) {
		case mealphoto.MealPhotoAnalyzedEvent:
			fields := []zap.Field{
				zap.String("analysis_id", e.AnalysisID.String()),
				zap.String("user_id", e.UserID.String()),
				zap.String("status", string(e.Status)),
				zap.Int("items", e.ItemCount),
				zap.Float64("total_calories", e.TotalCalories),
			}
			if e.FailureReason != "" {
				fields = append(fields, zap.String("failure_reason", string(e.FailureReason)))
			}
			log.Info("Meal photo analyzed", fields...)
		case mealphoto.MealPhotoConfirmedEvent:
			log.Info("Meal photo confirmed",
				zap.String("analysis_id", e.AnalysisID.String()),
				zap.String("user_id", e.UserID.String()),
				zap.Int("meals", len(e.MealIDs)),
			)
		default:
			log.Info("Domain event", zap.String("event", event.EventName()), zap.Time("occurred_at", event.OccurredAt()))
		}
		return nil
	}
}
