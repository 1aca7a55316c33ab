package workers

import (
	"context"
	"fmt"

	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
)

// EventHandler executes the business side effects for one claimed event.
// Any returned error marks the event Failed; ingestion never auto-retries
// because the triggered side effects must not be blindly repeated.
type EventHandler interface {
	Handle(ctx context.Context, event entities.ExternalEvent) error
}

// Dispatcher is an immutable kind→handler map built once at startup.
type Dispatcher struct {
	handlers map[entities.ExternalEventKind]EventHandler
}

func NewDispatcher(handlers map[entities.ExternalEventKind]EventHandler) (Dispatcher, error) {
	if len(handlers) == 0 {
		return Dispatcher{}, fmt.Errorf("%w: no handlers registered", domainerrors.ErrInvalidEvent)
	}
	copied := make(map[entities.ExternalEventKind]EventHandler, len(handlers))
	for kind, handler := range handlers {
		if kind == "" {
			return Dispatcher{}, fmt.Errorf("%w: empty kind", domainerrors.ErrInvalidEvent)
		}
		if handler == nil {
			return Dispatcher{}, fmt.Errorf("%w: nil handler for kind %q", domainerrors.ErrInvalidEvent, kind)
		}
		copied[kind] = handler
	}
	return Dispatcher{handlers: copied}, nil
}

func (d Dispatcher) Supports(kind entities.ExternalEventKind) bool {
	_, ok := d.handlers[kind]
	return ok
}

func (d Dispatcher) Dispatch(ctx context.Context, event entities.ExternalEvent) error {
	handler, ok := d.handlers[event.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", domainerrors.ErrUnknownEventKind, event.Kind)
	}
	return handler.Handle(ctx, event)
}
