package workers

import (
	"context"
	"fmt"

	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
)

// Outcome is a handler's verdict on one leased item. The worker, not the
// handler, translates it into a queue transition.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRetry     Outcome = "retry"
)

// Handler executes the side effect for one leased work item.
type Handler interface {
	Handle(ctx context.Context, item entities.WorkItem) (Outcome, error)
}

// Dispatcher is an immutable kind→handler map built once at startup.
// Unsupported kinds fail at construction, not deep inside the poll loop.
type Dispatcher struct {
	handlers map[entities.WorkItemKind]Handler
}

func NewDispatcher(handlers map[entities.WorkItemKind]Handler) (Dispatcher, error) {
	if len(handlers) == 0 {
		return Dispatcher{}, fmt.Errorf("%w: no handlers registered", domainerrors.ErrInvalidWorkItem)
	}
	copied := make(map[entities.WorkItemKind]Handler, len(handlers))
	for kind, handler := range handlers {
		if kind == "" {
			return Dispatcher{}, fmt.Errorf("%w: empty kind", domainerrors.ErrInvalidWorkItem)
		}
		if handler == nil {
			return Dispatcher{}, fmt.Errorf("%w: nil handler for kind %q", domainerrors.ErrInvalidWorkItem, kind)
		}
		copied[kind] = handler
	}
	return Dispatcher{handlers: copied}, nil
}

func (d Dispatcher) Kinds() []entities.WorkItemKind {
	kinds := make([]entities.WorkItemKind, 0, len(d.handlers))
	for kind := range d.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

func (d Dispatcher) Dispatch(ctx context.Context, item entities.WorkItem) (Outcome, error) {
	handler, ok := d.handlers[item.Kind]
	if !ok {
		return OutcomeIgnored, fmt.Errorf("%w: %q", domainerrors.ErrUnknownWorkKind, item.Kind)
	}
	return handler.Handle(ctx, item)
}
