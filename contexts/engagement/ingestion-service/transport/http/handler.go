package http

import (
	"context"
	"time"

	"clipfeed/contexts/engagement/ingestion-service/application/commands"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WebhookAckResponse acknowledges one webhook delivery. IsNew is false when
// the natural key was already recorded; upstream retries see the same ack.
type WebhookAckResponse struct {
	EventID string `json:"event_id"`
	IsNew   bool   `json:"is_new"`
	Status  string `json:"status"`
}

type EventResponse struct {
	EventID    string    `json:"event_id"`
	NaturalKey string    `json:"natural_key"`
	Source     string    `json:"source"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ResetEventResponse struct {
	EventID string `json:"event_id"`
	Reset   bool   `json:"reset"`
	Status  string `json:"status"`
}

// Handler adapts HTTP-shaped requests onto the ingestion use cases.
type Handler struct {
	RecordEvent commands.RecordEventUseCase
	Events      ports.EventStore
}

func (h Handler) RecordWebhookHandler(
	ctx context.Context,
	naturalKey string,
	source string,
	kind entities.ExternalEventKind,
	payload []byte,
) (WebhookAckResponse, error) {
	result, err := h.RecordEvent.Execute(ctx, commands.RecordEventCommand{
		NaturalKey: naturalKey,
		Source:     source,
		Kind:       kind,
		Payload:    payload,
	})
	if err != nil {
		return WebhookAckResponse{}, err
	}
	return WebhookAckResponse{
		EventID: result.Event.EventID,
		IsNew:   result.IsNew,
		Status:  string(result.Event.Status),
	}, nil
}

func (h Handler) GetEventHandler(ctx context.Context, eventID string) (EventResponse, error) {
	event, err := h.Events.GetEvent(ctx, eventID)
	if err != nil {
		return EventResponse{}, err
	}
	return toEventResponse(event), nil
}

// ResetEventHandler is the operator path: Failed back to Pending. Reset is
// false when the event was not in Failed, with the current status attached.
func (h Handler) ResetEventHandler(ctx context.Context, eventID string) (ResetEventResponse, error) {
	reset, err := h.Events.ResetFailed(ctx, eventID)
	if err != nil {
		return ResetEventResponse{}, err
	}
	event, err := h.Events.GetEvent(ctx, eventID)
	if err != nil {
		return ResetEventResponse{}, err
	}
	return ResetEventResponse{
		EventID: event.EventID,
		Reset:   reset,
		Status:  string(event.Status),
	}, nil
}

func toEventResponse(event entities.ExternalEvent) EventResponse {
	return EventResponse{
		EventID:    event.EventID,
		NaturalKey: event.NaturalKey,
		Source:     event.Source,
		Kind:       string(event.Kind),
		Status:     string(event.Status),
		LastError:  event.LastError,
		CreatedAt:  event.CreatedAt,
		UpdatedAt:  event.UpdatedAt,
	}
}
