package errors

import "errors"

var (
	ErrInvalidEvent        = errors.New("invalid external event")
	ErrInvalidEventPayload = errors.New("external event payload is malformed")
	ErrUnknownEventKind    = errors.New("unsupported external event kind")
	ErrEventNotFound       = errors.New("external event not found")
)
