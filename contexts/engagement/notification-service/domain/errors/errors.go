package errors

import "errors"

var (
	ErrUnknownNotificationKind = errors.New("unsupported notification kind")
	ErrInvalidFanoutEvent      = errors.New("invalid fanout event")
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrInvalidListRequest      = errors.New("invalid notification list request")
)
