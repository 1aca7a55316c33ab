package errors

import "errors"

var (
	ErrInvalidWorkItem     = errors.New("invalid work item")
	ErrInvalidLeaseRequest = errors.New("invalid lease request")
	ErrUnknownWorkKind     = errors.New("unsupported work item kind")
	ErrWorkItemNotFound    = errors.New("work item not found")
	ErrInvalidOutcome      = errors.New("outcome not allowed for this transition")
	ErrMalformedPayload    = errors.New("work item payload is malformed")
	ErrTransientDelivery   = errors.New("transient delivery failure")
	ErrPermanentDelivery   = errors.New("permanent delivery failure")
)
