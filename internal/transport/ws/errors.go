package ws

import (
	"errors"

	"github.com/meethub/meeting-service/internal/domain"
)

// Error kinds carried in error events; the closed set mirrors the HTTP status
// mapping on the REST side.
const (
	KindNotFound        = "not_found"
	KindForbidden       = "forbidden"
	KindConflict        = "conflict"
	KindInvalidRequest  = "invalid_request"
	KindUnauthenticated = "unauthenticated"
	KindUnavailable     = "unavailable"
	KindTransient       = "transient"
)

func kindOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrMeetingNotFound), errors.Is(err, domain.ErrParticipantNotFound):
		return KindNotFound
	case errors.Is(err, domain.ErrForbidden):
		return KindForbidden
	case errors.Is(err, domain.ErrAlreadyEnded), errors.Is(err, domain.ErrAlreadyJoined), errors.Is(err, domain.ErrCodeTaken):
		return KindConflict
	case errors.Is(err, domain.ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, domain.ErrMeetingFull):
		return KindUnavailable
	case errors.Is(err, domain.ErrBusy):
		return KindTransient
	default:
		return KindTransient
	}
}

func errorMessage(err error) Message {
	kind := kindOf(err)
	msg := err.Error()
	// unexpected faults stay opaque to clients
	if kind == KindTransient && !errors.Is(err, domain.ErrBusy) {
		msg = "temporary failure, please retry"
	}
	return Message{
		Type: TypeError,
		Payload: ErrorPayload{
			Kind:    kind,
			Message: msg,
		},
	}
}
