package domain

import "errors"

var (
	ErrMeetingNotFound     = errors.New("meeting not found")
	ErrMeetingFull         = errors.New("meeting is full")
	ErrAlreadyEnded        = errors.New("meeting already ended")
	ErrAlreadyJoined       = errors.New("user already joined the meeting")
	ErrParticipantNotFound = errors.New("participant not active in the meeting")
	ErrForbidden           = errors.New("requester is not the meeting owner")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnauthenticated     = errors.New("missing or invalid credential")
	ErrCodeTaken           = errors.New("meeting code already taken")
	ErrBusy                = errors.New("meeting is busy, retry")
)
