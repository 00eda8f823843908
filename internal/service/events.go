package service

import (
	"time"

	"github.com/meethub/meeting-service/internal/domain"
)

// Events published to meeting rooms. The ws transport carries them to live
// connections; services emit them right after the causing mutation commits,
// while the per-meeting lock is still held, so delivery order matches commit
// order within one meeting.
const (
	EventParticipantJoined       = "participant_joined"
	EventParticipantLeft         = "participant_left"
	EventParticipantDisconnected = "participant_disconnected"
	EventStatusUpdated           = "status_updated"
	EventParticipantKicked       = "participant_kicked"
	EventYouWereKicked           = "you_were_kicked"
	EventParticipantMuted        = "participant_muted"
	EventMeetingEnded            = "meeting_ended"
	EventNewMessage              = "new_message"
)

// EventSink delivers room-scoped events to live connections. The ws hub
// implements it; NopSink serves tests and REST-only setups.
type EventSink interface {
	Broadcast(meetingID, event string, payload any)
	BroadcastExcept(meetingID, exceptUserID, event string, payload any)
	Notify(meetingID, userID, event string, payload any)
	CloseRoom(meetingID string)
	EvictUser(meetingID, userID string)
}

type NopSink struct{}

func (NopSink) Broadcast(string, string, any)               {}
func (NopSink) BroadcastExcept(string, string, string, any) {}
func (NopSink) Notify(string, string, string, any)          {}
func (NopSink) CloseRoom(string)                            {}
func (NopSink) EvictUser(string, string)                    {}

type ParticipantPayload struct {
	ID          string    `json:"participantId"`
	MeetingID   string    `json:"meetingId"`
	UserID      string    `json:"userId"`
	JoinedAt    time.Time `json:"joinedAt"`
	MicOn       bool      `json:"isMicOn"`
	CameraOn    bool      `json:"isCameraOn"`
	ScreenShare bool      `json:"isScreenShare"`
}

func toParticipantPayload(p *domain.Participant) ParticipantPayload {
	return ParticipantPayload{
		ID:          p.ID,
		MeetingID:   p.MeetingID,
		UserID:      p.UserID,
		JoinedAt:    p.JoinedAt,
		MicOn:       p.MicOn,
		CameraOn:    p.CameraOn,
		ScreenShare: p.ScreenShare,
	}
}

type PresencePayload struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type StatusPayload struct {
	Participant  ParticipantPayload `json:"participant"`
	ScreenSharer string             `json:"screenSharer,omitempty"` // resolved holder after the update
}

type MutedPayload struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
	MicOn     bool   `json:"isMicOn"`
}

type MeetingEndedPayload struct {
	MeetingID string    `json:"meetingId"`
	EndedAt   time.Time `json:"endedAt"`
}

type MessagePayload struct {
	ID        string    `json:"messageId"`
	MeetingID string    `json:"meetingId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
