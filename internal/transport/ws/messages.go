package ws

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/meethub/meeting-service/internal/domain"
	"github.com/meethub/meeting-service/internal/service"
)

// Запросы клиента
const (
	TypeJoinMeeting  = "join_meeting"
	TypeLeaveMeeting = "leave_meeting"
	TypeUpdateStatus = "update_status"
	TypeSendMessage  = "send_message"
	TypeEndMeeting   = "end_meeting"
	TypeKick         = "kick"
	TypeMute         = "mute"
	TypeWebRTCOffer  = "webrtc_offer"
	TypeWebRTCAnswer = "webrtc_answer"
	TypeWebRTCIce    = "webrtc_ice"
	TypeTypingStart  = "typing_start"
	TypeTypingStop   = "typing_stop"
	TypeWhiteboard   = "whiteboard"
)

// Ответы и события сервера; события мутаций приходят с типами service.Event*.
const (
	TypeMeetingState = "meeting_state" // roster + recent chat for the joiner
	TypeError        = "error"
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type JoinPayload struct {
	Code string `json:"code"`
}

type LeavePayload struct {
	MeetingID string `json:"meetingId"`
}

type UpdateStatusPayload struct {
	MeetingID string `json:"meetingId"`
	domain.MediaUpdate
}

type ChatSendPayload struct {
	MeetingID string `json:"meetingId"`
	Content   string `json:"content"`
}

type EndPayload struct {
	MeetingID string `json:"meetingId"`
}

type TargetPayload struct {
	MeetingID    string `json:"meetingId"`
	TargetUserID string `json:"targetUserId"`
}

type MutePayload struct {
	MeetingID    string `json:"meetingId"`
	TargetUserID string `json:"targetUserId"`
	ForcedState  *bool  `json:"forcedState"` // nil toggles
}

// SignalPayload carries WebRTC signaling verbatim between two endpoints.
type SignalPayload struct {
	MeetingID    string `json:"meetingId"`
	TargetUserID string `json:"targetUserId"`
	Payload      any    `json:"payload"`
}

type SignalRelayPayload struct {
	MeetingID  string `json:"meetingId"`
	FromUserID string `json:"fromUserId"`
	Payload    any    `json:"payload"`
}

type TypingPayload struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId,omitempty"`
}

type WhiteboardPayload struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId,omitempty"`
	Payload   any    `json:"payload"`
}

type MeetingInfo struct {
	ID        string     `json:"meetingId"`
	Code      string     `json:"meetingCode"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type MeetingStatePayload struct {
	Meeting      MeetingInfo                  `json:"meeting"`
	Participants []service.ParticipantPayload `json:"participants"`
	Messages     []service.MessagePayload     `json:"messages"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// decode re-marshals a raw payload into dst, rejecting unknown fields so a
// malformed request fails with invalid_request instead of being silently
// filtered.
func decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
