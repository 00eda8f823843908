package http

import (
	"time"

	"github.com/meethub/meeting-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateMeetingRequest struct {
	Title string `json:"title"`
}

type JoinMeetingRequest struct {
	Code string `json:"code"`
}

type MeetingItem struct {
	ID        string     `json:"meetingId"`
	Code      string     `json:"meetingCode"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

func toMeetingItem(m *domain.Meeting) MeetingItem {
	return MeetingItem{
		ID:        m.ID,
		Code:      m.Code,
		OwnerID:   m.OwnerID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
		EndedAt:   m.EndedAt,
	}
}

type JoinMeetingResponse struct {
	Meeting       MeetingItem `json:"meeting"`
	ParticipantID string      `json:"participantId"`
	Rejoined      bool        `json:"rejoined"`
}

type CanJoinResponse struct {
	Decision string       `json:"decision"`
	Meeting  *MeetingItem `json:"meeting,omitempty"`
}

type ParticipantItem struct {
	ID          string    `json:"participantId"`
	UserID      string    `json:"userId"`
	JoinedAt    time.Time `json:"joinedAt"`
	MicOn       bool      `json:"isMicOn"`
	CameraOn    bool      `json:"isCameraOn"`
	ScreenShare bool      `json:"isScreenShare"`
}

type ParticipantsResponse struct {
	Items []ParticipantItem `json:"items"`
}

type StatsResponse struct {
	MeetingID string `json:"meetingId"`
	domain.MeetingStats
}

type ChatMessageItem struct {
	ID        string    `json:"messageId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessagesResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

type MutedResponse struct {
	UserID string `json:"userId"`
	MicOn  bool   `json:"isMicOn"`
}
