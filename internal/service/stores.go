package service

import (
	"context"
	"time"

	"github.com/meethub/meeting-service/internal/domain"
)

// Store interfaces are the persistence boundary. The postgres package provides
// the production implementations; tests use the mocks in mock.go.

type MeetingStore interface {
	Create(ctx context.Context, m *domain.Meeting) error
	GetByID(ctx context.Context, id string) (*domain.Meeting, error)
	GetByCode(ctx context.Context, code string) (*domain.Meeting, error)
	End(ctx context.Context, meetingID string) (time.Time, error)
	ListIdleOpen(ctx context.Context, limit int) ([]domain.Meeting, error)
}

type ParticipantStore interface {
	Create(ctx context.Context, p *domain.Participant) error
	FindActive(ctx context.Context, meetingID, userID string) (*domain.Participant, error)
	ListActive(ctx context.Context, meetingID string) ([]domain.Participant, error)
	CountActive(ctx context.Context, meetingID string) (int, error)
	CountAll(ctx context.Context, meetingID string) (int, error)
	LeaveAll(ctx context.Context, meetingID, userID string, at time.Time) (int64, error)
	UpdateFlags(ctx context.Context, p *domain.Participant) error
	GrantScreenShare(ctx context.Context, p *domain.Participant) (time.Time, error)
}

type ChatStore interface {
	Save(ctx context.Context, meetingID, senderID, content string) (*domain.ChatMessage, error)
	History(ctx context.Context, meetingID, after string, limit int) ([]domain.ChatMessage, string, error)
}
