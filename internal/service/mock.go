package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/meethub/meeting-service/internal/domain"
)

type MockMeetingStore struct {
	mock.Mock
}

func (m *MockMeetingStore) Create(ctx context.Context, mt *domain.Meeting) error {
	args := m.Called(ctx, mt)
	return args.Error(0)
}

func (m *MockMeetingStore) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	args := m.Called(ctx, id)
	if mt, ok := args.Get(0).(*domain.Meeting); ok {
		return mt, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMeetingStore) GetByCode(ctx context.Context, code string) (*domain.Meeting, error) {
	args := m.Called(ctx, code)
	if mt, ok := args.Get(0).(*domain.Meeting); ok {
		return mt, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMeetingStore) End(ctx context.Context, meetingID string) (time.Time, error) {
	args := m.Called(ctx, meetingID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockMeetingStore) ListIdleOpen(ctx context.Context, limit int) ([]domain.Meeting, error) {
	args := m.Called(ctx, limit)
	if l, ok := args.Get(0).([]domain.Meeting); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockParticipantStore struct {
	mock.Mock
}

func (m *MockParticipantStore) Create(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockParticipantStore) FindActive(ctx context.Context, meetingID, userID string) (*domain.Participant, error) {
	args := m.Called(ctx, meetingID, userID)
	if p, ok := args.Get(0).(*domain.Participant); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockParticipantStore) ListActive(ctx context.Context, meetingID string) ([]domain.Participant, error) {
	args := m.Called(ctx, meetingID)
	if l, ok := args.Get(0).([]domain.Participant); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockParticipantStore) CountActive(ctx context.Context, meetingID string) (int, error) {
	args := m.Called(ctx, meetingID)
	return args.Int(0), args.Error(1)
}

func (m *MockParticipantStore) CountAll(ctx context.Context, meetingID string) (int, error) {
	args := m.Called(ctx, meetingID)
	return args.Int(0), args.Error(1)
}

func (m *MockParticipantStore) LeaveAll(ctx context.Context, meetingID, userID string, at time.Time) (int64, error) {
	args := m.Called(ctx, meetingID, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockParticipantStore) UpdateFlags(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockParticipantStore) GrantScreenShare(ctx context.Context, p *domain.Participant) (time.Time, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(time.Time), args.Error(1)
}

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) Save(ctx context.Context, meetingID, senderID, content string) (*domain.ChatMessage, error) {
	args := m.Called(ctx, meetingID, senderID, content)
	if msg, ok := args.Get(0).(*domain.ChatMessage); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatStore) History(ctx context.Context, meetingID, after string, limit int) ([]domain.ChatMessage, string, error) {
	args := m.Called(ctx, meetingID, after, limit)
	if l, ok := args.Get(0).([]domain.ChatMessage); ok {
		return l, args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}
