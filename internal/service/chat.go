package service

import (
	"context"
	"strings"

	"github.com/meethub/meeting-service/internal/domain"
)

// Chat persists messages and fans them out to the room. Message content is
// opaque beyond trimming and the length limit.
type Chat struct {
	meetings MeetingStore
	store    ChatStore
	sink     EventSink

	maxLen int
}

func NewChat(meetings MeetingStore, store ChatStore, sink EventSink, maxLen int) *Chat {
	if sink == nil {
		sink = NopSink{}
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Chat{meetings: meetings, store: store, sink: sink, maxLen: maxLen}
}

// Append validates, persists and broadcasts one message.
func (s *Chat) Append(ctx context.Context, meetingID, senderID, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > s.maxLen {
		return nil, domain.ErrInvalidRequest
	}

	m, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Ended() {
		return nil, domain.ErrAlreadyEnded
	}

	msg, err := s.store.Save(ctx, meetingID, senderID, content)
	if err != nil {
		return nil, err
	}

	s.sink.Broadcast(meetingID, EventNewMessage, MessagePayload{
		ID:        msg.ID,
		MeetingID: msg.MeetingID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
	return msg, nil
}

// Recent returns message history, newest first, with cursor pagination.
func (s *Chat) Recent(ctx context.Context, meetingID, cursor string, limit int) ([]domain.ChatMessage, string, error) {
	return s.store.History(ctx, meetingID, cursor, limit)
}
