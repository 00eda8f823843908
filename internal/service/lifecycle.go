package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meethub/meeting-service/internal/domain"
)

const (
	codeCharset     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeMaxAttempts = 5
)

// Roster is the slice of the presence tracker the lifecycle manager needs:
// dropping the cached active set once a meeting reaches its terminal state.
type Roster interface {
	DropMeeting(meetingID string)
}

// Lifecycle owns meeting state transitions: open on create, ended on an
// explicit end or on expiry of an emptied meeting. Ended is terminal.
type Lifecycle struct {
	meetings MeetingStore
	parts    ParticipantStore
	roster   Roster
	sink     EventSink

	capacity   int
	sweepEvery time.Duration
}

func NewLifecycle(meetings MeetingStore, parts ParticipantStore, roster Roster, sink EventSink, capacity int, sweepEvery time.Duration) *Lifecycle {
	if sink == nil {
		sink = NopSink{}
	}
	if capacity <= 0 {
		capacity = 50
	}
	if sweepEvery <= 0 {
		sweepEvery = 2 * time.Minute
	}
	return &Lifecycle{
		meetings:   meetings,
		parts:      parts,
		roster:     roster,
		sink:       sink,
		capacity:   capacity,
		sweepEvery: sweepEvery,
	}
}

func (s *Lifecycle) Capacity() int { return s.capacity }

// Create opens a new meeting with a fresh 6-char code, retrying on a code
// collision.
func (s *Lifecycle) Create(ctx context.Context, ownerID, title string) (*domain.Meeting, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidRequest
	}
	title = strings.TrimSpace(title)

	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		code, err := newMeetingCode()
		if err != nil {
			return nil, err
		}

		m := &domain.Meeting{
			Code:    code,
			OwnerID: ownerID,
			Title:   title,
		}
		err = s.meetings.Create(ctx, m)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return nil, fmt.Errorf("create meeting: %w", err)
		}
	}
	return nil, fmt.Errorf("create meeting: %w after %d attempts", domain.ErrCodeTaken, codeMaxAttempts)
}

// GetByCode looks a meeting up by its public code, applying the lazy expiry
// check first: an open meeting that was used and emptied out transitions to
// ended on this read.
func (s *Lifecycle) GetByCode(ctx context.Context, code string) (*domain.Meeting, error) {
	m, err := s.meetings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.maybeExpire(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Lifecycle) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	return s.meetings.GetByID(ctx, id)
}

// End transitions the meeting to ended and, in the same storage transaction,
// marks every active participant as left. Owner-only; a second call reports
// ErrAlreadyEnded and changes nothing.
func (s *Lifecycle) End(ctx context.Context, meetingID, requesterID string) (*domain.Meeting, error) {
	m, err := s.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != requesterID {
		return nil, domain.ErrForbidden
	}
	if m.Ended() {
		return nil, domain.ErrAlreadyEnded
	}

	endedAt, err := s.meetings.End(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	m.EndedAt = &endedAt
	s.roster.DropMeeting(meetingID)

	s.sink.Broadcast(meetingID, EventMeetingEnded, MeetingEndedPayload{MeetingID: meetingID, EndedAt: endedAt})
	s.sink.CloseRoom(meetingID)
	return m, nil
}

// Expire ends the meeting if it is open, was used, and has no active
// participants left. Idempotent: already-ended or still-populated meetings
// are a no-op.
func (s *Lifecycle) Expire(ctx context.Context, code string) error {
	m, err := s.meetings.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrMeetingNotFound) {
			return nil
		}
		return err
	}
	return s.maybeExpire(ctx, m)
}

func (s *Lifecycle) maybeExpire(ctx context.Context, m *domain.Meeting) error {
	if m.Ended() {
		return nil
	}
	active, err := s.parts.CountActive(ctx, m.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}
	// a meeting nobody ever joined stays open for its owner
	total, err := s.parts.CountAll(ctx, m.ID)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	endedAt, err := s.meetings.End(ctx, m.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyEnded) {
			return nil
		}
		return err
	}
	m.EndedAt = &endedAt
	s.roster.DropMeeting(m.ID)
	slog.Info("meeting expired", "meeting", m.ID, "code", m.Code)
	return nil
}

// CheckCanJoin is a pure decision over current state; it never mutates, so
// callers can retry it freely.
func (s *Lifecycle) CheckCanJoin(ctx context.Context, userID, code string) (domain.JoinDecision, *domain.Meeting, error) {
	m, err := s.meetings.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrMeetingNotFound) {
			return domain.JoinNotFound, nil, nil
		}
		return "", nil, err
	}
	if m.Ended() {
		return domain.JoinEnded, m, nil
	}

	if _, err := s.parts.FindActive(ctx, m.ID, userID); err == nil {
		return domain.JoinAlreadyJoined, m, nil
	} else if !errors.Is(err, domain.ErrParticipantNotFound) {
		return "", nil, err
	}

	active, err := s.parts.CountActive(ctx, m.ID)
	if err != nil {
		return "", nil, err
	}
	if active >= s.capacity {
		return domain.JoinFull, m, nil
	}
	return domain.JoinOK, m, nil
}

// Run sweeps open, emptied meetings into ended until ctx is cancelled.
// Lazy expiry on lookup remains the primary path; the sweep catches meetings
// nobody looks up again.
func (s *Lifecycle) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Lifecycle) sweep(ctx context.Context) {
	idle, err := s.meetings.ListIdleOpen(ctx, 100)
	if err != nil {
		slog.Warn("expiry sweep failed", "err", err)
		return
	}
	for i := range idle {
		if err := s.maybeExpire(ctx, &idle[i]); err != nil {
			slog.Warn("expire failed", "meeting", idle[i].ID, "err", err)
		}
	}
}

func newMeetingCode() (string, error) {
	buf := make([]byte, domain.CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}
