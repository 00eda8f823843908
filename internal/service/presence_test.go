package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meethub/meeting-service/internal/domain"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu      sync.Mutex
	events  []string
	evicted []string
}

func (r *recordingSink) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingSink) Broadcast(_, event string, _ any)          { r.record(event) }
func (r *recordingSink) BroadcastExcept(_, _, event string, _ any) { r.record(event) }
func (r *recordingSink) Notify(_, _, event string, _ any)          { r.record(event) }
func (r *recordingSink) CloseRoom(string)                          { r.record("close_room") }
func (r *recordingSink) EvictUser(_, userID string) {
	r.mu.Lock()
	r.evicted = append(r.evicted, userID)
	r.mu.Unlock()
}

func (r *recordingSink) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func boolPtr(b bool) *bool { return &b }

func newTestPresence(parts *MockParticipantStore, meetings *MockMeetingStore, sink EventSink) *Presence {
	return NewPresence(meetings, parts, sink, 50, time.Second)
}

func Test_Join(t *testing.T) {
	t.Run("first join creates a row and broadcasts", func(t *testing.T) {
		parts := &MockParticipantStore{}
		sink := &recordingSink{}
		tr := newTestPresence(parts, &MockMeetingStore{}, sink)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{}, nil).Once()
		parts.On("Create", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Run(func(args mock.Arguments) {
				p := args.Get(1).(*domain.Participant)
				p.ID = "p1"
				p.JoinedAt = time.Now()
			}).Return(nil).Once()

		p, wasActive, err := tr.Join(context.Background(), "m1", "u1")
		require.NoError(t, err)
		assert.False(t, wasActive, "fresh join must not report rejoin")
		assert.Equal(t, "p1", p.ID)
		assert.True(t, p.MicOn, "mic defaults to on")
		assert.True(t, p.CameraOn, "camera defaults to on")
		assert.Equal(t, []string{EventParticipantJoined}, sink.Events())
		parts.AssertExpectations(t)
	})

	t.Run("duplicate join returns the same row without broadcast", func(t *testing.T) {
		parts := &MockParticipantStore{}
		sink := &recordingSink{}
		tr := newTestPresence(parts, &MockMeetingStore{}, sink)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p1", MeetingID: "m1", UserID: "u1", JoinedAt: time.Now()},
		}, nil).Once()

		p1, wasActive, err := tr.Join(context.Background(), "m1", "u1")
		require.NoError(t, err)
		assert.True(t, wasActive)

		p2, wasActive, err := tr.Join(context.Background(), "m1", "u1")
		require.NoError(t, err)
		assert.True(t, wasActive)
		assert.Equal(t, p1.ID, p2.ID, "duplicate join must reuse the active row")
		assert.Empty(t, sink.Events(), "duplicate join must not broadcast")
		parts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("empty ids rejected", func(t *testing.T) {
		tr := newTestPresence(&MockParticipantStore{}, &MockMeetingStore{}, nil)
		_, _, err := tr.Join(context.Background(), "", "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func Test_Join_capacity(t *testing.T) {
	t.Run("join into a full meeting fails even after an optimistic check", func(t *testing.T) {
		// a stale can-join decision does not help: the count is re-checked
		// under the meeting lock
		parts := &MockParticipantStore{}
		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p1", MeetingID: "m1", UserID: "u1", JoinedAt: time.Now()},
		}, nil).Once()
		tr := NewPresence(&MockMeetingStore{}, parts, nil, 1, time.Second)

		_, _, err := tr.Join(context.Background(), "m1", "u2")
		assert.ErrorIs(t, err, domain.ErrMeetingFull)
		parts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("two joins racing for the last slot admit exactly one", func(t *testing.T) {
		parts := &MockParticipantStore{}
		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{}, nil).Once()
		parts.On("Create", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Run(func(args mock.Arguments) {
				p := args.Get(1).(*domain.Participant)
				p.ID = "p1"
				p.JoinedAt = time.Now()
			}).Return(nil).Once()
		tr := NewPresence(&MockMeetingStore{}, parts, nil, 1, time.Second)

		_, _, err := tr.Join(context.Background(), "m1", "u1")
		require.NoError(t, err)

		_, _, err = tr.Join(context.Background(), "m1", "u2")
		assert.ErrorIs(t, err, domain.ErrMeetingFull)

		active, err := tr.ActiveParticipants(context.Background(), "m1")
		require.NoError(t, err)
		assert.Len(t, active, 1, "capacity 1 meeting must never hold 2 active participants")
	})

	t.Run("rejoin is allowed at capacity", func(t *testing.T) {
		parts := &MockParticipantStore{}
		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p1", MeetingID: "m1", UserID: "u1", JoinedAt: time.Now()},
		}, nil).Once()
		tr := NewPresence(&MockMeetingStore{}, parts, nil, 1, time.Second)

		p, wasActive, err := tr.Join(context.Background(), "m1", "u1")
		require.NoError(t, err)
		assert.True(t, wasActive)
		assert.Equal(t, "p1", p.ID)
	})
}

func Test_Leave(t *testing.T) {
	t.Run("explicit leave closes rows and broadcasts participant_left", func(t *testing.T) {
		parts := &MockParticipantStore{}
		sink := &recordingSink{}
		tr := newTestPresence(parts, &MockMeetingStore{}, sink)

		parts.On("LeaveAll", mock.Anything, "m1", "u1", mock.AnythingOfType("time.Time")).
			Return(int64(1), nil).Once()

		err := tr.Leave(context.Background(), "m1", "u1", LeaveExplicit)
		require.NoError(t, err)
		assert.Equal(t, []string{EventParticipantLeft}, sink.Events())
	})

	t.Run("disconnect broadcasts participant_disconnected", func(t *testing.T) {
		parts := &MockParticipantStore{}
		sink := &recordingSink{}
		tr := newTestPresence(parts, &MockMeetingStore{}, sink)

		parts.On("LeaveAll", mock.Anything, "m1", "u1", mock.AnythingOfType("time.Time")).
			Return(int64(1), nil).Once()

		require.NoError(t, tr.Leave(context.Background(), "m1", "u1", LeaveDisconnect))
		assert.Equal(t, []string{EventParticipantDisconnected}, sink.Events())
	})

	t.Run("leave of inactive user is a silent no-op", func(t *testing.T) {
		parts := &MockParticipantStore{}
		sink := &recordingSink{}
		tr := newTestPresence(parts, &MockMeetingStore{}, sink)

		parts.On("LeaveAll", mock.Anything, "m1", "ghost", mock.AnythingOfType("time.Time")).
			Return(int64(0), nil).Once()

		require.NoError(t, tr.Leave(context.Background(), "m1", "ghost", LeaveExplicit))
		assert.Empty(t, sink.Events())
	})
}

func Test_UpdateMedia(t *testing.T) {
	t.Run("empty update rejected", func(t *testing.T) {
		tr := newTestPresence(&MockParticipantStore{}, &MockMeetingStore{}, nil)
		_, err := tr.UpdateMedia(context.Background(), "m1", "u1", domain.MediaUpdate{})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("unknown participant rejected", func(t *testing.T) {
		parts := &MockParticipantStore{}
		tr := newTestPresence(parts, &MockMeetingStore{}, nil)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{}, nil).Once()

		_, err := tr.UpdateMedia(context.Background(), "m1", "ghost", domain.MediaUpdate{MicOn: boolPtr(false)})
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	})

	t.Run("mic toggle persists flags", func(t *testing.T) {
		parts := &MockParticipantStore{}
		sink := &recordingSink{}
		tr := newTestPresence(parts, &MockMeetingStore{}, sink)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p1", MeetingID: "m1", UserID: "u1", MicOn: true, CameraOn: true},
		}, nil).Once()
		parts.On("UpdateFlags", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Return(nil).Once()

		p, err := tr.UpdateMedia(context.Background(), "m1", "u1", domain.MediaUpdate{MicOn: boolPtr(false)})
		require.NoError(t, err)
		assert.False(t, p.MicOn)
		assert.True(t, p.CameraOn, "untouched flags keep their value")
		assert.Equal(t, []string{EventStatusUpdated}, sink.Events())
	})

	t.Run("screen share grab clears the previous holder", func(t *testing.T) {
		parts := &MockParticipantStore{}
		tr := newTestPresence(parts, &MockMeetingStore{}, nil)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p2", MeetingID: "m1", UserID: "u2", ScreenShare: true, JoinedAt: time.Now()},
			{ID: "p3", MeetingID: "m1", UserID: "u3", JoinedAt: time.Now().Add(-time.Minute)},
		}, nil).Once()
		parts.On("GrantScreenShare", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Return(time.Now(), nil).Once()

		p, err := tr.UpdateMedia(context.Background(), "m1", "u3", domain.MediaUpdate{ScreenShare: boolPtr(true)})
		require.NoError(t, err)
		assert.True(t, p.ScreenShare)

		// exactly one holder remains
		active, err := tr.ActiveParticipants(context.Background(), "m1")
		require.NoError(t, err)
		holders := 0
		for _, a := range active {
			if a.ScreenShare {
				holders++
				assert.Equal(t, "u3", a.UserID, "new grabber must hold the share")
			}
		}
		assert.Equal(t, 1, holders)
		parts.AssertExpectations(t)
	})

	t.Run("grab with mic change is a single storage write", func(t *testing.T) {
		parts := &MockParticipantStore{}
		tr := newTestPresence(parts, &MockMeetingStore{}, nil)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p1", MeetingID: "m1", UserID: "u1", MicOn: true},
		}, nil).Once()
		parts.On("GrantScreenShare", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Run(func(args mock.Arguments) {
				p := args.Get(1).(*domain.Participant)
				assert.True(t, p.ScreenShare)
				assert.False(t, p.MicOn, "mic change must ride in the grant transaction")
			}).Return(time.Now(), nil).Once()

		p, err := tr.UpdateMedia(context.Background(), "m1", "u1", domain.MediaUpdate{
			ScreenShare: boolPtr(true),
			MicOn:       boolPtr(false),
		})
		require.NoError(t, err)
		assert.True(t, p.ScreenShare)
		assert.False(t, p.MicOn)
		parts.AssertNotCalled(t, "UpdateFlags", mock.Anything, mock.Anything)
	})

	t.Run("releasing share reports remaining holder empty", func(t *testing.T) {
		parts := &MockParticipantStore{}
		tr := newTestPresence(parts, &MockMeetingStore{}, nil)

		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p1", MeetingID: "m1", UserID: "u1", ScreenShare: true},
		}, nil).Once()
		parts.On("UpdateFlags", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Return(nil).Once()

		p, err := tr.UpdateMedia(context.Background(), "m1", "u1", domain.MediaUpdate{ScreenShare: boolPtr(false)})
		require.NoError(t, err)
		assert.False(t, p.ScreenShare)
	})
}

func Test_Kick(t *testing.T) {
	meeting := &domain.Meeting{ID: "m1", Code: "ABC123", OwnerID: "owner", CreatedAt: time.Now()}

	t.Run("non-owner forbidden", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Once()
		tr := newTestPresence(&MockParticipantStore{}, meetings, nil)

		err := tr.Kick(context.Background(), "m1", "u2", "u3")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("self-kick rejected", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Once()
		tr := newTestPresence(&MockParticipantStore{}, meetings, nil)

		err := tr.Kick(context.Background(), "m1", "owner", "owner")
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("kick of inactive target reports not found", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Once()
		parts := &MockParticipantStore{}
		parts.On("LeaveAll", mock.Anything, "m1", "ghost", mock.AnythingOfType("time.Time")).
			Return(int64(0), nil).Once()
		tr := newTestPresence(parts, meetings, nil)

		err := tr.Kick(context.Background(), "m1", "owner", "ghost")
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	})

	t.Run("owner kick removes target, notifies and evicts", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Once()
		parts := &MockParticipantStore{}
		parts.On("LeaveAll", mock.Anything, "m1", "u2", mock.AnythingOfType("time.Time")).
			Return(int64(1), nil).Once()
		sink := &recordingSink{}
		tr := newTestPresence(parts, meetings, sink)

		require.NoError(t, tr.Kick(context.Background(), "m1", "owner", "u2"))
		assert.Equal(t, []string{EventParticipantKicked, EventYouWereKicked}, sink.Events())
		assert.Equal(t, []string{"u2"}, sink.evicted)
	})
}

func Test_SetMute(t *testing.T) {
	meeting := &domain.Meeting{ID: "m1", OwnerID: "owner", CreatedAt: time.Now()}

	t.Run("non-owner forbidden", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Once()
		tr := newTestPresence(&MockParticipantStore{}, meetings, nil)

		_, err := tr.SetMute(context.Background(), "m1", "u2", "u3", nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("toggle flips the mic", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Twice()
		parts := &MockParticipantStore{}
		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p2", MeetingID: "m1", UserID: "u2", MicOn: true},
		}, nil).Once()
		parts.On("UpdateFlags", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Return(nil).Twice()
		sink := &recordingSink{}
		tr := newTestPresence(parts, meetings, sink)

		p, err := tr.SetMute(context.Background(), "m1", "owner", "u2", nil)
		require.NoError(t, err)
		assert.False(t, p.MicOn)

		p, err = tr.SetMute(context.Background(), "m1", "owner", "u2", nil)
		require.NoError(t, err)
		assert.True(t, p.MicOn, "second toggle restores the mic")
		assert.Equal(t, []string{EventParticipantMuted, EventParticipantMuted}, sink.Events())
	})

	t.Run("forced state wins over current", func(t *testing.T) {
		meetings := &MockMeetingStore{}
		meetings.On("GetByID", mock.Anything, "m1").Return(meeting, nil).Once()
		parts := &MockParticipantStore{}
		parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
			{ID: "p2", MeetingID: "m1", UserID: "u2", MicOn: false},
		}, nil).Once()
		parts.On("UpdateFlags", mock.Anything, mock.AnythingOfType("*domain.Participant")).
			Return(nil).Once()
		tr := newTestPresence(parts, meetings, nil)

		p, err := tr.SetMute(context.Background(), "m1", "owner", "u2", boolPtr(false))
		require.NoError(t, err)
		assert.False(t, p.MicOn)
	})
}

func Test_ActiveParticipants_ordering(t *testing.T) {
	parts := &MockParticipantStore{}
	now := time.Now()
	parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
		{ID: "p3", MeetingID: "m1", UserID: "u3", JoinedAt: now},
		{ID: "p2", MeetingID: "m1", UserID: "u2", JoinedAt: now.Add(-time.Minute)},
		{ID: "p1", MeetingID: "m1", UserID: "u1", JoinedAt: now.Add(-2 * time.Minute)},
	}, nil).Once()
	tr := newTestPresence(parts, &MockMeetingStore{}, nil)

	active, err := tr.ActiveParticipants(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "u3", active[0].UserID, "most recent joiner first")
	assert.Equal(t, "u1", active[2].UserID)
}

func Test_roster_collapses_duplicate_rows(t *testing.T) {
	parts := &MockParticipantStore{}
	now := time.Now()
	// two active rows for u1, a historical defect; the newer one wins
	parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
		{ID: "p2", MeetingID: "m1", UserID: "u1", JoinedAt: now},
		{ID: "p1", MeetingID: "m1", UserID: "u1", JoinedAt: now.Add(-time.Hour)},
	}, nil).Once()
	tr := newTestPresence(parts, &MockMeetingStore{}, nil)

	active, err := tr.ActiveParticipants(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "p2", active[0].ID)
}

func Test_Stats(t *testing.T) {
	parts := &MockParticipantStore{}
	parts.On("CountAll", mock.Anything, "m1").Return(5, nil).Once()
	parts.On("ListActive", mock.Anything, "m1").Return([]domain.Participant{
		{ID: "p1", MeetingID: "m1", UserID: "u1", MicOn: true, CameraOn: true},
		{ID: "p2", MeetingID: "m1", UserID: "u2", ScreenShare: true},
	}, nil).Once()
	tr := newTestPresence(parts, &MockMeetingStore{}, nil)

	st, err := tr.Stats(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalJoined)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.MicOn)
	assert.Equal(t, 1, st.CameraOn)
	assert.Equal(t, "u2", st.ScreenSharer)
	assert.True(t, st.ScreenSharing)
}

func Test_lock_times_out_with_busy(t *testing.T) {
	tr := NewPresence(&MockMeetingStore{}, &MockParticipantStore{}, nil, 50, 50*time.Millisecond)

	unlock, err := tr.lock(context.Background(), "m1")
	require.NoError(t, err)
	defer unlock()

	_, err = tr.lock(context.Background(), "m1")
	assert.ErrorIs(t, err, domain.ErrBusy)
}
