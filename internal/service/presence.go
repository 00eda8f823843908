package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meethub/meeting-service/internal/domain"
)

// LeaveCause distinguishes an explicit leave from a dropped connection; the
// resulting state transition is identical, only the broadcast differs.
type LeaveCause int

const (
	LeaveExplicit LeaveCause = iota
	LeaveDisconnect
)

// Presence is the authoritative in-memory view of active participants per
// meeting. Persisted rows remain the source of truth across restarts; the
// cache here is read-through and rebuilt on demand, but all mutations go
// through it under a per-meeting lock so concurrent joins, leaves and
// screen-share grabs resolve deterministically.
//
// Cached rows are treated as immutable: updates replace the pointer under mu,
// never write through it, so readers can copy without holding the meeting lock.
type Presence struct {
	meetings MeetingStore
	parts    ParticipantStore
	sink     EventSink

	capacity    int
	lockTimeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
	// meetingID -> userID -> active row
	cache map[string]map[string]*domain.Participant
}

func NewPresence(meetings MeetingStore, parts ParticipantStore, sink EventSink, capacity int, lockTimeout time.Duration) *Presence {
	if sink == nil {
		sink = NopSink{}
	}
	if capacity <= 0 {
		capacity = 50
	}
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Presence{
		meetings:    meetings,
		parts:       parts,
		sink:        sink,
		capacity:    capacity,
		lockTimeout: lockTimeout,
		locks:       make(map[string]chan struct{}),
		cache:       make(map[string]map[string]*domain.Participant),
	}
}

// lock serializes mutations per meeting. A semaphore channel instead of a
// mutex so acquisition can be bounded by the caller's context.
func (t *Presence) lock(ctx context.Context, meetingID string) (func(), error) {
	t.mu.Lock()
	ch, ok := t.locks[meetingID]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[meetingID] = ch
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.lockTimeout)
	defer cancel()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, domain.ErrBusy
	}
}

// roster returns a snapshot of the active set, loading it from storage on
// first access. Duplicate active rows (a historical defect) collapse to the
// most recently joined one.
func (t *Presence) roster(ctx context.Context, meetingID string) (map[string]*domain.Participant, error) {
	t.mu.Lock()
	if set, ok := t.cache[meetingID]; ok {
		snap := snapshot(set)
		t.mu.Unlock()
		return snap, nil
	}
	t.mu.Unlock()

	rows, err := t.parts.ListActive(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}

	set := make(map[string]*domain.Participant, len(rows))
	for i := range rows {
		p := rows[i]
		// rows come most-recently-joined first; keep the first per user
		if _, ok := set[p.UserID]; !ok {
			set[p.UserID] = &p
		}
	}

	t.mu.Lock()
	// another goroutine may have populated the cache meanwhile; keep theirs
	if cached, ok := t.cache[meetingID]; ok {
		set = cached
	} else {
		t.cache[meetingID] = set
	}
	snap := snapshot(set)
	t.mu.Unlock()
	return snap, nil
}

func snapshot(set map[string]*domain.Participant) map[string]*domain.Participant {
	snap := make(map[string]*domain.Participant, len(set))
	for k, v := range set {
		snap[k] = v
	}
	return snap
}

// store replaces (or removes, for nil) the cached row of one user.
func (t *Presence) store(meetingID, userID string, p *domain.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.cache[meetingID]
	if !ok {
		return
	}
	if p == nil {
		delete(set, userID)
		return
	}
	set[userID] = p
}

// Join registers the user as active, reusing the existing row on a duplicate
// join. The returned flag reports whether the user was already active so the
// caller can suppress duplicate broadcasts.
func (t *Presence) Join(ctx context.Context, meetingID, userID string) (*domain.Participant, bool, error) {
	if meetingID == "" || userID == "" {
		return nil, false, domain.ErrInvalidRequest
	}

	unlock, err := t.lock(ctx, meetingID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	set, err := t.roster(ctx, meetingID)
	if err != nil {
		return nil, false, err
	}

	if existing, ok := set[userID]; ok {
		cp := *existing
		return &cp, true, nil
	}

	// the pure can-join check runs without the lock; re-check capacity here
	// so two concurrent joins cannot both take the last slot
	if len(set) >= t.capacity {
		return nil, false, domain.ErrMeetingFull
	}

	p := &domain.Participant{
		MeetingID: meetingID,
		UserID:    userID,
		MicOn:     true,
		CameraOn:  true,
	}
	if err := t.parts.Create(ctx, p); err != nil {
		return nil, false, fmt.Errorf("create participant: %w", err)
	}
	t.store(meetingID, userID, p)

	cp := *p
	t.sink.BroadcastExcept(meetingID, userID, EventParticipantJoined, toParticipantPayload(p))
	return &cp, false, nil
}

// Leave closes every active row of the pair, collapsing duplicates if any
// slipped into storage. No-op when the user is not active.
func (t *Presence) Leave(ctx context.Context, meetingID, userID string, cause LeaveCause) error {
	unlock, err := t.lock(ctx, meetingID)
	if err != nil {
		return err
	}
	defer unlock()

	rows, err := t.parts.LeaveAll(ctx, meetingID, userID, time.Now())
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	t.store(meetingID, userID, nil)

	if rows == 0 {
		return nil
	}

	event := EventParticipantLeft
	if cause == LeaveDisconnect {
		event = EventParticipantDisconnected
	}
	t.sink.Broadcast(meetingID, event, PresencePayload{MeetingID: meetingID, UserID: userID})
	return nil
}

// UpdateMedia applies a partial flag update. Granting screen share clears the
// flag on every other active participant in the same storage transaction;
// concurrent grabs serialize on the meeting lock, last commit wins, and the
// broadcast carries the resolved holder.
func (t *Presence) UpdateMedia(ctx context.Context, meetingID, userID string, upd domain.MediaUpdate) (*domain.Participant, error) {
	if upd.Empty() {
		return nil, domain.ErrInvalidRequest
	}

	unlock, err := t.lock(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	set, err := t.roster(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	cur, ok := set[userID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}

	next := *cur
	if upd.MicOn != nil {
		next.MicOn = *upd.MicOn
	}
	if upd.CameraOn != nil {
		next.CameraOn = *upd.CameraOn
	}
	grabShare := upd.ScreenShare != nil && *upd.ScreenShare && !cur.ScreenShare
	if upd.ScreenShare != nil {
		next.ScreenShare = *upd.ScreenShare
	}

	if grabShare {
		// one transaction: clear other holders and write every flag of the
		// target, so storage and cache cannot drift on a partial failure
		updatedAt, err := t.parts.GrantScreenShare(ctx, &next)
		if err != nil {
			return nil, err
		}
		next.UpdatedAt = updatedAt
		for uid, other := range set {
			if uid != userID && other.ScreenShare {
				cleared := *other
				cleared.ScreenShare = false
				t.store(meetingID, uid, &cleared)
			}
		}
	} else {
		if err := t.parts.UpdateFlags(ctx, &next); err != nil {
			return nil, err
		}
	}
	t.store(meetingID, userID, &next)

	sharer := ""
	if next.ScreenShare {
		sharer = userID
	} else if !grabShare {
		for uid, other := range set {
			if uid != userID && other.ScreenShare {
				sharer = uid
				break
			}
		}
	}

	cp := next
	t.sink.Broadcast(meetingID, EventStatusUpdated, StatusPayload{
		Participant:  toParticipantPayload(&next),
		ScreenSharer: sharer,
	})
	return &cp, nil
}

// Kick removes the target from the active set and severs their live
// connections. Owner-only; the owner cannot kick themselves.
func (t *Presence) Kick(ctx context.Context, meetingID, ownerID, targetUserID string) error {
	m, err := t.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if m.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	if targetUserID == ownerID {
		return domain.ErrInvalidRequest
	}

	unlock, err := t.lock(ctx, meetingID)
	if err != nil {
		return err
	}
	defer unlock()

	rows, err := t.parts.LeaveAll(ctx, meetingID, targetUserID, time.Now())
	if err != nil {
		return fmt.Errorf("kick: %w", err)
	}
	if rows == 0 {
		return domain.ErrParticipantNotFound
	}
	t.store(meetingID, targetUserID, nil)

	t.sink.Broadcast(meetingID, EventParticipantKicked, PresencePayload{MeetingID: meetingID, UserID: targetUserID})
	t.sink.Notify(meetingID, targetUserID, EventYouWereKicked, PresencePayload{MeetingID: meetingID, UserID: targetUserID})
	t.sink.EvictUser(meetingID, targetUserID)
	return nil
}

// SetMute forces or toggles the target's mic. Owner-only.
func (t *Presence) SetMute(ctx context.Context, meetingID, ownerID, targetUserID string, forced *bool) (*domain.Participant, error) {
	m, err := t.meetings.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}

	unlock, err := t.lock(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	set, err := t.roster(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	cur, ok := set[targetUserID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}

	next := *cur
	if forced != nil {
		next.MicOn = *forced
	} else {
		next.MicOn = !next.MicOn
	}
	if err := t.parts.UpdateFlags(ctx, &next); err != nil {
		return nil, err
	}
	t.store(meetingID, targetUserID, &next)

	cp := next
	t.sink.Broadcast(meetingID, EventParticipantMuted, MutedPayload{
		MeetingID: meetingID,
		UserID:    targetUserID,
		MicOn:     next.MicOn,
	})
	return &cp, nil
}

// ActiveParticipants returns active rows, most recently joined first,
// deduplicated by user.
func (t *Presence) ActiveParticipants(ctx context.Context, meetingID string) ([]domain.Participant, error) {
	set, err := t.roster(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Participant, 0, len(set))
	for _, p := range set {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Stats aggregates counters for one meeting.
func (t *Presence) Stats(ctx context.Context, meetingID string) (*domain.MeetingStats, error) {
	total, err := t.parts.CountAll(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	active, err := t.ActiveParticipants(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	st := &domain.MeetingStats{
		TotalJoined: total,
		Active:      len(active),
	}
	for _, p := range active {
		if p.MicOn {
			st.MicOn++
		}
		if p.CameraOn {
			st.CameraOn++
		}
		if p.ScreenShare {
			st.ScreenSharer = p.UserID
			st.ScreenSharing = true
		}
	}
	return st, nil
}

// DropMeeting discards the cached roster, e.g. after the meeting ended.
func (t *Presence) DropMeeting(meetingID string) {
	t.mu.Lock()
	delete(t.cache, meetingID)
	t.mu.Unlock()
}
