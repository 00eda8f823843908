package domain

import "time"

// CodeLength — длина публичного кода встречи.
const CodeLength = 6

type Meeting struct {
	ID        string     `db:"id"`
	Code      string     `db:"code"` // 6 alphanumeric chars, unique, stored uppercase
	OwnerID   string     `db:"owner_id"`
	Title     string     `db:"title"`
	CreatedAt time.Time  `db:"created_at"`
	EndedAt   *time.Time `db:"ended_at"` // nil while the meeting is open
}

// Ended reports whether the meeting reached its terminal state.
func (m *Meeting) Ended() bool {
	return m.EndedAt != nil
}

// JoinDecision is the outcome of a pure can-join check. It never mutates state,
// so callers are free to retry.
type JoinDecision string

const (
	JoinOK            JoinDecision = "ok"
	JoinNotFound      JoinDecision = "not_found"
	JoinEnded         JoinDecision = "ended"
	JoinAlreadyJoined JoinDecision = "already_joined"
	JoinFull          JoinDecision = "full"
)
