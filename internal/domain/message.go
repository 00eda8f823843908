package domain

import "time"

type ChatMessage struct {
	ID        string    `db:"id"`
	MeetingID string    `db:"meeting_id"`
	SenderID  string    `db:"sender_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}
