package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meethub/meeting-service/internal/domain"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Save(ctx context.Context, meetingID, senderID, content string) (*domain.ChatMessage, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO messages (meeting_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, meeting_id, sender_id, content, created_at
	`, meetingID, senderID, content)

	var m domain.ChatMessage
	if err := row.Scan(&m.ID, &m.MeetingID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// History возвращает историю сообщений встречи с курсорной пагинацией (created_at,id DESC).
func (r *ChatRepository) History(ctx context.Context, meetingID, after string, limit int) ([]domain.ChatMessage, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	const baseQuery = `
		SELECT id, meeting_id, sender_id, content, created_at
		FROM messages
		WHERE meeting_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, baseQuery, meetingID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.MeetingID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(cursorAfter(last)); e == nil {
			next = c
		}
	}
	return out, next, rows.Err()
}
