package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meethub/meeting-service/internal/domain"
)

type MeetingRepository struct {
	db *pgxpool.Pool
}

func NewMeetingRepository(db *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{db: db}
}

func (r *MeetingRepository) Create(ctx context.Context, m *domain.Meeting) error {
	query := `
		INSERT INTO meetings (code, owner_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, strings.ToUpper(m.Code), m.OwnerID, m.Title).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 — нарушение уникальности кода; caller перегенерирует код
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrCodeTaken
		}
		return err
	}
	m.Code = strings.ToUpper(m.Code)
	return nil
}

func (r *MeetingRepository) GetByID(ctx context.Context, id string) (*domain.Meeting, error) {
	query := `SELECT id, code, owner_id, title, created_at, ended_at FROM meetings WHERE id=$1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *MeetingRepository) GetByCode(ctx context.Context, code string) (*domain.Meeting, error) {
	query := `SELECT id, code, owner_id, title, created_at, ended_at FROM meetings WHERE code=upper($1)`
	return r.scanOne(r.db.QueryRow(ctx, query, code))
}

func (r *MeetingRepository) scanOne(row pgx.Row) (*domain.Meeting, error) {
	var m domain.Meeting
	err := row.Scan(&m.ID, &m.Code, &m.OwnerID, &m.Title, &m.CreatedAt, &m.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMeetingNotFound
		}
		return nil, err
	}
	return &m, nil
}

// End переводит встречу в ended и той же транзакцией закрывает все активные
// строки участников. Повторный вызов — ErrAlreadyEnded.
func (r *MeetingRepository) End(ctx context.Context, meetingID string) (time.Time, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback(ctx)

	var endedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE meetings SET ended_at = now()
		WHERE id = $1 AND ended_at IS NULL
		RETURNING ended_at
	`, meetingID).Scan(&endedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM meetings WHERE id=$1)`, meetingID).Scan(&exists); err != nil {
				return time.Time{}, err
			}
			if exists {
				return time.Time{}, domain.ErrAlreadyEnded
			}
			return time.Time{}, domain.ErrMeetingNotFound
		}
		return time.Time{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE participants SET left_at = $2, updated_at = $2
		WHERE meeting_id = $1 AND left_at IS NULL
	`, meetingID, endedAt); err != nil {
		return time.Time{}, err
	}

	return endedAt, tx.Commit(ctx)
}

// ListIdleOpen возвращает открытые встречи без активных участников — кандидаты на expiry.
func (r *MeetingRepository) ListIdleOpen(ctx context.Context, limit int) ([]domain.Meeting, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT m.id, m.code, m.owner_id, m.title, m.created_at, m.ended_at
		FROM meetings m
		WHERE m.ended_at IS NULL
		  AND NOT EXISTS (
		    SELECT 1 FROM participants p
		    WHERE p.meeting_id = m.id AND p.left_at IS NULL
		  )
		  AND EXISTS (SELECT 1 FROM participants p WHERE p.meeting_id = m.id)
		ORDER BY m.created_at
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Meeting
	for rows.Next() {
		var m domain.Meeting
		if err := rows.Scan(&m.ID, &m.Code, &m.OwnerID, &m.Title, &m.CreatedAt, &m.EndedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
