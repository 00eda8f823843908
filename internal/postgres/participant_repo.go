package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meethub/meeting-service/internal/domain"
)

type ParticipantRepository struct {
	db *pgxpool.Pool
}

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantCols = `id, meeting_id, user_id, joined_at, left_at, is_mic_on, is_camera_on, is_screen_share, updated_at`

func scanParticipant(row pgx.Row, p *domain.Participant) error {
	return row.Scan(&p.ID, &p.MeetingID, &p.UserID, &p.JoinedAt, &p.LeftAt,
		&p.MicOn, &p.CameraOn, &p.ScreenShare, &p.UpdatedAt)
}

func (r *ParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	query := `
		INSERT INTO participants (meeting_id, user_id, is_mic_on, is_camera_on, is_screen_share)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, joined_at, updated_at`
	return r.db.QueryRow(ctx, query,
		p.MeetingID, p.UserID, p.MicOn, p.CameraOn, p.ScreenShare).
		Scan(&p.ID, &p.JoinedAt, &p.UpdatedAt)
}

// FindActive возвращает самую свежую активную строку пары (meeting, user).
func (r *ParticipantRepository) FindActive(ctx context.Context, meetingID, userID string) (*domain.Participant, error) {
	query := `
		SELECT ` + participantCols + `
		FROM participants
		WHERE meeting_id=$1 AND user_id=$2 AND left_at IS NULL
		ORDER BY joined_at DESC, id DESC
		LIMIT 1`

	var p domain.Participant
	if err := scanParticipant(r.db.QueryRow(ctx, query, meetingID, userID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) ListActive(ctx context.Context, meetingID string) ([]domain.Participant, error) {
	query := `
		SELECT ` + participantCols + `
		FROM participants
		WHERE meeting_id=$1 AND left_at IS NULL
		ORDER BY joined_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *ParticipantRepository) CountActive(ctx context.Context, meetingID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE meeting_id=$1 AND left_at IS NULL`,
		meetingID).Scan(&n)
	return n, err
}

func (r *ParticipantRepository) CountAll(ctx context.Context, meetingID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE meeting_id=$1`, meetingID).Scan(&n)
	return n, err
}

// LeaveAll закрывает все активные строки пары, в том числе исторические дубликаты.
func (r *ParticipantRepository) LeaveAll(ctx context.Context, meetingID, userID string, at time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE participants SET left_at=$3, updated_at=$3
		WHERE meeting_id=$1 AND user_id=$2 AND left_at IS NULL
	`, meetingID, userID, at)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ParticipantRepository) UpdateFlags(ctx context.Context, p *domain.Participant) error {
	query := `
		UPDATE participants
		SET is_mic_on=$2, is_camera_on=$3, is_screen_share=$4, updated_at=now()
		WHERE id=$1 AND left_at IS NULL
		RETURNING updated_at`
	err := r.db.QueryRow(ctx, query, p.ID, p.MicOn, p.CameraOn, p.ScreenShare).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		return err
	}
	return nil
}

// GrantScreenShare атомарно снимает флаг со всех участников встречи и пишет
// target-у все медиа-флаги одной транзакцией. Сериализация конкурентов — на
// стороне presence-трекера; транзакция гарантирует, что промежуточное
// состояние с двумя шарящими не будет зафиксировано.
func (r *ParticipantRepository) GrantScreenShare(ctx context.Context, p *domain.Participant) (time.Time, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE participants SET is_screen_share=false, updated_at=now()
		WHERE meeting_id=$1 AND left_at IS NULL AND is_screen_share AND id <> $2
	`, p.MeetingID, p.ID); err != nil {
		return time.Time{}, err
	}

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE participants
		SET is_screen_share=true, is_mic_on=$2, is_camera_on=$3, updated_at=now()
		WHERE id=$1 AND left_at IS NULL
		RETURNING updated_at
	`, p.ID, p.MicOn, p.CameraOn).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrParticipantNotFound
		}
		return time.Time{}, err
	}

	return updatedAt, tx.Commit(ctx)
}
