package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"liveclass-service/internal/domain"
)

// ResponseStore persists responses; the unique (session_id, slide_id, student_id)
// index makes the first insert win.
type ResponseStore struct {
	pool *pgxpool.Pool
}

func NewResponseStore(pool *pgxpool.Pool) *ResponseStore {
	return &ResponseStore{pool: pool}
}

func (s *ResponseStore) InsertResponse(ctx context.Context, r domain.Response) (bool, error) {
	tag, err := s.pool.Exec(ctx, `INSERT INTO responses
		(id, session_id, slide_id, student_id, student_name, option_id, is_correct, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, slide_id, student_id) DO NOTHING`,
		r.ID, r.SessionID, r.SlideID, r.StudentID, r.StudentName, r.OptionID, r.IsCorrect, r.ResponseTimeMs, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert response: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ResponseStore) ListResponses(ctx context.Context, sessionID, slideID string) ([]domain.Response, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, session_id, slide_id, student_id, student_name, option_id, is_correct, response_time_ms, created_at
		FROM responses WHERE session_id=$1 AND slide_id=$2 ORDER BY created_at, id`, sessionID, slideID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Response, 0)
	for rows.Next() {
		var r domain.Response
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SlideID, &r.StudentID, &r.StudentName, &r.OptionID, &r.IsCorrect, &r.ResponseTimeMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return out, nil
}
