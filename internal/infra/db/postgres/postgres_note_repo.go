package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/repository"
)

var _ repository.NoteRepository = (*noteRepo)(nil)

type noteRepo struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) *noteRepo {
	return &noteRepo{pool: pool}
}

func (r *noteRepo) RecentNotes(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Note, error) {
	const q = `
SELECT n.id, n.summary, n.key_insights, n.created_at,
       COALESCE(s.title, ''), s.url, COALESCE(s.domain, '')
FROM notes n
JOIN sources s ON s.id = n.source_id
WHERE n.user_id = $1
  AND ($2::timestamptz IS NULL OR n.created_at >= $2)
ORDER BY n.created_at DESC
LIMIT $3;`

	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}
	rows, err := r.pool.Query(ctx, q, userID, sinceArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var (
			n        model.Note
			insights []byte
		)
		if err := rows.Scan(&n.ID, &n.Summary, &insights, &n.CreatedAt, &n.Title, &n.URL, &n.Domain); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if len(insights) > 0 {
			// tolerate legacy rows holding a non-array value
			_ = json.Unmarshal(insights, &n.KeyInsights)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
