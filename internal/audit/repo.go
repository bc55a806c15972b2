package audit

import (
	"context"
	"database/sql"
	"time"

	"qrattend/internal/model"
)

// Repository stores scan events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertScanEvent(ctx context.Context, e model.ScanEvent) error {
	var issued sql.NullTime
	if !e.TokenIssuedAt.IsZero() {
		issued = sql.NullTime{Time: e.TokenIssuedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_audit (id, subject_id, student_id, outcome, token_issued_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.SubjectID, e.StudentID, e.Outcome, issued, e.ReceivedAt)
	return err
}

func (r *Repository) RecentScanEvents(ctx context.Context, subjectID string, limit int) ([]model.ScanEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject_id, student_id, outcome, token_issued_at, received_at
		FROM scan_audit
		WHERE subject_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ScanEvent
	for rows.Next() {
		var (
			e      model.ScanEvent
			issued sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.StudentID, &e.Outcome, &issued, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.TokenIssuedAt = issued.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) PurgeScanEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scan_audit WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
