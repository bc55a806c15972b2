package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/model"
	"qrattend/internal/store"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertPresence relies on UNIQUE (subject_id, student_id, day): a
// conflicting insert returns no row, so concurrent scans write at most once.
func (r *Repository) InsertPresence(ctx context.Context, rec model.Record) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, subject_id, student_id, recorded_at, day, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_id, student_id, day) DO NOTHING
		RETURNING id
	`, rec.ID, rec.SubjectID, rec.StudentID, rec.RecordedAt, rec.Day(), string(rec.Status), string(rec.Source)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, store.Classify(err)
	}
	return true, nil
}

// ApplyMarks runs the whole roster in one transaction. recorded_at and day
// take separate parameters: Postgres infers one type per placeholder.
func (r *Repository) ApplyMarks(ctx context.Context, subjectID string, day time.Time, marks []model.Mark) error {
	day = model.Day(day)
	return store.Classify(store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, m := range marks {
			if !m.Present {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM attendance WHERE subject_id = $1 AND student_id = $2 AND day = $3`,
					subjectID, m.StudentID, day); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO attendance (id, subject_id, student_id, recorded_at, day, status, source)
				VALUES ($1, $2, $3, $4, $5, 'present', 'manual')
				ON CONFLICT (subject_id, student_id, day) DO UPDATE SET status = 'present'
			`, uuid.NewString(), subjectID, m.StudentID, day, day); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (r *Repository) PresentOn(ctx context.Context, subjectID string, day time.Time) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM attendance
		WHERE subject_id = $1 AND day = $2 AND status = 'present'
	`, subjectID, model.Day(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// StudentRecords lists a student's records with subject names, newest first.
func (r *Repository) StudentRecords(ctx context.Context, studentID string) ([]model.StudentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.subject_id, a.student_id, a.recorded_at, a.status, a.source, s.name
		FROM attendance a
		JOIN subjects s ON s.id = a.subject_id
		WHERE a.student_id = $1
		ORDER BY a.recorded_at DESC, a.id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StudentRecord
	for rows.Next() {
		var (
			rec            model.StudentRecord
			status, source string
		)
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.StudentID, &rec.RecordedAt, &status, &source, &rec.SubjectName); err != nil {
			return nil, err
		}
		rec.Status, rec.Source = model.Status(status), model.Source(source)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SubjectAttendees lists present records with student details, newest day
// first.
func (r *Repository) SubjectAttendees(ctx context.Context, subjectID string) ([]model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.subject_id, a.student_id, a.recorded_at, a.status, a.source, u.name, u.email
		FROM attendance a
		JOIN users u ON u.id = a.student_id
		WHERE a.subject_id = $1 AND a.status = 'present'
		ORDER BY a.day DESC, u.name, u.id
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Attendee
	for rows.Next() {
		var (
			a              model.Attendee
			status, source string
		)
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.StudentID, &a.RecordedAt, &status, &source, &a.Name, &a.Email); err != nil {
			return nil, err
		}
		a.Status, a.Source = model.Status(status), model.Source(source)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) SubjectDays(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT day) FROM attendance WHERE subject_id = $1`, subjectID).Scan(&n)
	return n, err
}

func (r *Repository) CountPresent(ctx context.Context, subjectID, studentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance
		WHERE subject_id = $1 AND student_id = $2 AND status = 'present'
	`, subjectID, studentID).Scan(&n)
	return n, err
}
