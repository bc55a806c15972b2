package catalog

import (
	"context"
	"database/sql"

	"qrattend/internal/model"
	"qrattend/internal/store"
)

// Repository stores the catalog in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateClass(ctx context.Context, c model.Class) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO classes (id, name, teacher_id, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.TeacherID, c.CreatedAt)
	return store.Classify(err)
}

func (r *Repository) ClassByID(ctx context.Context, id string) (model.Class, error) {
	var c model.Class
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, teacher_id, created_at FROM classes WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.TeacherID, &c.CreatedAt)
	if err != nil {
		return model.Class{}, store.Classify(err)
	}
	if err := r.fillMembers(ctx, &c); err != nil {
		return model.Class{}, err
	}
	return c, nil
}

func (r *Repository) ClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	return r.listClasses(ctx, `
		SELECT id, name, teacher_id, created_at FROM classes
		WHERE teacher_id = $1
		ORDER BY created_at, id
	`, teacherID)
}

func (r *Repository) ClassesByStudent(ctx context.Context, studentID string) ([]model.Class, error) {
	return r.listClasses(ctx, `
		SELECT c.id, c.name, c.teacher_id, c.created_at FROM classes c
		JOIN class_students cs ON cs.class_id = c.id
		WHERE cs.student_id = $1
		ORDER BY c.created_at, c.id
	`, studentID)
}

func (r *Repository) listClasses(ctx context.Context, query string, arg string) ([]model.Class, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	var out []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.TeacherID, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.fillMembers(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) fillMembers(ctx context.Context, c *model.Class) error {
	var err error
	c.StudentIDs, err = r.ids(ctx,
		`SELECT student_id FROM class_students WHERE class_id = $1 ORDER BY joined_at, student_id`, c.ID)
	if err != nil {
		return err
	}
	c.SubjectIDs, err = r.ids(ctx,
		`SELECT id FROM subjects WHERE class_id = $1 ORDER BY position, created_at`, c.ID)
	return err
}

func (r *Repository) ids(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddStudent is idempotent; an unknown class or student yields store.ErrNotFound.
func (r *Repository) AddStudent(ctx context.Context, classID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_students (class_id, student_id, joined_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (class_id, student_id) DO NOTHING
	`, classID, studentID)
	return store.Classify(err)
}

// RemoveStudent is a no-op for a student not on the roster; an unknown class
// is store.ErrNotFound.
func (r *Repository) RemoveStudent(ctx context.Context, classID, studentID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM class_students WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return store.Classify(err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)`, classID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) Students(ctx context.Context, classID string) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.role, COALESCE(u.device_id, ''), u.created_at
		FROM class_students cs
		JOIN users u ON u.id = cs.student_id
		WHERE cs.class_id = $1
		ORDER BY u.name, u.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var (
			u    model.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.DeviceID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = model.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repository) TeacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM class_students cs
			JOIN classes c ON c.id = cs.class_id
			WHERE c.teacher_id = $1 AND cs.student_id = $2
		)
	`, teacherID, studentID).Scan(&ok)
	return ok, err
}

// CreateSubject appends the subject to the end of its class's list.
func (r *Repository) CreateSubject(ctx context.Context, s model.Subject) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, class_id, teacher_id, position, created_at)
		SELECT $1, $2, $3, $4, COALESCE(MAX(position), 0) + 1, $5
		FROM subjects WHERE class_id = $3
	`, s.ID, s.Name, s.ClassID, s.TeacherID, s.CreatedAt)
	return store.Classify(err)
}

func (r *Repository) SubjectByID(ctx context.Context, id string) (model.Subject, error) {
	var s model.Subject
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, class_id, teacher_id, created_at FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.ClassID, &s.TeacherID, &s.CreatedAt)
	return s, store.Classify(err)
}

func (r *Repository) SubjectsByClass(ctx context.Context, classID string) ([]model.Subject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, class_id, teacher_id, created_at FROM subjects
		WHERE class_id = $1
		ORDER BY position, created_at
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subject{}
	for rows.Next() {
		var s model.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.ClassID, &s.TeacherID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteClass removes attendance, subjects, roster and class, children
// first, in one transaction.
func (r *Repository) DeleteClass(ctx context.Context, id string) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attendance WHERE subject_id IN (SELECT id FROM subjects WHERE class_id = $1)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE class_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM class_students WHERE class_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return store.RequireRows(res)
	})
}

// DeleteSubject removes the subject's attendance and then the subject.
func (r *Repository) DeleteSubject(ctx context.Context, id string) error {
	return store.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE subject_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return store.RequireRows(res)
	})
}
