// Package storetest connects repository tests to a real Postgres.
//
// Tests using it are skipped unless TEST_DATABASE_URL is set. Packages run
// in parallel against the same database, so fixtures use fresh ids and
// nothing is truncated.
package storetest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/store"
)

// EnvURL names the connection string variable.
const EnvURL = "TEST_DATABASE_URL"

// Open connects, applies migrations and closes the pool when t ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skip(EnvURL + " not set")
	}
	db, err := store.NewDB(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(db.Client); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.Client
}

// User inserts an account and returns its id.
func User(t testing.TB, db *sql.DB, role string) string {
	t.Helper()
	id := uuid.NewString()
	exec(t, db, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, 'x', $4)
	`, id, "user "+id[:8], id+"@example.com", role)
	return id
}

// Class inserts a class owned by teacherID with the given roster.
func Class(t testing.TB, db *sql.DB, teacherID string, studentIDs ...string) string {
	t.Helper()
	id := uuid.NewString()
	exec(t, db, `INSERT INTO classes (id, name, teacher_id) VALUES ($1, $2, $3)`, id, "class "+id[:8], teacherID)
	for _, s := range studentIDs {
		exec(t, db, `INSERT INTO class_students (class_id, student_id) VALUES ($1, $2)`, id, s)
	}
	return id
}

// Subject inserts a subject into classID.
func Subject(t testing.TB, db *sql.DB, classID, teacherID string) string {
	t.Helper()
	id := uuid.NewString()
	exec(t, db, `INSERT INTO subjects (id, name, class_id, teacher_id) VALUES ($1, $2, $3, $4)`,
		id, "subject "+id[:8], classID, teacherID)
	return id
}

// Present inserts a scanned present record for the UTC day of at.
func Present(t testing.TB, db *sql.DB, subjectID, studentID string, at time.Time) {
	t.Helper()
	y, m, d := at.UTC().Date()
	exec(t, db, `
		INSERT INTO attendance (id, subject_id, student_id, recorded_at, day, status, source)
		VALUES ($1, $2, $3, $4, $5, 'present', 'scan')
	`, uuid.NewString(), subjectID, studentID, at, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// Count runs a COUNT(*) query.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("fixture: %v", err)
	}
}
