package model

import "time"

// Role is the account type chosen at signup.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// User is a student or teacher account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	DeviceID     string    `json:"-"` // empty when unbound
	CreatedAt    time.Time `json:"created_at"`
}

// DeviceBound reports whether the account is locked to a device.
func (u User) DeviceBound() bool { return u.DeviceID != "" }

// Class groups a roster of students and an ordered list of subjects.
type Class struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TeacherID  string    `json:"teacher_id"`
	StudentIDs []string  `json:"student_ids"`
	SubjectIDs []string  `json:"subject_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Subject belongs to exactly one class.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Source tells how a record was written.
type Source string

const (
	SourceScan   Source = "scan"
	SourceManual Source = "manual"
)

// Record is one attendance entry. At most one exists per (subject, student, UTC day).
type Record struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	StudentID  string    `json:"student_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Status     Status    `json:"status"`
	Source     Source    `json:"source"`
}

// Day returns the record's UTC calendar day.
func (r Record) Day() time.Time { return Day(r.RecordedAt) }

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Mark is one row of a manual roster submission.
type Mark struct {
	StudentID string `json:"studentId"`
	Present   bool   `json:"isPresent"`
}

// StudentRecord is a record joined with its subject name.
type StudentRecord struct {
	Record
	SubjectName string
}

// Attendee is a present record joined with the student's details.
type Attendee struct {
	Record
	Name  string
	Email string
}

// ScanEvent is the audit trail entry for one scan attempt.
type ScanEvent struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subject_id"`
	StudentID     string    `json:"student_id"`
	Outcome       string    `json:"outcome"`
	TokenIssuedAt time.Time `json:"token_issued_at,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}
