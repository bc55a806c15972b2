// Package memstore is an in-process implementation of every persistence
// interface the services use. One mutex guards all maps, so multi-row
// operations (cascading deletes, roster overrides, idempotent inserts) are
// atomic exactly as they are inside a Postgres transaction.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/model"
	"qrattend/internal/store"
)

type recordKey struct {
	subjectID string
	studentID string
	day       time.Time
}

// Store holds users, classes, subjects, attendance and scan audit rows.
type Store struct {
	mu sync.Mutex

	users    map[string]model.User
	emails   map[string]string // lower-cased email -> user id
	classes  map[string]*model.Class
	subjects map[string]model.Subject
	records  map[recordKey]model.Record
	audit    map[string]model.ScanEvent
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]model.User),
		emails:   make(map[string]string),
		classes:  make(map[string]*model.Class),
		subjects: make(map[string]model.Subject),
		records:  make(map[recordKey]model.Record),
		audit:    make(map[string]model.ScanEvent),
	}
}

// Healthy always reports true.
func (s *Store) Healthy(context.Context) bool { return true }

// ---- users ----

func (s *Store) CreateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, taken := s.emails[key]; taken {
		return store.ErrConflict
	}
	if _, taken := s.users[u.ID]; taken {
		return store.ErrConflict
	}
	s.users[u.ID] = u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) BindDevice(_ context.Context, userID, deviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", store.ErrNotFound
	}
	if u.DeviceID == "" {
		u.DeviceID = deviceID
		s.users[userID] = u
	}
	return u.DeviceID, nil
}

func (s *Store) ClearDevice(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.DeviceID = ""
	s.users[userID] = u
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	s.users[userID] = u
	return nil
}

// ---- classes and subjects ----

func (s *Store) CreateClass(_ context.Context, c model.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.TeacherID]; !ok {
		return store.ErrNotFound
	}
	if _, taken := s.classes[c.ID]; taken {
		return store.ErrConflict
	}
	c.StudentIDs = nil
	c.SubjectIDs = nil
	s.classes[c.ID] = &c
	return nil
}

func (s *Store) ClassByID(_ context.Context, id string) (model.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return model.Class{}, store.ErrNotFound
	}
	return copyClass(c), nil
}

func (s *Store) ClassesByTeacher(_ context.Context, teacherID string) ([]model.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterClasses(func(c *model.Class) bool { return c.TeacherID == teacherID }), nil
}

func (s *Store) ClassesByStudent(_ context.Context, studentID string) ([]model.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterClasses(func(c *model.Class) bool { return contains(c.StudentIDs, studentID) }), nil
}

func (s *Store) AddStudent(_ context.Context, classID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := s.users[studentID]; !ok {
		return store.ErrNotFound
	}
	if !contains(c.StudentIDs, studentID) {
		c.StudentIDs = append(c.StudentIDs, studentID)
	}
	return nil
}

func (s *Store) RemoveStudent(_ context.Context, classID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return store.ErrNotFound
	}
	c.StudentIDs = without(c.StudentIDs, studentID)
	return nil
}

func (s *Store) Students(_ context.Context, classID string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.User, 0, len(c.StudentIDs))
	for _, id := range c.StudentIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) TeacherHasStudent(_ context.Context, teacherID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.classes {
		if c.TeacherID == teacherID && contains(c.StudentIDs, studentID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateSubject(_ context.Context, sub model.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[sub.ClassID]
	if !ok {
		return store.ErrNotFound
	}
	if _, taken := s.subjects[sub.ID]; taken {
		return store.ErrConflict
	}
	s.subjects[sub.ID] = sub
	c.SubjectIDs = append(c.SubjectIDs, sub.ID)
	return nil
}

func (s *Store) SubjectByID(_ context.Context, id string) (model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok {
		return model.Subject{}, store.ErrNotFound
	}
	return sub, nil
}

func (s *Store) SubjectsByClass(_ context.Context, classID string) ([]model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]model.Subject, 0, len(c.SubjectIDs))
	for _, id := range c.SubjectIDs {
		out = append(out, s.subjects[id])
	}
	return out, nil
}

// DeleteClass removes the class, its subjects and their attendance.
func (s *Store) DeleteClass(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, subID := range c.SubjectIDs {
		s.dropSubjectLocked(subID)
	}
	delete(s.classes, id)
	return nil
}

// DeleteSubject removes the subject and its attendance and detaches it from
// its class.
func (s *Store) DeleteSubject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok {
		return store.ErrNotFound
	}
	if c, ok := s.classes[sub.ClassID]; ok {
		c.SubjectIDs = without(c.SubjectIDs, id)
	}
	s.dropSubjectLocked(id)
	return nil
}

func (s *Store) dropSubjectLocked(id string) {
	for k := range s.records {
		if k.subjectID == id {
			delete(s.records, k)
		}
	}
	delete(s.subjects, id)
}

// ---- attendance ----

// InsertPresence stores r unless a record already exists for its
// (subject, student, day). It reports whether a row was written.
func (s *Store) InsertPresence(_ context.Context, r model.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[r.SubjectID]; !ok {
		return false, store.ErrNotFound
	}
	if _, ok := s.users[r.StudentID]; !ok {
		return false, store.ErrNotFound
	}
	k := recordKey{r.SubjectID, r.StudentID, r.Day()}
	if _, exists := s.records[k]; exists {
		return false, nil
	}
	s.records[k] = r
	return true, nil
}

// ApplyMarks upserts present marks and deletes absent ones for one day.
// Either every mark is applied or none is.
func (s *Store) ApplyMarks(_ context.Context, subjectID string, day time.Time, marks []model.Mark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[subjectID]; !ok {
		return store.ErrNotFound
	}
	for _, m := range marks {
		if _, ok := s.users[m.StudentID]; !ok {
			return store.ErrNotFound
		}
	}
	day = model.Day(day)
	for _, m := range marks {
		k := recordKey{subjectID, m.StudentID, day}
		if !m.Present {
			delete(s.records, k)
			continue
		}
		r, exists := s.records[k]
		if !exists {
			r = model.Record{
				ID:         uuid.NewString(),
				SubjectID:  subjectID,
				StudentID:  m.StudentID,
				RecordedAt: day,
				Source:     model.SourceManual,
			}
		}
		r.Status = model.StatusPresent
		s.records[k] = r
	}
	return nil
}

// PresentOn returns the ids of students present for the subject on day.
func (s *Store) PresentOn(_ context.Context, subjectID string, day time.Time) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day = model.Day(day)
	out := make(map[string]bool)
	for k, r := range s.records {
		if k.subjectID == subjectID && k.day.Equal(day) && r.Status == model.StatusPresent {
			out[k.studentID] = true
		}
	}
	return out, nil
}

// StudentRecords lists a student's records, newest first.
func (s *Store) StudentRecords(_ context.Context, studentID string) ([]model.StudentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StudentRecord
	for k, r := range s.records {
		if k.studentID != studentID {
			continue
		}
		out = append(out, model.StudentRecord{Record: r, SubjectName: s.subjects[k.subjectID].Name})
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].Record, out[j].Record) })
	return out, nil
}

// SubjectAttendees lists present records of a subject with student details,
// newest first.
func (s *Store) SubjectAttendees(_ context.Context, subjectID string) ([]model.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attendee
	for k, r := range s.records {
		if k.subjectID != subjectID || r.Status != model.StatusPresent {
			continue
		}
		u := s.users[k.studentID]
		out = append(out, model.Attendee{Record: r, Name: u.Name, Email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day().Equal(out[j].Day()) {
			return out[i].Day().After(out[j].Day())
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SubjectDays counts distinct days on which the subject has any record.
func (s *Store) SubjectDays(_ context.Context, subjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := make(map[time.Time]struct{})
	for k := range s.records {
		if k.subjectID == subjectID {
			days[k.day] = struct{}{}
		}
	}
	return len(days), nil
}

// CountPresent counts a student's present records for a subject.
func (s *Store) CountPresent(_ context.Context, subjectID, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, r := range s.records {
		if k.subjectID == subjectID && k.studentID == studentID && r.Status == model.StatusPresent {
			n++
		}
	}
	return n, nil
}

// ---- scan audit ----

// InsertScanEvent stores e; replays of the same event id are ignored.
func (s *Store) InsertScanEvent(_ context.Context, e model.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.audit[e.ID]; !seen {
		s.audit[e.ID] = e
	}
	return nil
}

// RecentScanEvents returns up to limit events for a subject, newest first.
func (s *Store) RecentScanEvents(_ context.Context, subjectID string, limit int) ([]model.ScanEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ScanEvent
	for _, e := range s.audit {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeScanEvents deletes events received before cutoff.
func (s *Store) PurgeScanEvents(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.audit {
		if e.ReceivedAt.Before(cutoff) {
			delete(s.audit, id)
			n++
		}
	}
	return n, nil
}

// ---- helpers ----

func (s *Store) filterClasses(keep func(*model.Class) bool) []model.Class {
	var out []model.Class
	for _, c := range s.classes {
		if keep(c) {
			out = append(out, copyClass(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyClass(c *model.Class) model.Class {
	out := *c
	out.StudentIDs = append([]string(nil), c.StudentIDs...)
	out.SubjectIDs = append([]string(nil), c.SubjectIDs...)
	return out
}

func newer(a, b model.Record) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.After(b.RecordedAt)
	}
	return a.ID < b.ID
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
