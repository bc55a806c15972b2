// Package attendance verifies scanned QR tokens, applies manual roster
// overrides and builds attendance reports.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	applog "qrattend/internal/logging"
	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/store"
	"qrattend/internal/token"
)

const (
	DefaultFreshness  = 15 * time.Second
	DefaultFutureSkew = 5 * time.Second

	publishTimeout = 2 * time.Second
)

// Ledger persists attendance records.
type Ledger interface {
	// InsertPresence writes r unless its (subject, student, day) already has
	// a record, reporting whether it wrote. The check and the write are one
	// atomic step.
	InsertPresence(ctx context.Context, r model.Record) (bool, error)
	// ApplyMarks upserts present marks and deletes absent ones, all or nothing.
	ApplyMarks(ctx context.Context, subjectID string, day time.Time, marks []model.Mark) error
	PresentOn(ctx context.Context, subjectID string, day time.Time) (map[string]bool, error)
	StudentRecords(ctx context.Context, studentID string) ([]model.StudentRecord, error)
	SubjectAttendees(ctx context.Context, subjectID string) ([]model.Attendee, error)
	SubjectDays(ctx context.Context, subjectID string) (int, error)
	CountPresent(ctx context.Context, subjectID, studentID string) (int, error)
}

// Catalog is the read side of classes and subjects.
type Catalog interface {
	SubjectByID(ctx context.Context, id string) (model.Subject, error)
	Students(ctx context.Context, classID string) ([]model.User, error)
	ClassesByStudent(ctx context.Context, studentID string) ([]model.Class, error)
	SubjectsByClass(ctx context.Context, classID string) ([]model.Subject, error)
}

// Publisher receives one event per scan attempt.
type Publisher interface {
	Publish(ctx context.Context, e model.ScanEvent) error
}

// Options tune a Service. Zero values pick the defaults.
type Options struct {
	Codec         token.Codec
	Freshness     time.Duration
	FutureSkew    time.Duration
	Now           func() time.Time
	Publisher     Publisher
	Metrics       *metrics.Metrics
	LoggerFactory logging.LoggerFactory
}

// Service coordinates scan verification, overrides and reports.
type Service struct {
	ledger    Ledger
	catalog   Catalog
	codec     token.Codec
	freshness time.Duration
	skew      time.Duration
	now       func() time.Time
	publisher Publisher
	metrics   *metrics.Metrics
	log       logging.LeveledLogger
}

// NewService creates a service backed by a ledger and catalog.
func NewService(ledger Ledger, catalog Catalog, opts Options) *Service {
	s := &Service{
		ledger:    ledger,
		catalog:   catalog,
		codec:     opts.Codec,
		freshness: opts.Freshness,
		skew:      opts.FutureSkew,
		now:       opts.Now,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		log:       applog.Scoped(opts.LoggerFactory, "attendance"),
	}
	if s.codec == nil {
		s.codec = token.PlainCodec{}
	}
	if s.freshness <= 0 {
		s.freshness = DefaultFreshness
	}
	if s.skew <= 0 {
		s.skew = DefaultFutureSkew
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Verify checks a scanned token and records the student present for today.
// Checks run in order and stop at the first failure: decode, subject match,
// freshness, then the atomic once-per-day insert. Only a nil error writes.
func (s *Service) Verify(ctx context.Context, studentID, subjectID, raw string) (model.Record, error) {
	now := s.now().UTC()
	payload, rec, err := s.verify(ctx, now, studentID, subjectID, raw)
	outcome := Outcome(err)
	s.metrics.Scan(outcome)
	s.publish(ctx, model.ScanEvent{
		ID:            uuid.NewString(),
		SubjectID:     subjectID,
		StudentID:     studentID,
		Outcome:       outcome,
		TokenIssuedAt: issuedAt(payload),
		ReceivedAt:    now,
	})
	return rec, err
}

func (s *Service) verify(ctx context.Context, now time.Time, studentID, subjectID, raw string) (token.Payload, model.Record, error) {
	p, err := s.codec.Decode(raw)
	if err != nil || p.SubjectID == "" {
		return token.Payload{}, model.Record{}, ErrInvalidToken
	}
	issued := p.IssuedAt()
	if issued.Sub(now) > s.skew {
		return p, model.Record{}, ErrInvalidToken
	}
	if p.SubjectID != subjectID {
		return p, model.Record{}, ErrSubjectMismatch
	}
	if now.Sub(issued) > s.freshness {
		return p, model.Record{}, ErrTokenExpired
	}

	rec := model.Record{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		StudentID:  studentID,
		RecordedAt: now,
		Status:     model.StatusPresent,
		Source:     model.SourceScan,
	}
	inserted, err := s.ledger.InsertPresence(ctx, rec)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return p, model.Record{}, ErrNotFound
	case err != nil:
		s.log.Errorf("insert presence subject=%s student=%s: %v", subjectID, studentID, err)
		return p, model.Record{}, fmt.Errorf("%w: %v", ErrServer, err)
	case !inserted:
		return p, model.Record{}, ErrAlreadyMarked
	}
	s.log.Debugf("student %s present for subject %s", studentID, subjectID)
	return p, rec, nil
}

// publish hands the event to the audit pipeline. Failures are logged and
// never change the scan result.
func (s *Service) publish(ctx context.Context, e model.ScanEvent) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warnf("publish scan event %s: %v", e.ID, err)
	}
}

// issuedAt is the token time for the audit event, zero when absent or when a
// crafted timestamp falls outside the years JSON and Postgres can hold.
func issuedAt(p token.Payload) time.Time {
	if p.Timestamp == 0 {
		return time.Time{}
	}
	at := p.IssuedAt().UTC()
	if y := at.Year(); y < 1 || y > 9999 {
		return time.Time{}
	}
	return at
}

// RosterEntry is one student on a manual attendance sheet.
type RosterEntry struct {
	StudentID string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Present   bool   `json:"isPresent"`
}

// Roster lists the subject's class with each student's presence on day.
func (s *Service) Roster(ctx context.Context, teacherID, subjectID string, day time.Time) ([]RosterEntry, error) {
	sub, err := s.ownedSubject(ctx, teacherID, subjectID)
	if err != nil {
		return nil, err
	}
	students, err := s.catalog.Students(ctx, sub.ClassID)
	if err != nil {
		return nil, s.storeErr("list students", err)
	}
	present, err := s.ledger.PresentOn(ctx, subjectID, model.Day(day))
	if err != nil {
		return nil, s.storeErr("load presence", err)
	}
	out := make([]RosterEntry, 0, len(students))
	for _, u := range students {
		out = append(out, RosterEntry{StudentID: u.ID, Name: u.Name, Email: u.Email, Present: present[u.ID]})
	}
	return out, nil
}

// Override applies a teacher's roster for one subject and day in a single
// transaction. Present marks upsert a record, absent marks delete any record.
// Freshness and device checks do not apply.
func (s *Service) Override(ctx context.Context, teacherID, subjectID string, day time.Time, marks []model.Mark) error {
	if day.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	sub, err := s.ownedSubject(ctx, teacherID, subjectID)
	if err != nil {
		return err
	}
	students, err := s.catalog.Students(ctx, sub.ClassID)
	if err != nil {
		return s.storeErr("list students", err)
	}
	enrolled := make(map[string]bool, len(students))
	for _, u := range students {
		enrolled[u.ID] = true
	}
	for _, m := range marks {
		if !enrolled[m.StudentID] {
			return fmt.Errorf("%w: student %q is not on the class roster", ErrInvalidInput, m.StudentID)
		}
	}
	if err := s.ledger.ApplyMarks(ctx, subjectID, model.Day(day), marks); err != nil {
		return s.storeErr("apply marks", err)
	}
	s.metrics.ManualMarks(len(marks))
	s.log.Infof("teacher %s applied %d manual marks to subject %s on %s",
		teacherID, len(marks), subjectID, model.Day(day).Format(time.DateOnly))
	return nil
}

func (s *Service) ownedSubject(ctx context.Context, teacherID, subjectID string) (model.Subject, error) {
	sub, err := s.catalog.SubjectByID(ctx, subjectID)
	if err != nil {
		return model.Subject{}, s.storeErr("load subject", err)
	}
	if sub.TeacherID != teacherID {
		return model.Subject{}, ErrNotFound
	}
	return sub, nil
}

func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	s.log.Errorf("%s: %v", op, err)
	return fmt.Errorf("%w: %s: %v", ErrServer, op, err)
}
