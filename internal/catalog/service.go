// Package catalog manages classes, their ordered subjects and rosters.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	applog "qrattend/internal/logging"
	"qrattend/internal/model"
	"qrattend/internal/store"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Store persists classes, subjects and class membership.
type Store interface {
	CreateClass(ctx context.Context, c model.Class) error
	ClassByID(ctx context.Context, id string) (model.Class, error)
	ClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
	ClassesByStudent(ctx context.Context, studentID string) ([]model.Class, error)
	AddStudent(ctx context.Context, classID, studentID string) error
	RemoveStudent(ctx context.Context, classID, studentID string) error
	Students(ctx context.Context, classID string) ([]model.User, error)
	CreateSubject(ctx context.Context, s model.Subject) error
	SubjectByID(ctx context.Context, id string) (model.Subject, error)
	SubjectsByClass(ctx context.Context, classID string) ([]model.Subject, error)
	// DeleteClass removes the class, its subjects and their attendance atomically.
	DeleteClass(ctx context.Context, id string) error
	// DeleteSubject removes the subject and its attendance atomically.
	DeleteSubject(ctx context.Context, id string) error
	TeacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error)
}

// Member is a roster entry as shown to the owning teacher.
type Member struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DeviceBound bool   `json:"deviceBound"`
}

// ClassView is a class with its subjects and, for teachers, its roster.
type ClassView struct {
	model.Class
	TeacherName string          `json:"teacherName,omitempty"`
	Subjects    []model.Subject `json:"subjects"`
	Students    []Member        `json:"students,omitempty"`
}

// Users resolves teacher names for student views.
type Users interface {
	UserByID(ctx context.Context, id string) (model.User, error)
}

type Service struct {
	store Store
	users Users
	log   logging.LeveledLogger
	now   func() time.Time
}

// NewService builds the catalog service. users may be nil, in which case
// student views carry no teacher name.
func NewService(s Store, users Users, lf logging.LoggerFactory) *Service {
	return &Service{store: s, users: users, log: applog.Scoped(lf, "catalog"), now: time.Now}
}

// CreateClass creates an empty class owned by teacherID.
func (s *Service) CreateClass(ctx context.Context, teacherID, name string) (model.Class, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Class{}, fmt.Errorf("%w: class name is required", ErrInvalidInput)
	}
	c := model.Class{ID: uuid.NewString(), Name: name, TeacherID: teacherID, CreatedAt: s.now().UTC()}
	if err := s.store.CreateClass(ctx, c); err != nil {
		return model.Class{}, wrap("create class", err)
	}
	s.log.Infof("teacher %s created class %s", teacherID, c.ID)
	return c, nil
}

// AddSubject appends a subject to a class the teacher owns.
func (s *Service) AddSubject(ctx context.Context, teacherID, classID, name string) (model.Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Subject{}, fmt.Errorf("%w: subject name is required", ErrInvalidInput)
	}
	if _, err := s.ownedClass(ctx, teacherID, classID); err != nil {
		return model.Subject{}, err
	}
	sub := model.Subject{ID: uuid.NewString(), Name: name, ClassID: classID, TeacherID: teacherID, CreatedAt: s.now().UTC()}
	if err := s.store.CreateSubject(ctx, sub); err != nil {
		return model.Subject{}, wrap("create subject", err)
	}
	return sub, nil
}

// DeleteClass deletes an owned class with its subjects and attendance.
func (s *Service) DeleteClass(ctx context.Context, teacherID, classID string) error {
	if _, err := s.ownedClass(ctx, teacherID, classID); err != nil {
		return err
	}
	if err := s.store.DeleteClass(ctx, classID); err != nil {
		return wrap("delete class", err)
	}
	s.log.Infof("teacher %s deleted class %s", teacherID, classID)
	return nil
}

// DeleteSubject deletes an owned subject with its attendance.
func (s *Service) DeleteSubject(ctx context.Context, teacherID, subjectID string) error {
	if _, err := s.OwnedSubject(ctx, teacherID, subjectID); err != nil {
		return err
	}
	if err := s.store.DeleteSubject(ctx, subjectID); err != nil {
		return wrap("delete subject", err)
	}
	s.log.Infof("teacher %s deleted subject %s", teacherID, subjectID)
	return nil
}

// OwnedSubject returns the subject when teacherID owns it.
func (s *Service) OwnedSubject(ctx context.Context, teacherID, subjectID string) (model.Subject, error) {
	sub, err := s.store.SubjectByID(ctx, subjectID)
	if err != nil {
		return model.Subject{}, wrap("load subject", err)
	}
	if sub.TeacherID != teacherID {
		return model.Subject{}, ErrNotFound
	}
	return sub, nil
}

// TeacherClasses lists the teacher's classes with subjects and rosters.
func (s *Service) TeacherClasses(ctx context.Context, teacherID string) ([]ClassView, error) {
	classes, err := s.store.ClassesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, wrap("list classes", err)
	}
	out := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		v, err := s.view(ctx, c)
		if err != nil {
			return nil, err
		}
		students, err := s.store.Students(ctx, c.ID)
		if err != nil {
			return nil, wrap("list students", err)
		}
		v.Students = make([]Member, 0, len(students))
		for _, u := range students {
			v.Students = append(v.Students, Member{ID: u.ID, Name: u.Name, Email: u.Email, DeviceBound: u.DeviceBound()})
		}
		out = append(out, v)
	}
	return out, nil
}

// StudentClasses lists the classes a student has joined.
func (s *Service) StudentClasses(ctx context.Context, studentID string) ([]ClassView, error) {
	classes, err := s.store.ClassesByStudent(ctx, studentID)
	if err != nil {
		return nil, wrap("list classes", err)
	}
	out := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		v, err := s.view(ctx, c)
		if err != nil {
			return nil, err
		}
		// students see the class, not its roster
		v.StudentIDs = nil
		if s.users != nil {
			if t, err := s.users.UserByID(ctx, c.TeacherID); err == nil {
				v.TeacherName = t.Name
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// JoinClass adds the student to a class. Joining twice is a no-op.
func (s *Service) JoinClass(ctx context.Context, studentID, classID string) (model.Class, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return model.Class{}, fmt.Errorf("%w: classId is required", ErrInvalidInput)
	}
	if err := s.store.AddStudent(ctx, classID, studentID); err != nil {
		return model.Class{}, wrap("join class", err)
	}
	c, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return model.Class{}, wrap("load class", err)
	}
	return c, nil
}

// LeaveClass removes the student from a class.
func (s *Service) LeaveClass(ctx context.Context, studentID, classID string) error {
	if err := s.store.RemoveStudent(ctx, classID, studentID); err != nil {
		return wrap("leave class", err)
	}
	return nil
}

func (s *Service) view(ctx context.Context, c model.Class) (ClassView, error) {
	subjects, err := s.store.SubjectsByClass(ctx, c.ID)
	if err != nil {
		return ClassView{}, wrap("list subjects", err)
	}
	return ClassView{Class: c, Subjects: subjects}, nil
}

func (s *Service) ownedClass(ctx context.Context, teacherID, classID string) (model.Class, error) {
	c, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return model.Class{}, wrap("load class", err)
	}
	if c.TeacherID != teacherID {
		return model.Class{}, ErrNotFound
	}
	return c, nil
}

func wrap(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("catalog: %s: %w", op, err)
}
