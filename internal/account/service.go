// Package account manages users: signup, login with device binding, device
// resets and password changes.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"golang.org/x/crypto/bcrypt"

	applog "qrattend/internal/logging"
	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceMismatch     = errors.New("device mismatch")
	ErrDeviceRequired     = errors.New("device id required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
)

const minPasswordLen = 6

// Store persists user accounts.
type Store interface {
	CreateUser(ctx context.Context, u model.User) error
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	// BindDevice sets the device only when none is bound and returns the
	// binding in effect afterwards, in one atomic step.
	BindDevice(ctx context.Context, userID, deviceID string) (string, error)
	ClearDevice(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, hash string) error
}

// Roster answers whether a student sits in one of a teacher's classes.
type Roster interface {
	TeacherHasStudent(ctx context.Context, teacherID, studentID string) (bool, error)
}

// Options tune a Service. Zero values pick production defaults.
type Options struct {
	BcryptCost    int
	Metrics       *metrics.Metrics
	LoggerFactory logging.LoggerFactory
	Now           func() time.Time
}

// Service implements the account operations.
type Service struct {
	store   Store
	roster  Roster
	cost    int
	dummy   []byte
	metrics *metrics.Metrics
	log     logging.LeveledLogger
	now     func() time.Time
}

// NewService builds the service.
func NewService(s Store, roster Roster, opts Options) *Service {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	// compared against when the email is unknown, so both paths cost one bcrypt
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Service{
		store:   s,
		roster:  roster,
		cost:    cost,
		dummy:   dummy,
		metrics: opts.Metrics,
		log:     applog.Scoped(opts.LoggerFactory, "account"),
		now:     now,
	}
}

// SignupInput is the signup form.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	DeviceID string
}

// Signup creates an account. A student signing up from a device is bound to it.
func (s *Service) Signup(ctx context.Context, in SignupInput) (model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return model.User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.User{}, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return model.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if !in.Role.Valid() {
		return model.User{}, fmt.Errorf("%w: role must be student or teacher", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("account: hash password: %w", err)
	}
	u := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         in.Role,
		CreatedAt:    s.now().UTC(),
	}
	if in.Role == model.RoleStudent {
		u.DeviceID = strings.TrimSpace(in.DeviceID)
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return model.User{}, ErrEmailTaken
		}
		return model.User{}, fmt.Errorf("account: create user: %w", err)
	}
	s.log.Infof("signup %s role=%s", u.ID, u.Role)
	return u, nil
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string
	Password string
	Role     model.Role
	DeviceID string
}

// Login checks credentials and, for students, enforces the device binding:
// the first device seen is bound, any other device is refused until reset.
// No session may be created when an error is returned.
func (s *Service) Login(ctx context.Context, in LoginInput) (model.User, error) {
	u, err := s.authenticate(ctx, in)
	if err != nil {
		s.metrics.Login(string(in.Role), outcome(err))
		return model.User{}, err
	}
	s.metrics.Login(string(u.Role), "success")
	return u, nil
}

func (s *Service) authenticate(ctx context.Context, in LoginInput) (model.User, error) {
	u, err := s.store.UserByEmail(ctx, normalizeEmail(in.Email))
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(in.Password))
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("account: lookup user: %w", err)
	}
	if !s.checkPassword(u, in.Password) || u.Role != in.Role {
		return model.User{}, ErrInvalidCredentials
	}
	if u.Role != model.RoleStudent {
		return u, nil
	}

	device := strings.TrimSpace(in.DeviceID)
	if device == "" {
		return model.User{}, ErrDeviceRequired
	}
	bound, err := s.store.BindDevice(ctx, u.ID, device)
	if err != nil {
		return model.User{}, fmt.Errorf("account: bind device: %w", err)
	}
	if bound != device {
		s.log.Warnf("device mismatch for student %s", u.ID)
		return model.User{}, ErrDeviceMismatch
	}
	if u.DeviceID == "" {
		s.log.Infof("bound student %s to a device", u.ID)
	}
	u.DeviceID = bound
	return u, nil
}

// ResetDeviceByTeacher clears a student's binding. The student must be on
// one of the teacher's rosters.
func (s *Service) ResetDeviceByTeacher(ctx context.Context, teacherID, studentID string) error {
	if studentID == "" {
		return fmt.Errorf("%w: studentId is required", ErrInvalidInput)
	}
	ok, err := s.roster.TeacherHasStudent(ctx, teacherID, studentID)
	if err != nil {
		return fmt.Errorf("account: check roster: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.clear(ctx, studentID); err != nil {
		return err
	}
	s.metrics.DeviceReset("teacher")
	s.log.Infof("teacher %s reset device of student %s", teacherID, studentID)
	return nil
}

// ResetOwnDevice clears the caller's binding after re-checking the password.
func (s *Service) ResetOwnDevice(ctx context.Context, userID, passwordConfirm string) error {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("account: lookup user: %w", err)
	}
	if !s.checkPassword(u, passwordConfirm) {
		return ErrInvalidCredentials
	}
	if err := s.clear(ctx, userID); err != nil {
		return err
	}
	s.metrics.DeviceReset("self")
	s.log.Infof("user %s reset own device", userID)
	return nil
}

func (s *Service) clear(ctx context.Context, userID string) error {
	if err := s.store.ClearDevice(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("account: clear device: %w", err)
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	if next != confirm {
		return ErrPasswordMismatch
	}
	if len(next) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("account: lookup user: %w", err)
	}
	if !s.checkPassword(u, current) {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("account: update password: %w", err)
	}
	return nil
}

// User returns the account by id.
func (s *Service) User(ctx context.Context, id string) (model.User, error) {
	u, err := s.store.UserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func (s *Service) checkPassword(u model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrDeviceMismatch):
		return "device_mismatch"
	case errors.Is(err, ErrDeviceRequired):
		return "device_required"
	default:
		return "error"
	}
}
