package account

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/store/memstore"
)

func newTestService(t *testing.T) (*Service, *memstore.Store, *metrics.Metrics) {
	t.Helper()
	st := memstore.New()
	m := metrics.New(prometheus.NewRegistry())
	return NewService(st, st, Options{BcryptCost: bcrypt.MinCost, Metrics: m}), st, m
}

func mustSignup(t *testing.T, svc *Service, in SignupInput) model.User {
	t.Helper()
	u, err := svc.Signup(context.Background(), in)
	if err != nil {
		t.Fatalf("signup %s: %v", in.Email, err)
	}
	return u
}

func TestSignupValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignup(t, svc, SignupInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent})

	cases := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"missing name", SignupInput{Email: "a@b.c", Password: "secret1", Role: model.RoleStudent}, ErrInvalidInput},
		{"bad email", SignupInput{Name: "A", Email: "nope", Password: "secret1", Role: model.RoleStudent}, ErrInvalidInput},
		{"short password", SignupInput{Name: "A", Email: "a@b.c", Password: "123", Role: model.RoleStudent}, ErrInvalidInput},
		{"bad role", SignupInput{Name: "A", Email: "a@b.c", Password: "secret1", Role: "admin"}, ErrInvalidInput},
		{"duplicate email any case", SignupInput{Name: "A", Email: " ANN@Example.com ", Password: "secret1", Role: model.RoleTeacher}, ErrEmailTaken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignupBindsStudentDeviceOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := mustSignup(t, svc, SignupInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent, DeviceID: "dev-a"})
	if s.DeviceID != "dev-a" {
		t.Fatalf("student device = %q", s.DeviceID)
	}
	tch := mustSignup(t, svc, SignupInput{Name: "T", Email: "t@example.com", Password: "secret1", Role: model.RoleTeacher, DeviceID: "dev-t"})
	if tch.DeviceBound() {
		t.Fatal("teacher must not be bound")
	}
}

func TestLoginCredentialsAreGeneric(t *testing.T) {
	svc, _, m := newTestService(t)
	mustSignup(t, svc, SignupInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent})

	cases := []struct {
		name string
		in   LoginInput
	}{
		{"unknown email", LoginInput{Email: "who@example.com", Password: "secret1", Role: model.RoleStudent, DeviceID: "d"}},
		{"wrong password", LoginInput{Email: "ann@example.com", Password: "nope", Role: model.RoleStudent, DeviceID: "d"}},
		{"wrong role", LoginInput{Email: "ann@example.com", Password: "secret1", Role: model.RoleTeacher, DeviceID: "d"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Login(context.Background(), tc.in); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("got %v, want ErrInvalidCredentials", err)
			}
		})
	}
	if got := testutil.ToFloat64(m.Logins.WithLabelValues("student", "invalid_credentials")); got != 2 {
		t.Fatalf("student invalid logins = %v, want 2", got)
	}
}

func TestDeviceBindingLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	s := mustSignup(t, svc, SignupInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent})
	login := func(device string) error {
		_, err := svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent, DeviceID: device})
		return err
	}

	if err := login(""); !errors.Is(err, ErrDeviceRequired) {
		t.Fatalf("empty device: %v", err)
	}
	if err := login("dev-a"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if err := login("dev-a"); err != nil {
		t.Fatalf("same device: %v", err)
	}
	if err := login("dev-b"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("other device: %v", err)
	}

	if err := svc.ResetOwnDevice(ctx, s.ID, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("reset with wrong password: %v", err)
	}
	if err := login("dev-b"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("binding changed after failed reset: %v", err)
	}
	if err := svc.ResetOwnDevice(ctx, s.ID, "secret1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := login("dev-b"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
	if err := login("dev-a"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("old device after rebind: %v", err)
	}
}

func TestTeacherLoginNeverBinds(t *testing.T) {
	svc, st, _ := newTestService(t)
	tch := mustSignup(t, svc, SignupInput{Name: "T", Email: "t@example.com", Password: "secret1", Role: model.RoleTeacher})
	for _, dev := range []string{"", "a", "b"} {
		u, err := svc.Login(context.Background(), LoginInput{Email: "t@example.com", Password: "secret1", Role: model.RoleTeacher, DeviceID: dev})
		if err != nil {
			t.Fatalf("teacher login %q: %v", dev, err)
		}
		if u.Role != model.RoleTeacher {
			t.Fatalf("role = %s", u.Role)
		}
	}
	u, _ := st.UserByID(context.Background(), tch.ID)
	if u.DeviceBound() {
		t.Fatal("teacher got bound")
	}
}

func TestResetDeviceByTeacherRequiresRoster(t *testing.T) {
	svc, st, m := newTestService(t)
	ctx := context.Background()
	tch := mustSignup(t, svc, SignupInput{Name: "T", Email: "t@example.com", Password: "secret1", Role: model.RoleTeacher})
	other := mustSignup(t, svc, SignupInput{Name: "O", Email: "o@example.com", Password: "secret1", Role: model.RoleTeacher})
	s := mustSignup(t, svc, SignupInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent, DeviceID: "dev-a"})
	if err := st.CreateClass(ctx, model.Class{ID: "c1", Name: "Physics", TeacherID: tch.ID}); err != nil {
		t.Fatal(err)
	}
	if err := st.AddStudent(ctx, "c1", s.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.ResetDeviceByTeacher(ctx, other.ID, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign teacher reset: %v", err)
	}
	if err := svc.ResetDeviceByTeacher(ctx, tch.ID, s.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	u, _ := st.UserByID(ctx, s.ID)
	if u.DeviceBound() {
		t.Fatal("device still bound")
	}
	if got := testutil.ToFloat64(m.DeviceResets.WithLabelValues("teacher")); got != 1 {
		t.Fatalf("teacher resets = %v", got)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	s := mustSignup(t, svc, SignupInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Role: model.RoleStudent})

	if err := svc.ChangePassword(ctx, s.ID, "secret1", "newpass1", "newpass2"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("mismatch: %v", err)
	}
	if err := svc.ChangePassword(ctx, s.ID, "wrong", "newpass1", "newpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current: %v", err)
	}
	if err := svc.ChangePassword(ctx, s.ID, "secret1", "newpass1", "newpass1"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: "newpass1", Role: model.RoleStudent, DeviceID: "d"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
