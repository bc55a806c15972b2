package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/model"
	"qrattend/internal/store"
	"qrattend/internal/store/storetest"
)

func newRepoUser(t *testing.T, repo *Repository, role model.Role) model.User {
	t.Helper()
	id := uuid.NewString()
	u := model.User{
		ID:           id,
		Name:         "User " + id[:8],
		Email:        id + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestRepositoryCreateUserEmailIsUnique(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()
	u := newRepoUser(t, repo, model.RoleStudent)

	dup := u
	dup.ID = uuid.NewString()
	dup.Email = strings.ToUpper(u.Email)
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate email: %v", err)
	}
	got, err := repo.UserByEmail(ctx, strings.ToUpper(u.Email))
	if err != nil || got.ID != u.ID {
		t.Fatalf("by email = %+v, %v", got, err)
	}
	if got.DeviceBound() {
		t.Fatal("new user should be unbound")
	}
	if _, err := repo.UserByID(ctx, uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
}

func TestRepositoryBindDevice(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()
	u := newRepoUser(t, repo, model.RoleStudent)

	bound, err := repo.BindDevice(ctx, u.ID, "phone-a")
	if err != nil || bound != "phone-a" {
		t.Fatalf("first bind = %q, %v", bound, err)
	}
	bound, err = repo.BindDevice(ctx, u.ID, "phone-b")
	if err != nil || bound != "phone-a" {
		t.Fatalf("second bind = %q, %v; binding must not move", bound, err)
	}

	if err := repo.ClearDevice(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if bound, _ = repo.BindDevice(ctx, u.ID, "phone-b"); bound != "phone-b" {
		t.Fatalf("bind after clear = %q", bound)
	}

	if _, err := repo.BindDevice(ctx, uuid.NewString(), "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown user bind: %v", err)
	}
	if err := repo.ClearDevice(ctx, uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown user clear: %v", err)
	}
}

func TestRepositoryBindDeviceConcurrent(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()
	u := newRepoUser(t, repo, model.RoleStudent)

	const n = 8
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bound, err := repo.BindDevice(ctx, u.ID, uuid.NewString())
			if err != nil {
				t.Errorf("bind %d: %v", i, err)
			}
			results[i] = bound
		}(i)
	}
	wg.Wait()
	for _, r := range results[1:] {
		if r != results[0] {
			t.Fatalf("racing binds disagree: %v", results)
		}
	}
}

func TestRepositoryUpdatePassword(t *testing.T) {
	repo := NewRepository(storetest.Open(t))
	ctx := context.Background()
	u := newRepoUser(t, repo, model.RoleTeacher)

	if err := repo.UpdatePassword(ctx, u.ID, "new-hash"); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.UserByID(ctx, u.ID)
	if got.PasswordHash != "new-hash" {
		t.Fatalf("hash = %q", got.PasswordHash)
	}
	if err := repo.UpdatePassword(ctx, uuid.NewString(), "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
}
