package catalog

import (
	"context"
	"errors"
	"testing"

	"qrattend/internal/model"
	"qrattend/internal/store/memstore"
)

func setup(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	ctx := context.Background()
	for _, u := range []model.User{
		{ID: "t1", Name: "Teacher One", Email: "t1@example.com", Role: model.RoleTeacher},
		{ID: "t2", Name: "Teacher Two", Email: "t2@example.com", Role: model.RoleTeacher},
		{ID: "s1", Name: "Ann", Email: "ann@example.com", Role: model.RoleStudent, DeviceID: "dev"},
		{ID: "s2", Name: "Bob", Email: "bob@example.com", Role: model.RoleStudent},
	} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(st, st, nil), st
}

func TestClassAndSubjectLifecycle(t *testing.T) {
	svc, st := setup(t)
	ctx := context.Background()

	if _, err := svc.CreateClass(ctx, "t1", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank class name: %v", err)
	}
	c, err := svc.CreateClass(ctx, "t1", "Physics")
	if err != nil {
		t.Fatal(err)
	}
	first, err := svc.AddSubject(ctx, "t1", c.ID, "Mechanics")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.AddSubject(ctx, "t1", c.ID, "Optics")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddSubject(ctx, "t2", c.ID, "Stolen"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign teacher add subject: %v", err)
	}

	for _, id := range []string{"s1", "s2", "s1"} {
		if _, err := svc.JoinClass(ctx, id, c.ID); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if _, err := svc.JoinClass(ctx, "s1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("join unknown class: %v", err)
	}

	views, err := svc.TeacherClasses(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("teacher classes = %d", len(views))
	}
	v := views[0]
	if len(v.Subjects) != 2 || v.Subjects[0].ID != first.ID || v.Subjects[1].ID != second.ID {
		t.Fatalf("subjects out of order: %+v", v.Subjects)
	}
	if len(v.Students) != 2 || !v.Students[0].DeviceBound || v.Students[1].DeviceBound {
		t.Fatalf("roster = %+v", v.Students)
	}

	mine, err := svc.StudentClasses(ctx, "s2")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].TeacherName != "Teacher One" || mine[0].StudentIDs != nil {
		t.Fatalf("student view = %+v", mine)
	}

	if err := svc.LeaveClass(ctx, "s2", c.ID); err != nil {
		t.Fatal(err)
	}
	if mine, _ := svc.StudentClasses(ctx, "s2"); len(mine) != 0 {
		t.Fatalf("still in %d classes after leaving", len(mine))
	}

	if err := svc.DeleteSubject(ctx, "t2", first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete subject: %v", err)
	}
	if err := svc.DeleteSubject(ctx, "t1", first.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := st.ClassByID(ctx, c.ID)
	if len(got.SubjectIDs) != 1 || got.SubjectIDs[0] != second.ID {
		t.Fatalf("subject list after delete = %v", got.SubjectIDs)
	}

	if err := svc.DeleteClass(ctx, "t2", c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete class: %v", err)
	}
	if err := svc.DeleteClass(ctx, "t1", c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SubjectByID(ctx, second.ID); err == nil {
		t.Fatal("subject survived class deletion")
	}
}

func TestLeaveClass(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	c, err := svc.CreateClass(ctx, "t1", "Physics")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.LeaveClass(ctx, "s1", c.ID); err != nil {
		t.Fatalf("leave when not enrolled: %v", err)
	}
	if err := svc.LeaveClass(ctx, "s1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("leave unknown class: %v", err)
	}
}
