package attendance

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"qrattend/internal/model"
)

func TestStudentSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	// S1 held on three days, s1 present on two of them.
	must(t, f.svc.Override(ctx, "t1", "S1", day1, []model.Mark{{StudentID: "s1", Present: true}}))
	must(t, f.svc.Override(ctx, "t1", "S1", day2, []model.Mark{{StudentID: "s2", Present: true}}))
	must(t, f.svc.Override(ctx, "t1", "S1", day3, []model.Mark{{StudentID: "s1", Present: true}}))
	must(t, f.svc.Override(ctx, "t1", "S2", day3, []model.Mark{{StudentID: "s1", Present: true}}))

	sum, err := f.svc.StudentSummary(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Stats) != 2 {
		t.Fatalf("stats = %+v", sum.Stats)
	}
	s1 := sum.Stats[0]
	if s1.SubjectID != "S1" || s1.Present != 2 || s1.Total != 3 || s1.Percentage != 67 {
		t.Fatalf("S1 stats = %+v", s1)
	}
	if s2 := sum.Stats[1]; s2.Present != 1 || s2.Total != 1 || s2.Percentage != 100 {
		t.Fatalf("S2 stats = %+v", s2)
	}

	if len(sum.History) != 2 || sum.History[0].Date != "2026-03-03" || sum.History[1].Date != "2026-03-01" {
		t.Fatalf("history = %+v", sum.History)
	}
	if len(sum.History[0].Entries) != 2 {
		t.Fatalf("entries on 03-03 = %+v", sum.History[0].Entries)
	}
}

func TestStudentSummaryWithoutClasses(t *testing.T) {
	f := newFixture(t)
	sum, err := f.svc.StudentSummary(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Stats) != 0 || len(sum.History) != 0 || sum.Stats == nil || sum.History == nil {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestSubjectReportAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	must(t, f.svc.Override(ctx, "t1", "S1", day1, []model.Mark{{StudentID: "s1", Present: true}}))
	must(t, f.svc.Override(ctx, "t1", "S1", day2, []model.Mark{{StudentID: "s1", Present: true}, {StudentID: "s2", Present: true}}))

	rep, err := f.svc.SubjectReport(ctx, "t1", "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Days) != 2 || rep.Days[0].Date != "2026-03-02" || len(rep.Days[0].Students) != 2 || len(rep.Days[1].Students) != 1 {
		t.Fatalf("report = %+v", rep)
	}

	var buf bytes.Buffer
	name, err := f.svc.ExportCSV(ctx, "t1", "S1", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Mechanics_101_Attendance.csv" {
		t.Fatalf("filename = %q", name)
	}
	want := "Date,Student Name,Student Email,Status\n" +
		"3/2/2026,Ann,ann@example.com,present\n" +
		"3/2/2026,\"Bob, Jr.\",bob@example.com,present\n" +
		"3/1/2026,Ann,ann@example.com,present\n"
	if buf.String() != want {
		t.Fatalf("csv =\n%s\nwant\n%s", buf.String(), want)
	}

	if _, err := f.svc.SubjectReport(ctx, "t2", "S1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign report: %v", err)
	}
	if _, err := f.svc.ExportCSV(ctx, "t1", "missing", &buf); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing subject export: %v", err)
	}
}

func TestExportFilename(t *testing.T) {
	cases := map[string]string{
		"Physics":       "Physics_Attendance.csv",
		"Intro to C++":  "Intro_to_C___Attendance.csv",
		"Łódź/Kraków 2": "__d__Krak_w_2_Attendance.csv",
	}
	for in, want := range cases {
		if got := ExportFilename(in); got != want {
			t.Errorf("ExportFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
