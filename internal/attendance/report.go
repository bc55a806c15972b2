package attendance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"time"

	"qrattend/internal/model"
)

// SubjectStats is a student's standing in one subject. Total counts the
// distinct days on which the subject has any record.
type SubjectStats struct {
	SubjectID   string `json:"subjectId"`
	SubjectName string `json:"subjectName"`
	ClassID     string `json:"classId"`
	Present     int    `json:"present"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
}

// HistoryEntry is one record on a student's history.
type HistoryEntry struct {
	SubjectName string       `json:"subjectName"`
	Status      model.Status `json:"status"`
	Source      model.Source `json:"source"`
}

// HistoryDay groups history entries by UTC date.
type HistoryDay struct {
	Date    string         `json:"date"`
	Entries []HistoryEntry `json:"entries"`
}

// StudentSummary is the attendance part of the student dashboard.
type StudentSummary struct {
	Stats   []SubjectStats `json:"stats"`
	History []HistoryDay   `json:"history"`
}

// StudentSummary computes per-subject stats for the student's classes and
// the student's history grouped by day, newest first.
func (s *Service) StudentSummary(ctx context.Context, studentID string) (StudentSummary, error) {
	classes, err := s.catalog.ClassesByStudent(ctx, studentID)
	if err != nil {
		return StudentSummary{}, s.storeErr("list classes", err)
	}
	out := StudentSummary{Stats: []SubjectStats{}, History: []HistoryDay{}}
	for _, c := range classes {
		subjects, err := s.catalog.SubjectsByClass(ctx, c.ID)
		if err != nil {
			return StudentSummary{}, s.storeErr("list subjects", err)
		}
		for _, sub := range subjects {
			present, err := s.ledger.CountPresent(ctx, sub.ID, studentID)
			if err != nil {
				return StudentSummary{}, s.storeErr("count present", err)
			}
			total, err := s.ledger.SubjectDays(ctx, sub.ID)
			if err != nil {
				return StudentSummary{}, s.storeErr("count days", err)
			}
			out.Stats = append(out.Stats, SubjectStats{
				SubjectID:   sub.ID,
				SubjectName: sub.Name,
				ClassID:     c.ID,
				Present:     present,
				Total:       total,
				Percentage:  percentage(present, total),
			})
		}
	}

	records, err := s.ledger.StudentRecords(ctx, studentID)
	if err != nil {
		return StudentSummary{}, s.storeErr("list records", err)
	}
	for _, r := range records {
		date := r.Day().Format(time.DateOnly)
		if n := len(out.History); n == 0 || out.History[n-1].Date != date {
			out.History = append(out.History, HistoryDay{Date: date})
		}
		last := &out.History[len(out.History)-1]
		last.Entries = append(last.Entries, HistoryEntry{SubjectName: r.SubjectName, Status: r.Status, Source: r.Source})
	}
	return out, nil
}

func percentage(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// AttendeeDay lists the students present on one date.
type AttendeeDay struct {
	Date     string     `json:"date"`
	Students []Attendee `json:"students"`
}

// Attendee is a present student on a report.
type Attendee struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	Source model.Source `json:"source"`
}

// SubjectReport is a subject's attendance grouped by day.
type SubjectReport struct {
	Subject model.Subject `json:"subject"`
	Days    []AttendeeDay `json:"days"`
}

// SubjectReport lists present students by date, newest first.
func (s *Service) SubjectReport(ctx context.Context, teacherID, subjectID string) (SubjectReport, error) {
	sub, err := s.ownedSubject(ctx, teacherID, subjectID)
	if err != nil {
		return SubjectReport{}, err
	}
	rows, err := s.ledger.SubjectAttendees(ctx, subjectID)
	if err != nil {
		return SubjectReport{}, s.storeErr("list attendees", err)
	}
	out := SubjectReport{Subject: sub, Days: []AttendeeDay{}}
	for _, a := range rows {
		date := a.Day().Format(time.DateOnly)
		if n := len(out.Days); n == 0 || out.Days[n-1].Date != date {
			out.Days = append(out.Days, AttendeeDay{Date: date})
		}
		last := &out.Days[len(out.Days)-1]
		last.Students = append(last.Students, Attendee{ID: a.StudentID, Name: a.Name, Email: a.Email, Source: a.Source})
	}
	return out, nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ExportFilename is the download name for a subject's CSV export.
func ExportFilename(subjectName string) string {
	return unsafeFilename.ReplaceAllString(subjectName, "_") + "_Attendance.csv"
}

// ExportCSV writes the subject's present records, newest first, and returns
// the download filename.
func (s *Service) ExportCSV(ctx context.Context, teacherID, subjectID string, w io.Writer) (string, error) {
	sub, err := s.ownedSubject(ctx, teacherID, subjectID)
	if err != nil {
		return "", err
	}
	rows, err := s.ledger.SubjectAttendees(ctx, subjectID)
	if err != nil {
		return "", s.storeErr("list attendees", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Student Name", "Student Email", "Status"}); err != nil {
		return "", fmt.Errorf("attendance: write csv: %w", err)
	}
	for _, a := range rows {
		if err := cw.Write([]string{a.Day().Format("1/2/2006"), a.Name, a.Email, string(a.Status)}); err != nil {
			return "", fmt.Errorf("attendance: write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("attendance: write csv: %w", err)
	}
	return ExportFilename(sub.Name), nil
}
