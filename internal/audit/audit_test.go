package audit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/queue"
	"qrattend/internal/store/memstore"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	st := memstore.New()
	m := metrics.New(prometheus.NewRegistry())
	consumer := NewConsumer(q, st, m, nil)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	at := time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC)
	pub := NewPublisher(q)
	events := []model.ScanEvent{
		{ID: "e1", SubjectID: "S1", StudentID: "s1", Outcome: "success", TokenIssuedAt: at.Add(-10 * time.Second), ReceivedAt: at},
		{ID: "e2", SubjectID: "S1", StudentID: "s2", Outcome: "subject_mismatch", ReceivedAt: at.Add(time.Second)},
		{ID: "e1", SubjectID: "S1", StudentID: "s1", Outcome: "success", ReceivedAt: at},
	}
	for _, e := range events {
		if err := pub.Publish(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Publish(ctx, queue.Message{Type: "other", Body: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for testutil.ToFloat64(m.AuditEvents.WithLabelValues("skipped")) < 1 {
		select {
		case <-deadline:
			t.Fatal("consumer did not drain the queue")
		case <-time.After(5 * time.Millisecond):
		}
	}

	got, err := st.RecentScanEvents(ctx, "S1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("stored events = %+v", got)
	}
	if !got[1].TokenIssuedAt.Equal(at.Add(-10 * time.Second)) {
		t.Fatalf("token issued at = %v", got[1].TokenIssuedAt)
	}
	if v := testutil.ToFloat64(m.AuditEvents.WithLabelValues("stored")); v != 3 {
		t.Fatalf("stored metric = %v", v)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestHandleDropsGarbage(t *testing.T) {
	st := memstore.New()
	m := metrics.New(prometheus.NewRegistry())
	c := NewConsumer(queue.NewInMemory(1), st, m, nil)

	c.Handle(context.Background(), queue.Message{Type: MessageType, Body: []byte(`not json`)})
	c.Handle(context.Background(), queue.Message{Type: MessageType, Body: []byte(`{"subject_id":"S1"}`)})

	if v := testutil.ToFloat64(m.AuditEvents.WithLabelValues("invalid")); v != 2 {
		t.Fatalf("invalid metric = %v", v)
	}
}

func TestPurger(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i, age := range []time.Duration{time.Hour, 8 * 24 * time.Hour, 30 * 24 * time.Hour} {
		_ = st.InsertScanEvent(ctx, model.ScanEvent{ID: string(rune('a' + i)), SubjectID: "S1", ReceivedAt: now.Add(-age)})
	}
	p := NewPurger(st, 7*24*time.Hour, func() time.Time { return now }, nil)
	n, err := p.Purge(ctx)
	if err != nil || n != 2 {
		t.Fatalf("purge = %d, %v", n, err)
	}
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	p := NewPurger(memstore.New(), time.Hour, nil, nil)
	if _, err := Schedule(p, "every tuesday"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	c, err := Schedule(p, "@hourly")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("entries = %d", len(c.Entries()))
	}
	<-c.Stop().Done()
}
