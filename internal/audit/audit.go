// Package audit carries scan outcomes from the API to durable storage
// through the queue, and prunes old entries.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/logging"

	applog "qrattend/internal/logging"
	"qrattend/internal/metrics"
	"qrattend/internal/model"
	"qrattend/internal/queue"
)

// MessageType tags scan events on the queue.
const MessageType = "scan"

// Store persists scan events.
type Store interface {
	// InsertScanEvent must ignore an event id it has already stored, so
	// redelivered messages are harmless.
	InsertScanEvent(ctx context.Context, e model.ScanEvent) error
	RecentScanEvents(ctx context.Context, subjectID string, limit int) ([]model.ScanEvent, error)
	PurgeScanEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher encodes scan events onto a queue.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps q.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Publish enqueues e.
func (p *Publisher) Publish(ctx context.Context, e model.ScanEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	return p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// Consumer drains the queue into the store.
type Consumer struct {
	q       queue.Queue
	store   Store
	metrics *metrics.Metrics
	log     logging.LeveledLogger
}

// NewConsumer builds a consumer.
func NewConsumer(q queue.Queue, s Store, m *metrics.Metrics, lf logging.LoggerFactory) *Consumer {
	return &Consumer{q: q, store: s, metrics: m, log: applog.Scoped(lf, "audit")}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("audit: consume: %w", err)
	}
	c.log.Info("consumer started")
	for msg := range messages {
		c.Handle(ctx, msg)
	}
	c.log.Info("consumer stopped")
	return nil
}

// Handle stores one message. Foreign and undecodable messages are skipped.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) {
	if msg.Type != MessageType {
		c.metrics.Audit("skipped")
		return
	}
	var e model.ScanEvent
	if err := json.Unmarshal(msg.Body, &e); err != nil || e.ID == "" {
		c.log.Warnf("dropping undecodable scan event: %v", err)
		c.metrics.Audit("invalid")
		return
	}
	if err := c.store.InsertScanEvent(ctx, e); err != nil {
		c.log.Errorf("store scan event %s: %v", e.ID, err)
		c.metrics.Audit("failed")
		return
	}
	c.log.Debugf("stored scan event %s outcome=%s", e.ID, e.Outcome)
	c.metrics.Audit("stored")
}

// Purger removes events older than the retention period.
type Purger struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	log       logging.LeveledLogger
}

// NewPurger builds a purger; now defaults to time.Now.
func NewPurger(s Store, retention time.Duration, now func() time.Time, lf logging.LoggerFactory) *Purger {
	if now == nil {
		now = time.Now
	}
	return &Purger{store: s, retention: retention, now: now, log: applog.Scoped(lf, "audit")}
}

// Purge deletes expired events and returns how many went.
func (p *Purger) Purge(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PurgeScanEvents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	p.log.Infof("purged %d scan events received before %s", n, cutoff.UTC().Format(time.RFC3339))
	return n, nil
}
