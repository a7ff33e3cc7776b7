package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pocketmoney/internal/amqp"
	"pocketmoney/internal/ledger"
)

// EventSource is satisfied by *amqp.Client.
type EventSource interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

// AuditWorker copies every ledger event into the audit trail.
type AuditWorker struct {
	source EventSource
	trail  ledger.AuditLog
	report time.Duration

	recorded   atomic.Int64
	duplicates atomic.Int64
}

// NewAuditWorker builds a worker that logs its counters every report
// interval; zero disables the report.
func NewAuditWorker(source EventSource, trail ledger.AuditLog, report time.Duration) *AuditWorker {
	return &AuditWorker{source: source, trail: trail, report: report}
}

// HandleEvent appends one event. Redelivered events are acknowledged
// without writing a second row.
func (w *AuditWorker) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	payload := []byte(e.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	inserted, err := w.trail.AppendAudit(ctx, ledger.AuditRecord{
		EventID:    e.ID,
		Type:       e.Type,
		EntityID:   e.EntityID,
		Payload:    payload,
		OccurredAt: e.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	if !inserted {
		w.duplicates.Add(1)
		slog.DebugContext(ctx, "Duplicate ledger event skipped", "event_id", e.ID, "type", e.Type)
		return nil
	}
	w.recorded.Add(1)
	slog.InfoContext(ctx, "Ledger event recorded",
		"event_id", e.ID,
		"type", e.Type,
		"entity_id", e.EntityID)
	return nil
}

// Run consumes until ctx is cancelled or the source fails.
func (w *AuditWorker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.source.Consume(gctx, w.HandleEvent)
	})
	if w.report > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.report)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					slog.InfoContext(gctx, "Audit worker progress",
						"recorded", w.recorded.Load(),
						"duplicates", w.duplicates.Load())
				}
			}
		})
	}
	return g.Wait()
}

// Stats returns how many events were written and how many were duplicates.
func (w *AuditWorker) Stats() (recorded, duplicates int64) {
	return w.recorded.Load(), w.duplicates.Load()
}
