package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"pocketmoney/internal/amqp"
	"pocketmoney/internal/ledger/memory"
)

// sliceSource replays a fixed list of events, then waits for cancellation.
type sliceSource struct {
	events  []*amqp.LedgerEvent
	failed  []error
	stopErr error
}

func (s *sliceSource) Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error {
	for _, e := range s.events {
		s.failed = append(s.failed, handler(ctx, e))
	}
	if s.stopErr != nil {
		return s.stopErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestAuditWorker_HandleEvent(t *testing.T) {
	trail := memory.New()
	w := NewAuditWorker(nil, trail, 0)
	ctx := context.Background()

	e, err := amqp.NewLedgerEvent(amqp.EventExpenseCreated, 3, map[string]int{"amount_cents": 500})
	if err != nil {
		t.Fatalf("NewLedgerEvent: %v", err)
	}
	if err := w.HandleEvent(ctx, e); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if err := w.HandleEvent(ctx, e); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	recs, _ := trail.ListAudit(ctx, 0)
	if len(recs) != 1 || recs[0].EventID != e.ID || recs[0].EntityID != 3 {
		t.Fatalf("records = %+v", recs)
	}
	if recorded, dups := w.Stats(); recorded != 1 || dups != 1 {
		t.Fatalf("stats = %d, %d", recorded, dups)
	}
}

func TestAuditWorker_EmptyPayloadStoredAsObject(t *testing.T) {
	trail := memory.New()
	w := NewAuditWorker(nil, trail, 0)
	e, _ := amqp.NewLedgerEvent(amqp.EventGiftRemoved, 9, nil)

	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	recs, _ := trail.ListAudit(context.Background(), 1)
	if string(recs[0].Payload) != "{}" {
		t.Fatalf("payload = %q", recs[0].Payload)
	}
}

func TestAuditWorker_Run(t *testing.T) {
	a, _ := amqp.NewLedgerEvent(amqp.EventGiftAdded, 1, nil)
	b, _ := amqp.NewLedgerEvent(amqp.EventSettingsUpdated, 1, nil)
	src := &sliceSource{events: []*amqp.LedgerEvent{a, b}}
	trail := memory.New()
	w := NewAuditWorker(src, trail, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v", err)
	}
	for _, err := range src.failed {
		if err != nil {
			t.Fatalf("handler failed: %v", err)
		}
	}
	recs, _ := trail.ListAudit(context.Background(), 0)
	if len(recs) != 2 || recs[0].Type != amqp.EventSettingsUpdated {
		t.Fatalf("records = %+v", recs)
	}
}

func TestAuditWorker_RunReturnsSourceError(t *testing.T) {
	boom := errors.New("channel closed")
	w := NewAuditWorker(&sliceSource{stopErr: boom}, memory.New(), time.Hour)
	if err := w.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
}
