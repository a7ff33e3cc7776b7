package ledger

import (
	"context"
	"strings"
	"time"

	"pocketmoney/internal/core"
)

// Ports implemented by every storage backend.
type (
	ExpenseStore interface {
		// AddExpense persists a validated expense and returns its id.
		AddExpense(ctx context.Context, e core.Expense) (int64, error)
		// RemoveExpense deletes by id; a missing id is not an error.
		RemoveExpense(ctx context.Context, id int64) error
		// ListExpenses returns expenses filed under period, newest id first.
		ListExpenses(ctx context.Context, period core.Period) ([]core.Expense, error)
		// TotalExpenses sums amounts filed under period; zero when none.
		TotalExpenses(ctx context.Context, period core.Period) (core.Money, error)
	}

	GiftStore interface {
		AddGift(ctx context.Context, g core.Gift) (int64, error)
		RemoveGift(ctx context.Context, id int64) error
		// ListGifts returns gifts in insertion order.
		ListGifts(ctx context.Context) ([]core.Gift, error)
		TotalGifts(ctx context.Context) (core.GiftTotal, error)
	}

	SettingsStore interface {
		// GetSettings returns the current settings, or core.DefaultSettings
		// when none were ever saved.
		GetSettings(ctx context.Context) (core.Settings, error)
		// SetSettings replaces the current settings and appends them to the
		// history in the same write.
		SetSettings(ctx context.Context, s core.Settings) error
		// SettingsHistory returns past writes, newest first.
		SettingsHistory(ctx context.Context, limit int) ([]core.Settings, error)
	}

	// Store is the complete persistence surface a backend provides.
	Store interface {
		ExpenseStore
		GiftStore
		SettingsStore
		Ping(ctx context.Context) error
	}
)

// Attribution joins giver names the way totals are displayed.
func Attribution(gifts []core.Gift) string {
	names := make([]string, len(gifts))
	for i, g := range gifts {
		names[i] = g.Giver
	}
	return strings.Join(names, ", ")
}

// AuditRecord is one ledger event as kept by the audit trail.
type AuditRecord struct {
	EventID    string
	Type       string
	EntityID   int64
	Payload    []byte
	OccurredAt time.Time
	RecordedAt time.Time
}

// AuditLog is the append-only trail written by the audit consumer.
type AuditLog interface {
	// AppendAudit stores rec and reports whether it was new; a record whose
	// EventID is already present is skipped.
	AppendAudit(ctx context.Context, rec AuditRecord) (bool, error)
	// ListAudit returns records newest first.
	ListAudit(ctx context.Context, limit int) ([]AuditRecord, error)
}
