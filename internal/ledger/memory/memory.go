package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger"
)

// Store keeps the whole ledger in process memory. Each Store is isolated,
// which makes it the default substitute for tests.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	expenses []core.Expense
	gifts    []core.Gift
	settings *core.Settings
	history  []core.Settings
	audit    []ledger.AuditRecord
	now      func() time.Time
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.AuditLog = (*Store)(nil)
)

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddExpense stores the expense and returns its id.
func (s *Store) AddExpense(_ context.Context, e core.Expense) (int64, error) {
	if e.Date.IsZero() {
		e.Date = core.Today()
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	s.expenses = append(s.expenses, e)
	return e.ID, nil
}

func (s *Store) RemoveExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = slices.DeleteFunc(s.expenses, func(e core.Expense) bool { return e.ID == id })
	return nil
}

func (s *Store) ListExpenses(_ context.Context, period core.Period) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for i := len(s.expenses) - 1; i >= 0; i-- {
		if s.expenses[i].Period == period {
			out = append(out, s.expenses[i])
		}
	}
	return out, nil
}

func (s *Store) TotalExpenses(_ context.Context, period core.Period) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total core.Money
	for _, e := range s.expenses {
		if e.Period == period {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (s *Store) AddGift(_ context.Context, g core.Gift) (int64, error) {
	if g.Date.IsZero() {
		g.Date = core.Today()
	}
	if err := g.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.id()
	s.gifts = append(s.gifts, g)
	return g.ID, nil
}

func (s *Store) RemoveGift(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gifts = slices.DeleteFunc(s.gifts, func(g core.Gift) bool { return g.ID == id })
	return nil
}

func (s *Store) ListGifts(_ context.Context) ([]core.Gift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]core.Gift, 0, len(s.gifts)), s.gifts...), nil
}

func (s *Store) TotalGifts(_ context.Context) (core.GiftTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total core.GiftTotal
	for _, g := range s.gifts {
		total.Amount = total.Amount.Add(g.Amount)
	}
	total.Attribution = ledger.Attribution(s.gifts)
	return total, nil
}

func (s *Store) GetSettings(_ context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return core.DefaultSettings(), nil
	}
	return *s.settings, nil
}

func (s *Store) SetSettings(_ context.Context, settings core.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.UpdatedAt = s.now().UTC()
	s.settings = &settings
	s.history = append(s.history, settings)
	return nil
}

func (s *Store) SettingsHistory(_ context.Context, limit int) ([]core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Settings, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) AppendAudit(_ context.Context, rec ledger.AuditRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.audit {
		if r.EventID == rec.EventID {
			return false, nil
		}
	}
	rec.RecordedAt = s.now().UTC()
	s.audit = append(s.audit, rec)
	return true, nil
}

func (s *Store) ListAudit(_ context.Context, limit int) ([]ledger.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.AuditRecord, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.audit[i])
	}
	return out, nil
}
