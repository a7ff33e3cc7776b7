// Package ledgertest holds the behaviour every ledger.Store must show, so each
// backend runs the same checks against its own storage.
package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger"
)

// Run exercises store contracts. newStore must return an empty, isolated store.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Helper()

	t.Run("add then list", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, err := s.AddExpense(ctx, expense("Snacks", 1050, core.Week))
		if err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
		items, err := s.ListExpenses(ctx, core.Week)
		if err != nil {
			t.Fatalf("ListExpenses: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 expense, got %d", len(items))
		}
		got := items[0]
		if got.ID != id || got.Name != "Snacks" || got.Amount.Cents != 1050 || got.Period != core.Week || got.Category != core.Food {
			t.Fatalf("unexpected expense: %+v", got)
		}
		if got.Date.IsZero() {
			t.Fatalf("expense date not set")
		}
		other, _ := s.ListExpenses(ctx, core.Month)
		if len(other) != 0 {
			t.Fatalf("expense leaked into another period: %+v", other)
		}
	})

	t.Run("list is newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []int64
		for _, name := range []string{"a", "b", "c"} {
			id, err := s.AddExpense(ctx, expense(name, 100, core.Month))
			if err != nil {
				t.Fatalf("AddExpense: %v", err)
			}
			ids = append(ids, id)
		}
		items, _ := s.ListExpenses(ctx, core.Month)
		if len(items) != 3 || items[0].ID != ids[2] || items[2].ID != ids[0] {
			t.Fatalf("unexpected order: %+v", items)
		}
	})

	t.Run("remove unknown id is a no-op", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.AddExpense(ctx, expense("Toy car", 2500, core.Week)); err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
		before, _ := s.ListExpenses(ctx, core.Week)
		if err := s.RemoveExpense(ctx, 987654); err != nil {
			t.Fatalf("RemoveExpense unknown id: %v", err)
		}
		after, _ := s.ListExpenses(ctx, core.Week)
		if len(before) != len(after) {
			t.Fatalf("list changed after removing an unknown id")
		}
	})

	t.Run("remove deletes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id, _ := s.AddExpense(ctx, expense("Toy car", 2500, core.Week))
		if err := s.RemoveExpense(ctx, id); err != nil {
			t.Fatalf("RemoveExpense: %v", err)
		}
		if err := s.RemoveExpense(ctx, id); err != nil {
			t.Fatalf("second RemoveExpense: %v", err)
		}
		items, _ := s.ListExpenses(ctx, core.Week)
		if len(items) != 0 {
			t.Fatalf("expected no expenses, got %+v", items)
		}
	})

	t.Run("total matches list", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		total, err := s.TotalExpenses(ctx, core.Year)
		if err != nil || total.Cents != 0 {
			t.Fatalf("empty total = %d, %v", total.Cents, err)
		}
		for _, c := range []int64{199, 1, 1000} {
			if _, err := s.AddExpense(ctx, expense("x", c, core.Year)); err != nil {
				t.Fatalf("AddExpense: %v", err)
			}
		}
		_, _ = s.AddExpense(ctx, expense("elsewhere", 5000, core.Week))
		items, _ := s.ListExpenses(ctx, core.Year)
		var sum int64
		for _, e := range items {
			sum += e.Amount.Cents
		}
		total, err = s.TotalExpenses(ctx, core.Year)
		if err != nil || total.Cents != sum || sum != 1200 {
			t.Fatalf("total = %d, sum = %d, err = %v", total.Cents, sum, err)
		}
	})

	t.Run("invalid expense writes nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, e := range []core.Expense{expense("", 1000, core.Week), expense("Snacks", 0, core.Week)} {
			if _, err := s.AddExpense(ctx, e); !core.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		}
		items, _ := s.ListExpenses(ctx, core.Week)
		if len(items) != 0 {
			t.Fatalf("invalid input produced rows: %+v", items)
		}
	})

	t.Run("gifts total and attribution", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		empty, err := s.TotalGifts(ctx)
		if err != nil || empty.Amount.Cents != 0 || empty.Attribution != "" {
			t.Fatalf("empty gifts = %+v, %v", empty, err)
		}
		if _, err := s.AddGift(ctx, core.Gift{Giver: "Grandma", Amount: core.Money{Cents: 3000}}); err != nil {
			t.Fatalf("AddGift: %v", err)
		}
		id, err := s.AddGift(ctx, core.Gift{Giver: "Uncle Saad", Amount: core.Money{Cents: 2000}})
		if err != nil {
			t.Fatalf("AddGift: %v", err)
		}
		total, err := s.TotalGifts(ctx)
		if err != nil {
			t.Fatalf("TotalGifts: %v", err)
		}
		if total.Amount.Cents != 5000 || total.Attribution != "Grandma, Uncle Saad" {
			t.Fatalf("unexpected total: %+v", total)
		}
		if _, err := s.AddGift(ctx, core.Gift{Giver: " ", Amount: core.Money{Cents: 1}}); !errors.Is(err, core.ErrEmptyGiver) {
			t.Fatalf("expected ErrEmptyGiver, got %v", err)
		}
		if err := s.RemoveGift(ctx, id); err != nil {
			t.Fatalf("RemoveGift: %v", err)
		}
		gifts, _ := s.ListGifts(ctx)
		if len(gifts) != 1 || gifts[0].Giver != "Grandma" {
			t.Fatalf("unexpected gifts: %+v", gifts)
		}
	})

	t.Run("attribution follows insertion order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, giver := range []string{"Zia", "Aunt Bea", "Mum"} {
			if _, err := s.AddGift(ctx, core.Gift{Giver: giver, Amount: core.Money{Cents: 100}}); err != nil {
				t.Fatalf("AddGift(%s): %v", giver, err)
			}
		}
		total, err := s.TotalGifts(ctx)
		if err != nil || total.Attribution != "Zia, Aunt Bea, Mum" {
			t.Fatalf("attribution = %q, %v", total.Attribution, err)
		}
	})

	t.Run("settings default and latest wins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		got, err := s.GetSettings(ctx)
		if err != nil {
			t.Fatalf("GetSettings: %v", err)
		}
		if !sameSettings(got, core.DefaultSettings()) {
			t.Fatalf("expected defaults, got %+v", got)
		}

		first := core.DefaultSettings()
		first.BaseAllowance = core.Money{Cents: 2000}
		first.AccountingPeriod = core.Week
		second := first
		second.Reward = core.DefaultMonthlyReward
		second.Display.Font = "Courier"
		for _, v := range []core.Settings{first, second} {
			if err := s.SetSettings(ctx, v); err != nil {
				t.Fatalf("SetSettings: %v", err)
			}
		}

		a, _ := s.GetSettings(ctx)
		b, _ := s.GetSettings(ctx)
		if !sameSettings(a, second) || !sameSettings(a, b) {
			t.Fatalf("expected latest settings twice, got %+v and %+v", a, b)
		}

		history, err := s.SettingsHistory(ctx, 10)
		if err != nil {
			t.Fatalf("SettingsHistory: %v", err)
		}
		if len(history) != 2 || !sameSettings(history[0], second) || !sameSettings(history[1], first) {
			t.Fatalf("unexpected history: %+v", history)
		}
		limited, _ := s.SettingsHistory(ctx, 1)
		if len(limited) != 1 {
			t.Fatalf("limit ignored: %d entries", len(limited))
		}

		bad := second
		bad.Display.FontSize = 99
		if err := s.SetSettings(ctx, bad); !core.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
		c, _ := s.GetSettings(ctx)
		if !sameSettings(c, second) {
			t.Fatalf("rejected settings were applied: %+v", c)
		}
	})
}

func expense(name string, cents int64, p core.Period) core.Expense {
	return core.Expense{Name: name, Category: core.Food, Amount: core.Money{Cents: cents}, Period: p}
}

// sameSettings ignores UpdatedAt, which stores stamp themselves.
func sameSettings(a, b core.Settings) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return a == b
}

// RunAudit exercises audit trail contracts.
func RunAudit(t *testing.T, newLog func(t *testing.T) ledger.AuditLog) {
	t.Helper()

	t.Run("append and list newest first", func(t *testing.T) {
		l := newLog(t)
		ctx := context.Background()
		at := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
		for i, id := range []string{"evt-1", "evt-2"} {
			ok, err := l.AppendAudit(ctx, ledger.AuditRecord{
				EventID:    id,
				Type:       "expense.created",
				EntityID:   int64(i + 1),
				Payload:    []byte(`{"name":"Snacks"}`),
				OccurredAt: at,
			})
			if err != nil || !ok {
				t.Fatalf("AppendAudit(%s) = %v, %v", id, ok, err)
			}
		}
		recs, err := l.ListAudit(ctx, 10)
		if err != nil {
			t.Fatalf("ListAudit: %v", err)
		}
		if len(recs) != 2 || recs[0].EventID != "evt-2" || recs[1].EntityID != 1 {
			t.Fatalf("unexpected records: %+v", recs)
		}
		if string(recs[1].Payload) != `{"name":"Snacks"}` || !recs[1].OccurredAt.Equal(at) {
			t.Fatalf("record not preserved: %+v", recs[1])
		}
	})

	t.Run("duplicate event id is skipped", func(t *testing.T) {
		l := newLog(t)
		ctx := context.Background()
		rec := ledger.AuditRecord{EventID: "evt-dup", Type: "gift.added", EntityID: 3, Payload: []byte(`{}`), OccurredAt: time.Now().UTC()}
		if ok, err := l.AppendAudit(ctx, rec); err != nil || !ok {
			t.Fatalf("first append = %v, %v", ok, err)
		}
		if ok, err := l.AppendAudit(ctx, rec); err != nil || ok {
			t.Fatalf("second append = %v, %v", ok, err)
		}
		recs, _ := l.ListAudit(ctx, 0)
		if len(recs) != 1 {
			t.Fatalf("expected 1 record, got %d", len(recs))
		}
	})
}
