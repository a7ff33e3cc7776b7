package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pocketmoney/internal/amqp"
	"pocketmoney/internal/cache"
	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger"
	"pocketmoney/internal/ledger/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// failingStore fails every write and read with a storage error.
type failingStore struct {
	ledger.Store
}

var errDisk = core.NewStorageError("write", errors.New("disk I/O error"))

func (failingStore) AddExpense(context.Context, core.Expense) (int64, error) { return 0, errDisk }
func (failingStore) GetSettings(context.Context) (core.Settings, error) {
	return core.DefaultSettings(), nil
}

func newService(t *testing.T) (*LedgerService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewLedgerService(memory.New(), pub, cache.NewLRUCache[core.PeriodSummary](8, time.Minute), core.RewardCommitment), pub
}

func TestLedgerService_AddExpense(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	id, summary, err := svc.AddExpense(ctx, ExpenseInput{
		Name: "  Snacks ", Category: core.Food, Amount: core.Money{Cents: 1000}, Period: core.Week,
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if id == 0 {
		t.Fatal("expected an id")
	}
	if summary.Period != core.Week || len(summary.Expenses) != 1 || summary.Expenses[0].Name != "Snacks" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	// default allowance 50.00 is monthly; a week gets a quarter of it
	if summary.Balance.Expected.Cents != 1250-1000 {
		t.Fatalf("expected = %d", summary.Balance.Expected.Cents)
	}
	if got := pub.types(); len(got) != 1 || got[0] != amqp.EventExpenseCreated {
		t.Fatalf("events = %v", got)
	}

	var payload expenseEvent
	if err := json.Unmarshal(pub.events[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.AmountCents != 1000 || payload.Period != "Week" || payload.Name != "Snacks" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestLedgerService_AddExpenseDefaultsToAccountingPeriod(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	settings := core.DefaultSettings()
	settings.AccountingPeriod = core.Year
	if _, err := svc.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	_, summary, err := svc.AddExpense(ctx, ExpenseInput{Name: "Lego", Category: core.Toys, Amount: core.Money{Cents: 2500}})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if summary.Period != core.Year || summary.Expenses[0].Period != core.Year {
		t.Fatalf("expense filed under %q", summary.Expenses[0].Period)
	}
}

func TestLedgerService_ValidationWritesNothing(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   ExpenseInput
		want error
	}{
		{"empty name", ExpenseInput{Name: "  ", Category: core.Food, Amount: core.Money{Cents: 1}, Period: core.Week}, core.ErrEmptyName},
		{"zero amount", ExpenseInput{Name: "x", Category: core.Food, Period: core.Week}, core.ErrInvalidAmount},
		{"bad category", ExpenseInput{Name: "x", Category: "Cars", Amount: core.Money{Cents: 1}, Period: core.Week}, core.ErrInvalidCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.AddExpense(ctx, tc.in)
			if !errors.Is(err, tc.want) || !core.IsValidation(err) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	list, err := svc.ListExpenses(ctx, core.Week)
	if err != nil || len(list.Items) != 0 || list.Total.Cents != 0 {
		t.Fatalf("store changed: %+v %v", list, err)
	}
	if len(pub.types()) != 0 {
		t.Fatalf("rejected input published events: %v", pub.types())
	}

	if _, _, err := svc.AddGift(ctx, "", core.Money{Cents: 100}); !errors.Is(err, core.ErrEmptyGiver) {
		t.Fatalf("expected ErrEmptyGiver, got %v", err)
	}
}

func TestLedgerService_RemoveExpenseIsIdempotent(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	id, _, err := svc.AddExpense(ctx, ExpenseInput{Name: "Juice", Category: core.Food, Amount: core.Money{Cents: 300}, Period: core.Month})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	summary, err := svc.RemoveExpense(ctx, id)
	if err != nil {
		t.Fatalf("RemoveExpense: %v", err)
	}
	if len(summary.Expenses) != 0 || summary.Balance.Expected.Cents != 5000 {
		t.Fatalf("summary after remove: %+v", summary)
	}
	if _, err := svc.RemoveExpense(ctx, id); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, err := svc.RemoveExpense(ctx, 9999); err != nil {
		t.Fatalf("unknown id: %v", err)
	}
	want := []string{amqp.EventExpenseCreated, amqp.EventExpenseRemoved, amqp.EventExpenseRemoved, amqp.EventExpenseRemoved}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
}

func TestLedgerService_Gifts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, _, err := svc.AddGift(ctx, "Grandma", core.Money{Cents: 3000}); err != nil {
		t.Fatalf("AddGift: %v", err)
	}
	id, summary, err := svc.AddGift(ctx, "Uncle Saad", core.Money{Cents: 2000})
	if err != nil {
		t.Fatalf("AddGift: %v", err)
	}
	if summary.Gifts.Amount.Cents != 5000 || summary.Gifts.Attribution != "Grandma, Uncle Saad" {
		t.Fatalf("gifts = %+v", summary.Gifts)
	}
	if summary.Balance.Expected.Cents != 10000 {
		t.Fatalf("expected = %d", summary.Balance.Expected.Cents)
	}

	summary, err = svc.RemoveGift(ctx, id)
	if err != nil {
		t.Fatalf("RemoveGift: %v", err)
	}
	gifts, total, err := svc.Gifts(ctx)
	if err != nil {
		t.Fatalf("Gifts: %v", err)
	}
	if len(gifts) != 1 || total.Attribution != "Grandma" || summary.Gifts.Amount.Cents != 3000 {
		t.Fatalf("after remove: %v %+v %+v", gifts, total, summary.Gifts)
	}
}

func TestLedgerService_RewardScenarios(t *testing.T) {
	tests := []struct {
		name   string
		mode   core.RewardMode
		period core.Period
		reward core.RewardChoice
		base   int64
		want   int64
	}{
		{"weekly reward over a year", core.RewardCommitment, core.Year, core.RewardChoice{Kind: core.RewardWeekly, Amount: core.Money{Cents: 1000}}, 0, -52000},
		{"monthly reward over a month", core.RewardCommitment, core.Month, core.RewardChoice{Kind: core.RewardMonthly, Amount: core.Money{Cents: 5000}}, 0, -5000},
		{"bonus mode", core.RewardBonus, core.Month, core.DefaultWeeklyReward, 5000, 9000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewLedgerService(memory.New(), nil, nil, tt.mode)
			ctx := context.Background()
			s := core.DefaultSettings()
			s.BaseAllowance = core.Money{Cents: tt.base}
			s.AllowancePeriod = tt.period
			s.AccountingPeriod = tt.period
			s.Reward = tt.reward
			if _, err := svc.UpdateSettings(ctx, s); err != nil {
				t.Fatalf("UpdateSettings: %v", err)
			}
			summary, err := svc.Summary(ctx, "")
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			if summary.Balance.Expected.Cents != tt.want {
				t.Fatalf("expected = %d, want %d", summary.Balance.Expected.Cents, tt.want)
			}
		})
	}
}

func TestLedgerService_SummaryCacheInvalidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Summary(ctx, core.Month)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if first.Balance.Expected.Cents != 5000 {
		t.Fatalf("expected = %d", first.Balance.Expected.Cents)
	}

	if _, _, err := svc.AddGift(ctx, "Aunt", core.Money{Cents: 700}); err != nil {
		t.Fatalf("AddGift: %v", err)
	}
	second, err := svc.Summary(ctx, core.Month)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if second.Balance.Expected.Cents != 5700 {
		t.Fatalf("stale summary served: %d", second.Balance.Expected.Cents)
	}

	if _, err := svc.Summary(ctx, "Fortnight"); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

// pausingStore holds the first armed TotalGifts call after it has read, until
// release is closed.
type pausingStore struct {
	ledger.Store
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func (p *pausingStore) TotalGifts(ctx context.Context) (core.GiftTotal, error) {
	total, err := p.Store.TotalGifts(ctx)
	if p.armed.CompareAndSwap(true, false) {
		close(p.reached)
		<-p.release
	}
	return total, err
}

func TestLedgerService_SummaryLoadedBeforeWriteIsNotCached(t *testing.T) {
	store := &pausingStore{
		Store:   memory.New(),
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	store.armed.Store(true)
	svc := NewLedgerService(store, nil, cache.NewLRUCache[core.PeriodSummary](8, time.Minute), core.RewardCommitment)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Summary(ctx, core.Month)
		done <- err
	}()
	<-store.reached

	if _, _, err := svc.AddGift(ctx, "Grandma", core.Money{Cents: 3000}); err != nil {
		t.Fatalf("AddGift: %v", err)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("Summary: %v", err)
	}

	got, err := svc.Summary(ctx, core.Month)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if got.Gifts.Amount.Cents != 3000 || got.Balance.Expected.Cents != 8000 {
		t.Fatalf("stale summary cached: gifts=%s expected=%s", got.Gifts.Amount, got.Balance.Expected)
	}
}

func TestLedgerService_ListExpensesTotalMatchesItems(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, c := range []int64{250, 1000, 5} {
		if _, _, err := svc.AddExpense(ctx, ExpenseInput{Name: "x", Category: core.Food, Amount: core.Money{Cents: c}}); err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
	}
	list, err := svc.ListExpenses(ctx, "")
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if list.Period != core.Month || len(list.Items) != 3 || list.Total.Cents != 1255 {
		t.Fatalf("list = %s, %d items, total %d", list.Period, len(list.Items), list.Total.Cents)
	}
}

func TestLedgerService_SettingsHistoryAndReset(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	s := core.DefaultSettings()
	s.Reward = core.DefaultMonthlyReward
	stored, err := svc.UpdateSettings(ctx, s)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if stored.UpdatedAt.IsZero() || stored.Reward != core.DefaultMonthlyReward {
		t.Fatalf("stored = %+v", stored)
	}

	reset, err := svc.ResetSettings(ctx)
	if err != nil {
		t.Fatalf("ResetSettings: %v", err)
	}
	if reset.Reward.Kind != core.RewardNone {
		t.Fatalf("reset reward = %+v", reset.Reward)
	}

	history, err := svc.SettingsHistory(ctx, 10)
	if err != nil {
		t.Fatalf("SettingsHistory: %v", err)
	}
	if len(history) != 2 || history[0].Reward.Kind != core.RewardNone || history[1].Reward.Kind != core.RewardMonthly {
		t.Fatalf("history = %+v", history)
	}

	bad := core.DefaultSettings()
	bad.Display.FontSize = 99
	if _, err := svc.UpdateSettings(ctx, bad); !errors.Is(err, core.ErrInvalidDisplay) {
		t.Fatalf("expected ErrInvalidDisplay, got %v", err)
	}
	if got := pub.types(); len(got) != 2 || got[0] != amqp.EventSettingsUpdated {
		t.Fatalf("events = %v", got)
	}
}

func TestLedgerService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("circuit breaker is open")}
	svc := NewLedgerService(memory.New(), pub, nil, "")
	if svc.RewardMode() != core.RewardCommitment {
		t.Fatalf("default mode = %q", svc.RewardMode())
	}

	id, _, err := svc.AddGift(context.Background(), "Grandpa", core.Money{Cents: 100})
	if err != nil || id == 0 {
		t.Fatalf("AddGift = %d, %v", id, err)
	}
}

func TestLedgerService_StorageErrorPropagates(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewLedgerService(failingStore{Store: memory.New()}, pub, nil, core.RewardCommitment)

	_, _, err := svc.AddExpense(context.Background(), ExpenseInput{Name: "x", Category: core.Food, Amount: core.Money{Cents: 1}, Period: core.Week})
	var se *core.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if len(pub.types()) != 0 {
		t.Fatalf("failed write must not publish")
	}
}
