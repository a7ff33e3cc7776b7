package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pocketmoney/internal/amqp"
	"pocketmoney/internal/cache"
	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger"
)

// storeTimeout bounds every store round-trip made on behalf of a request.
const storeTimeout = 7 * time.Second

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// ExpenseInput is an expense as submitted, before it has an id or date.
// An empty Period files the expense under the current accounting period.
type ExpenseInput struct {
	Name     string
	Category core.Category
	Amount   core.Money
	Period   core.Period
}

// LedgerService validates and applies ledger mutations, announces them as
// events and answers with the refreshed period summary.
type LedgerService struct {
	store     ledger.Store
	events    EventPublisher
	summaries cache.Cache[core.PeriodSummary]
	mode      core.RewardMode

	// cacheMu orders summary stores against invalidation; generation moves
	// on every committed write so a summary loaded before it is never cached.
	cacheMu    sync.Mutex
	generation uint64
}

// NewLedgerService wires the service. events and summaries may be nil to
// run without publishing or caching.
func NewLedgerService(store ledger.Store, events EventPublisher, summaries cache.Cache[core.PeriodSummary], mode core.RewardMode) *LedgerService {
	if mode == "" {
		mode = core.RewardCommitment
	}
	return &LedgerService{
		store:     store,
		events:    events,
		summaries: summaries,
		mode:      mode,
	}
}

func (s *LedgerService) RewardMode() core.RewardMode { return s.mode }

// AddExpense records the expense and returns its id together with the
// summary of the period it was filed under.
func (s *LedgerService) AddExpense(ctx context.Context, in ExpenseInput) (int64, core.PeriodSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	period := in.Period
	if period == "" {
		settings, err := s.store.GetSettings(ctx)
		if err != nil {
			return 0, core.PeriodSummary{}, fmt.Errorf("resolve period: %w", err)
		}
		period = settings.AccountingPeriod
	}

	e := core.Expense{
		Name:     strings.TrimSpace(in.Name),
		Category: in.Category,
		Amount:   in.Amount,
		Period:   period,
		Date:     core.Today(),
	}
	if err := e.Validate(); err != nil {
		return 0, core.PeriodSummary{}, err
	}

	id, err := s.store.AddExpense(ctx, e)
	if err != nil {
		return 0, core.PeriodSummary{}, fmt.Errorf("add expense: %w", err)
	}
	e.ID = id
	s.invalidate()
	s.publish(ctx, amqp.EventExpenseCreated, id, expensePayload(e))

	summary, err := s.summary(ctx, period)
	return id, summary, err
}

// RemoveExpense deletes by id; an unknown id still succeeds. The summary is
// for the current accounting period.
func (s *LedgerService) RemoveExpense(ctx context.Context, id int64) (core.PeriodSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := s.store.RemoveExpense(ctx, id); err != nil {
		return core.PeriodSummary{}, fmt.Errorf("remove expense: %w", err)
	}
	s.invalidate()
	s.publish(ctx, amqp.EventExpenseRemoved, id, nil)

	return s.summary(ctx, "")
}

// ExpenseList is one period's expenses, newest first, with their total.
type ExpenseList struct {
	Period core.Period
	Items  []core.Expense
	Total  core.Money
}

// ListExpenses lists period, or the current accounting period when empty.
func (s *LedgerService) ListExpenses(ctx context.Context, period core.Period) (ExpenseList, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	period, err := s.resolvePeriod(ctx, period)
	if err != nil {
		return ExpenseList{}, err
	}

	items, err := s.store.ListExpenses(ctx, period)
	if err != nil {
		return ExpenseList{}, fmt.Errorf("list expenses: %w", err)
	}
	// summed from the same read so the total always matches the list
	return ExpenseList{Period: period, Items: items, Total: sumExpenses(items)}, nil
}

func (s *LedgerService) AddGift(ctx context.Context, giver string, amount core.Money) (int64, core.PeriodSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	g := core.Gift{Giver: strings.TrimSpace(giver), Amount: amount, Date: core.Today()}
	if err := g.Validate(); err != nil {
		return 0, core.PeriodSummary{}, err
	}

	id, err := s.store.AddGift(ctx, g)
	if err != nil {
		return 0, core.PeriodSummary{}, fmt.Errorf("add gift: %w", err)
	}
	g.ID = id
	s.invalidate()
	s.publish(ctx, amqp.EventGiftAdded, id, giftPayload(g))

	summary, err := s.summary(ctx, "")
	return id, summary, err
}

func (s *LedgerService) RemoveGift(ctx context.Context, id int64) (core.PeriodSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := s.store.RemoveGift(ctx, id); err != nil {
		return core.PeriodSummary{}, fmt.Errorf("remove gift: %w", err)
	}
	s.invalidate()
	s.publish(ctx, amqp.EventGiftRemoved, id, nil)

	return s.summary(ctx, "")
}

// Gifts returns every gift in insertion order and the attributed total.
func (s *LedgerService) Gifts(ctx context.Context) ([]core.Gift, core.GiftTotal, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var (
		gifts []core.Gift
		total core.GiftTotal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gifts, err = s.store.ListGifts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.TotalGifts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, core.GiftTotal{}, fmt.Errorf("list gifts: %w", err)
	}
	return gifts, total, nil
}

func (s *LedgerService) Settings(ctx context.Context) (core.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings replaces the settings wholesale and returns what was stored.
func (s *LedgerService) UpdateSettings(ctx context.Context, settings core.Settings) (core.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := settings.Validate(); err != nil {
		return core.Settings{}, err
	}
	if err := s.store.SetSettings(ctx, settings); err != nil {
		return core.Settings{}, fmt.Errorf("set settings: %w", err)
	}
	s.invalidate()

	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return core.Settings{}, fmt.Errorf("reload settings: %w", err)
	}
	s.publish(ctx, amqp.EventSettingsUpdated, 1, settingsPayload(stored))
	return stored, nil
}

func (s *LedgerService) ResetSettings(ctx context.Context) (core.Settings, error) {
	return s.UpdateSettings(ctx, core.DefaultSettings())
}

func (s *LedgerService) SettingsHistory(ctx context.Context, limit int) ([]core.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	history, err := s.store.SettingsHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("settings history: %w", err)
	}
	return history, nil
}

// Summary computes the balance view for period; an empty period means the
// current accounting period.
func (s *LedgerService) Summary(ctx context.Context, period core.Period) (core.PeriodSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.summary(ctx, period)
}

func (s *LedgerService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return s.store.Ping(ctx)
}

func (s *LedgerService) summary(ctx context.Context, period core.Period) (core.PeriodSummary, error) {
	if period != "" {
		if err := period.Validate(); err != nil {
			return core.PeriodSummary{}, err
		}
		if cached, ok := s.cached(period); ok {
			return cached, nil
		}
	}

	generation := s.currentGeneration()

	var (
		settings core.Settings
		gifts    core.GiftTotal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = s.store.GetSettings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		gifts, err = s.store.TotalGifts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.PeriodSummary{}, fmt.Errorf("load summary: %w", err)
	}
	if period == "" {
		period = settings.AccountingPeriod
		if cached, ok := s.cached(period); ok {
			return cached, nil
		}
	}

	expenses, err := s.store.ListExpenses(ctx, period)
	if err != nil {
		return core.PeriodSummary{}, fmt.Errorf("load period expenses: %w", err)
	}

	summary := core.PeriodSummary{
		Period:   period,
		Settings: settings,
		Gifts:    gifts,
		Expenses: expenses,
		Balance: core.ComputeBalance(core.BalanceInput{
			BaseAllowance:    settings.BaseAllowance,
			AllowancePeriod:  settings.AllowancePeriod,
			AccountingPeriod: period,
			Reward:           settings.Reward,
			TotalExpenses:    sumExpenses(expenses),
			TotalGifts:       gifts.Amount,
			Mode:             s.mode,
		}),
	}
	s.remember(period, generation, summary)
	return summary, nil
}

func (s *LedgerService) cached(period core.Period) (core.PeriodSummary, bool) {
	if s.summaries == nil {
		return core.PeriodSummary{}, false
	}
	return s.summaries.Get(string(period))
}

func (s *LedgerService) resolvePeriod(ctx context.Context, period core.Period) (core.Period, error) {
	if period != "" {
		return period, period.Validate()
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve period: %w", err)
	}
	return settings.AccountingPeriod, nil
}

func (s *LedgerService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// remember caches summary unless a write committed after its loads began.
func (s *LedgerService) remember(period core.Period, generation uint64, summary core.PeriodSummary) {
	if s.summaries == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if generation == s.generation {
		s.summaries.Set(string(period), summary)
	}
}

// invalidate drops every cached summary: gift and settings writes affect all
// periods, and the cache holds at most three keys.
func (s *LedgerService) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.summaries != nil {
		s.summaries.Purge()
	}
}

func sumExpenses(items []core.Expense) core.Money {
	var total core.Money
	for _, e := range items {
		total = total.Add(e.Amount)
	}
	return total
}

// publish announces a committed mutation. Failures are logged only; the
// write has already succeeded.
func (s *LedgerService) publish(ctx context.Context, eventType string, entityID int64, payload any) {
	if s.events == nil {
		return
	}
	event, err := amqp.NewLedgerEvent(eventType, entityID, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build ledger event", "type", eventType, "entity_id", entityID, "error", err)
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			"type", eventType,
			"entity_id", entityID,
			"event_id", event.ID,
			"error", err)
	}
}
