package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteRepository is the durable ledger backend.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	// SQLite allows one writer at a time; serialize in-process writes instead
	// of surfacing SQLITE_BUSY to callers.
	writeMu sync.Mutex
	now     func() time.Time
}

var (
	_ ledger.Store    = (*SQLiteRepository)(nil)
	_ ledger.AuditLog = (*SQLiteRepository)(nil)
)

// DSN builds the connection string used for both the pool and migrations.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if v, dirty, ok, err := SchemaVersion(dsn); err == nil && ok {
		slog.Info("SQLite schema ready", "db_path", dbPath, "version", v, "dirty", dirty)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.NewStorageError("ping", r.db.PingContext(ctx))
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) (int64, error) {
	if e.Date.IsZero() {
		e.Date = core.Today()
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	row, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		Name:        e.Name,
		Category:    string(e.Category),
		AmountCents: e.Amount.Cents,
		Period:      string(e.Period),
		Date:        e.Date.String(),
	})
	if err != nil {
		return 0, core.NewStorageError("create expense", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", row.ID,
		"category", row.Category,
		"amount_cents", row.AmountCents,
		"period", row.Period)

	return row.ID, nil
}

func (r *SQLiteRepository) RemoveExpense(ctx context.Context, id int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	n, err := r.queries.DeleteExpense(ctx, id)
	if err != nil {
		return core.NewStorageError("delete expense", err)
	}
	if n == 0 {
		slog.DebugContext(ctx, "Expense already absent", "id", id)
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, period core.Period) ([]core.Expense, error) {
	rows, err := r.queries.GetExpensesByPeriod(ctx, string(period))
	if err != nil {
		return nil, core.NewStorageError("list expenses", err)
	}

	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := expenseFromRow(row)
		if err != nil {
			return nil, core.NewStorageError("decode expense", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func (r *SQLiteRepository) TotalExpenses(ctx context.Context, period core.Period) (core.Money, error) {
	total, err := r.queries.GetPeriodTotal(ctx, string(period))
	if err != nil {
		return core.Money{}, core.NewStorageError("sum expenses", err)
	}
	return core.Money{Cents: total}, nil
}

func (r *SQLiteRepository) AddGift(ctx context.Context, g core.Gift) (int64, error) {
	if g.Date.IsZero() {
		g.Date = core.Today()
	}
	if err := g.Validate(); err != nil {
		return 0, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	row, err := r.queries.CreateGift(ctx, CreateGiftParams{
		Giver:       g.Giver,
		AmountCents: g.Amount.Cents,
		Date:        g.Date.String(),
	})
	if err != nil {
		return 0, core.NewStorageError("create gift", err)
	}

	slog.InfoContext(ctx, "Gift saved", "id", row.ID, "amount_cents", row.AmountCents)
	return row.ID, nil
}

func (r *SQLiteRepository) RemoveGift(ctx context.Context, id int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, err := r.queries.DeleteGift(ctx, id); err != nil {
		return core.NewStorageError("delete gift", err)
	}
	return nil
}

func (r *SQLiteRepository) ListGifts(ctx context.Context) ([]core.Gift, error) {
	rows, err := r.queries.GetGifts(ctx)
	if err != nil {
		return nil, core.NewStorageError("list gifts", err)
	}

	gifts := make([]core.Gift, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, core.NewStorageError("decode gift", err)
		}
		gifts = append(gifts, core.Gift{
			ID:     row.ID,
			Giver:  row.Giver,
			Amount: core.Money{Cents: row.AmountCents},
			Date:   d,
		})
	}
	return gifts, nil
}

func (r *SQLiteRepository) TotalGifts(ctx context.Context) (core.GiftTotal, error) {
	totals, err := r.queries.GetGiftTotals(ctx)
	if err != nil {
		return core.GiftTotal{}, core.NewStorageError("sum gifts", err)
	}
	return core.GiftTotal{
		Amount:      core.Money{Cents: totals.TotalCents},
		Attribution: totals.Attribution,
	}, nil
}

func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.Settings, error) {
	row, err := r.queries.GetSettings(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, core.NewStorageError("get settings", err)
	}
	s, err := settingsFromRow(row)
	if err != nil {
		return core.Settings{}, core.NewStorageError("decode settings", err)
	}
	return s, nil
}

// SetSettings replaces the current row and appends to the history in one
// transaction, so a failed write leaves both untouched.
func (r *SQLiteRepository) SetSettings(ctx context.Context, s core.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.UpdatedAt = r.now().UTC()
	row := settingsToRow(s)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStorageError("begin settings tx", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.UpsertSettings(ctx, row); err != nil {
		return core.NewStorageError("save settings", err)
	}
	if err := q.InsertSettingsHistory(ctx, row); err != nil {
		return core.NewStorageError("append settings history", err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("commit settings", err)
	}

	slog.InfoContext(ctx, "Settings saved",
		"accounting_period", row.AccountingPeriod,
		"reward", row.RewardKind,
		"base_allowance_cents", row.BaseAllowanceCents)
	return nil
}

func (r *SQLiteRepository) SettingsHistory(ctx context.Context, limit int) ([]core.Settings, error) {
	rows, err := r.queries.GetSettingsHistory(ctx, sqliteLimit(limit))
	if err != nil {
		return nil, core.NewStorageError("list settings history", err)
	}

	out := make([]core.Settings, 0, len(rows))
	for _, row := range rows {
		s, err := settingsFromRow(row)
		if err != nil {
			return nil, core.NewStorageError("decode settings history", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SQLiteRepository) AppendAudit(ctx context.Context, rec ledger.AuditRecord) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	inserted, err := r.queries.InsertAuditEntry(ctx, InsertAuditEntryParams{
		EventID:    rec.EventID,
		EventType:  rec.Type,
		EntityID:   rec.EntityID,
		Payload:    string(rec.Payload),
		OccurredAt: rec.OccurredAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return false, core.NewStorageError("append audit entry", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) ListAudit(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	rows, err := r.queries.GetAuditEntries(ctx, sqliteLimit(limit))
	if err != nil {
		return nil, core.NewStorageError("list audit entries", err)
	}

	out := make([]ledger.AuditRecord, 0, len(rows))
	for _, row := range rows {
		occurred, err := time.Parse(timeLayout, row.OccurredAt)
		if err != nil {
			return nil, core.NewStorageError("decode audit entry", err)
		}
		// recorded_at comes from the column default and has second precision
		recorded, _ := time.Parse(time.RFC3339, row.RecordedAt)
		out = append(out, ledger.AuditRecord{
			EventID:    row.EventID,
			Type:       row.EventType,
			EntityID:   row.EntityID,
			Payload:    []byte(row.Payload),
			OccurredAt: occurred,
			RecordedAt: recorded,
		})
	}
	return out, nil
}

// sqliteLimit maps "no limit" to SQLite's -1.
func sqliteLimit(limit int) int64 {
	if limit <= 0 {
		return -1
	}
	return int64(limit)
}

func expenseFromRow(row Expense) (core.Expense, error) {
	d, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:       row.ID,
		Name:     row.Name,
		Category: core.Category(row.Category),
		Amount:   core.Money{Cents: row.AmountCents},
		Period:   core.Period(row.Period),
		Date:     d,
	}, nil
}

func settingsToRow(s core.Settings) SettingsRow {
	return SettingsRow{
		BaseAllowanceCents: s.BaseAllowance.Cents,
		AllowancePeriod:    string(s.AllowancePeriod),
		AccountingPeriod:   string(s.AccountingPeriod),
		RewardKind:         string(s.Reward.Kind),
		RewardAmountCents:  s.Reward.Amount.Cents,
		Font:               s.Display.Font,
		FontSize:           int64(s.Display.FontSize),
		BgColor:            s.Display.BackgroundColor,
		TextColor:          s.Display.TextColor,
		UpdatedAt:          s.UpdatedAt.UTC().Format(timeLayout),
	}
}

func settingsFromRow(row SettingsRow) (core.Settings, error) {
	updated, err := time.Parse(timeLayout, row.UpdatedAt)
	if err != nil {
		return core.Settings{}, err
	}
	return core.Settings{
		BaseAllowance:    core.Money{Cents: row.BaseAllowanceCents},
		AllowancePeriod:  core.Period(row.AllowancePeriod),
		AccountingPeriod: core.Period(row.AccountingPeriod),
		Reward: core.RewardChoice{
			Kind:   core.RewardKind(row.RewardKind),
			Amount: core.Money{Cents: row.RewardAmountCents},
		},
		Display: core.DisplayPrefs{
			Font:            row.Font,
			FontSize:        int(row.FontSize),
			BackgroundColor: row.BgColor,
			TextColor:       row.TextColor,
		},
		UpdatedAt: updated,
	}, nil
}
