// Package postgres is the shared-database ledger backend, for deployments
// where several instances must see the same ledger.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.AuditLog = (*Store)(nil)
)

// Open migrates the database at url and returns a pooled store.
func Open(ctx context.Context, url string) (*Store, error) {
	if err := RunMigrations(url); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// RunMigrations applies the embedded schema through the pgx/v5 migrate driver.
func RunMigrations(url string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(url))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL swaps the scheme for the one the pgx/v5 migrate driver registers.
func migrateURL(url string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(url, prefix) {
			return "pgx5://" + strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return core.NewStorageError("ping", s.pool.Ping(ctx))
}

func (s *Store) AddExpense(ctx context.Context, e core.Expense) (int64, error) {
	if e.Date.IsZero() {
		e.Date = core.Today()
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO expenses (name, category, amount_cents, period, date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.Name, string(e.Category), e.Amount.Cents, string(e.Period), e.Date.Time,
	).Scan(&id)
	if err != nil {
		return 0, core.NewStorageError("create expense", err)
	}

	slog.InfoContext(ctx, "Expense saved", "id", id, "category", e.Category, "amount_cents", e.Amount.Cents, "period", e.Period)
	return id, nil
}

func (s *Store) RemoveExpense(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	return core.NewStorageError("delete expense", err)
}

func (s *Store) ListExpenses(ctx context.Context, period core.Period) ([]core.Expense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, amount_cents, period, date
		 FROM expenses WHERE period = $1 ORDER BY id DESC`, string(period))
	if err != nil {
		return nil, core.NewStorageError("list expenses", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		var (
			e        core.Expense
			category string
			p        string
			date     time.Time
		)
		if err := rows.Scan(&e.ID, &e.Name, &category, &e.Amount.Cents, &p, &date); err != nil {
			return nil, core.NewStorageError("scan expense", err)
		}
		e.Category = core.Category(category)
		e.Period = core.Period(p)
		e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list expenses", err)
	}
	return out, nil
}

func (s *Store) TotalExpenses(ctx context.Context, period core.Period) (core.Money, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::BIGINT FROM expenses WHERE period = $1`, string(period),
	).Scan(&total)
	if err != nil {
		return core.Money{}, core.NewStorageError("sum expenses", err)
	}
	return core.Money{Cents: total}, nil
}

func (s *Store) AddGift(ctx context.Context, g core.Gift) (int64, error) {
	if g.Date.IsZero() {
		g.Date = core.Today()
	}
	if err := g.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO gifts (giver, amount_cents, date) VALUES ($1, $2, $3) RETURNING id`,
		g.Giver, g.Amount.Cents, g.Date.Time,
	).Scan(&id)
	if err != nil {
		return 0, core.NewStorageError("create gift", err)
	}

	slog.InfoContext(ctx, "Gift saved", "id", id, "amount_cents", g.Amount.Cents)
	return id, nil
}

func (s *Store) RemoveGift(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM gifts WHERE id = $1`, id)
	return core.NewStorageError("delete gift", err)
}

func (s *Store) ListGifts(ctx context.Context) ([]core.Gift, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, giver, amount_cents, date FROM gifts ORDER BY id ASC`)
	if err != nil {
		return nil, core.NewStorageError("list gifts", err)
	}
	defer rows.Close()

	out := make([]core.Gift, 0)
	for rows.Next() {
		var (
			g    core.Gift
			date time.Time
		)
		if err := rows.Scan(&g.ID, &g.Giver, &g.Amount.Cents, &date); err != nil {
			return nil, core.NewStorageError("scan gift", err)
		}
		g.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list gifts", err)
	}
	return out, nil
}

func (s *Store) TotalGifts(ctx context.Context) (core.GiftTotal, error) {
	var (
		total       int64
		attribution string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::BIGINT, COALESCE(string_agg(giver, ', ' ORDER BY id), '')
		 FROM gifts`,
	).Scan(&total, &attribution)
	if err != nil {
		return core.GiftTotal{}, core.NewStorageError("sum gifts", err)
	}
	return core.GiftTotal{Amount: core.Money{Cents: total}, Attribution: attribution}, nil
}

const settingsColumns = `base_allowance_cents, allowance_period, accounting_period, reward_kind,
	reward_amount_cents, font, font_size, bg_color, text_color`

func (s *Store) GetSettings(ctx context.Context) (core.Settings, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+settingsColumns+`, updated_at FROM settings WHERE id = 1`)
	settings, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, core.NewStorageError("get settings", err)
	}
	return settings, nil
}

func (s *Store) SetSettings(ctx context.Context, settings core.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = s.now().UTC()
	args := settingsArgs(settings)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO settings (id, `+settingsColumns+`, updated_at)
			 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET
			     base_allowance_cents = EXCLUDED.base_allowance_cents,
			     allowance_period     = EXCLUDED.allowance_period,
			     accounting_period    = EXCLUDED.accounting_period,
			     reward_kind          = EXCLUDED.reward_kind,
			     reward_amount_cents  = EXCLUDED.reward_amount_cents,
			     font                 = EXCLUDED.font,
			     font_size            = EXCLUDED.font_size,
			     bg_color             = EXCLUDED.bg_color,
			     text_color           = EXCLUDED.text_color,
			     updated_at           = EXCLUDED.updated_at`, args...); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO settings_history (`+settingsColumns+`, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, args...); err != nil {
			return fmt.Errorf("append settings history: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.NewStorageError("set settings", err)
	}

	slog.InfoContext(ctx, "Settings saved", "accounting_period", settings.AccountingPeriod, "reward", settings.Reward.Kind)
	return nil
}

func (s *Store) SettingsHistory(ctx context.Context, limit int) ([]core.Settings, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settingsColumns+`, created_at FROM settings_history ORDER BY id DESC LIMIT $1`,
		pgLimit(limit))
	if err != nil {
		return nil, core.NewStorageError("list settings history", err)
	}
	defer rows.Close()

	out := make([]core.Settings, 0)
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, core.NewStorageError("scan settings history", err)
		}
		out = append(out, settings)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list settings history", err)
	}
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, rec ledger.AuditRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event_id, event_type, entity_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.Type, rec.EntityID, string(rec.Payload), rec.OccurredAt.UTC())
	if err != nil {
		return false, core.NewStorageError("append audit entry", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]ledger.AuditRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, event_type, entity_id, payload::TEXT, occurred_at, recorded_at
		 FROM audit_log ORDER BY id DESC LIMIT $1`, pgLimit(limit))
	if err != nil {
		return nil, core.NewStorageError("list audit entries", err)
	}
	defer rows.Close()

	out := make([]ledger.AuditRecord, 0)
	for rows.Next() {
		var (
			rec     ledger.AuditRecord
			payload string
		)
		if err := rows.Scan(&rec.EventID, &rec.Type, &rec.EntityID, &payload, &rec.OccurredAt, &rec.RecordedAt); err != nil {
			return nil, core.NewStorageError("scan audit entry", err)
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list audit entries", err)
	}
	return out, nil
}

// pgLimit maps "no limit" to NULL, which Postgres treats as LIMIT ALL.
func pgLimit(limit int) *int64 {
	if limit <= 0 {
		return nil
	}
	n := int64(limit)
	return &n
}

func settingsArgs(s core.Settings) []any {
	return []any{
		s.BaseAllowance.Cents,
		string(s.AllowancePeriod),
		string(s.AccountingPeriod),
		string(s.Reward.Kind),
		s.Reward.Amount.Cents,
		s.Display.Font,
		s.Display.FontSize,
		s.Display.BackgroundColor,
		s.Display.TextColor,
		s.UpdatedAt,
	}
}

func scanSettings(row pgx.Row) (core.Settings, error) {
	var (
		s                           core.Settings
		allowancePeriod, accounting string
		rewardKind                  string
	)
	err := row.Scan(
		&s.BaseAllowance.Cents, &allowancePeriod, &accounting, &rewardKind, &s.Reward.Amount.Cents,
		&s.Display.Font, &s.Display.FontSize, &s.Display.BackgroundColor, &s.Display.TextColor,
		&s.UpdatedAt,
	)
	if err != nil {
		return core.Settings{}, err
	}
	s.AllowancePeriod = core.Period(allowancePeriod)
	s.AccountingPeriod = core.Period(accounting)
	s.Reward.Kind = core.RewardKind(rewardKind)
	return s, nil
}
