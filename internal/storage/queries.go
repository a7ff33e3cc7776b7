package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createExpense = `
INSERT INTO expenses (name, category, amount_cents, period, date)
VALUES (?, ?, ?, ?, ?)
RETURNING id, name, category, amount_cents, period, date`

type CreateExpenseParams struct {
	Name        string
	Category    string
	AmountCents int64
	Period      string
	Date        string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense, arg.Name, arg.Category, arg.AmountCents, arg.Period, arg.Date)
	var i Expense
	err := row.Scan(&i.ID, &i.Name, &i.Category, &i.AmountCents, &i.Period, &i.Date)
	return i, err
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getExpensesByPeriod = `
SELECT id, name, category, amount_cents, period, date
FROM expenses
WHERE period = ?
ORDER BY id DESC`

func (q *Queries) GetExpensesByPeriod(ctx context.Context, period string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, getExpensesByPeriod, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Expense{}
	for rows.Next() {
		var i Expense
		if err := rows.Scan(&i.ID, &i.Name, &i.Category, &i.AmountCents, &i.Period, &i.Date); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPeriodTotal = `SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE period = ?`

func (q *Queries) GetPeriodTotal(ctx context.Context, period string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getPeriodTotal, period)
	var total int64
	err := row.Scan(&total)
	return total, err
}

const createGift = `
INSERT INTO gifts (giver, amount_cents, date)
VALUES (?, ?, ?)
RETURNING id, giver, amount_cents, date`

type CreateGiftParams struct {
	Giver       string
	AmountCents int64
	Date        string
}

func (q *Queries) CreateGift(ctx context.Context, arg CreateGiftParams) (Gift, error) {
	row := q.db.QueryRowContext(ctx, createGift, arg.Giver, arg.AmountCents, arg.Date)
	var i Gift
	err := row.Scan(&i.ID, &i.Giver, &i.AmountCents, &i.Date)
	return i, err
}

const deleteGift = `DELETE FROM gifts WHERE id = ?`

func (q *Queries) DeleteGift(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteGift, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getGifts = `SELECT id, giver, amount_cents, date FROM gifts ORDER BY id ASC`

func (q *Queries) GetGifts(ctx context.Context) ([]Gift, error) {
	rows, err := q.db.QueryContext(ctx, getGifts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Gift{}
	for rows.Next() {
		var i Gift
		if err := rows.Scan(&i.ID, &i.Giver, &i.AmountCents, &i.Date); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getGiftTotals = `
SELECT COALESCE(SUM(amount_cents), 0), COALESCE(GROUP_CONCAT(giver, ', ' ORDER BY id), '')
FROM gifts`

func (q *Queries) GetGiftTotals(ctx context.Context) (GiftTotals, error) {
	row := q.db.QueryRowContext(ctx, getGiftTotals)
	var i GiftTotals
	err := row.Scan(&i.TotalCents, &i.Attribution)
	return i, err
}

const getSettings = `
SELECT base_allowance_cents, allowance_period, accounting_period, reward_kind, reward_amount_cents,
       font, font_size, bg_color, text_color, updated_at
FROM settings
WHERE id = 1`

func (q *Queries) GetSettings(ctx context.Context) (SettingsRow, error) {
	row := q.db.QueryRowContext(ctx, getSettings)
	var i SettingsRow
	err := row.Scan(&i.BaseAllowanceCents, &i.AllowancePeriod, &i.AccountingPeriod, &i.RewardKind,
		&i.RewardAmountCents, &i.Font, &i.FontSize, &i.BgColor, &i.TextColor, &i.UpdatedAt)
	return i, err
}

const upsertSettings = `
INSERT INTO settings (id, base_allowance_cents, allowance_period, accounting_period, reward_kind,
                      reward_amount_cents, font, font_size, bg_color, text_color, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    base_allowance_cents = excluded.base_allowance_cents,
    allowance_period     = excluded.allowance_period,
    accounting_period    = excluded.accounting_period,
    reward_kind          = excluded.reward_kind,
    reward_amount_cents  = excluded.reward_amount_cents,
    font                 = excluded.font,
    font_size            = excluded.font_size,
    bg_color             = excluded.bg_color,
    text_color           = excluded.text_color,
    updated_at           = excluded.updated_at`

func (q *Queries) UpsertSettings(ctx context.Context, arg SettingsRow) error {
	_, err := q.db.ExecContext(ctx, upsertSettings, arg.BaseAllowanceCents, arg.AllowancePeriod,
		arg.AccountingPeriod, arg.RewardKind, arg.RewardAmountCents, arg.Font, arg.FontSize,
		arg.BgColor, arg.TextColor, arg.UpdatedAt)
	return err
}

const insertSettingsHistory = `
INSERT INTO settings_history (base_allowance_cents, allowance_period, accounting_period, reward_kind,
                              reward_amount_cents, font, font_size, bg_color, text_color, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertSettingsHistory(ctx context.Context, arg SettingsRow) error {
	_, err := q.db.ExecContext(ctx, insertSettingsHistory, arg.BaseAllowanceCents, arg.AllowancePeriod,
		arg.AccountingPeriod, arg.RewardKind, arg.RewardAmountCents, arg.Font, arg.FontSize,
		arg.BgColor, arg.TextColor, arg.UpdatedAt)
	return err
}

const getSettingsHistory = `
SELECT base_allowance_cents, allowance_period, accounting_period, reward_kind, reward_amount_cents,
       font, font_size, bg_color, text_color, created_at
FROM settings_history
ORDER BY id DESC
LIMIT ?`

func (q *Queries) GetSettingsHistory(ctx context.Context, limit int64) ([]SettingsRow, error) {
	rows, err := q.db.QueryContext(ctx, getSettingsHistory, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SettingsRow{}
	for rows.Next() {
		var i SettingsRow
		if err := rows.Scan(&i.BaseAllowanceCents, &i.AllowancePeriod, &i.AccountingPeriod, &i.RewardKind,
			&i.RewardAmountCents, &i.Font, &i.FontSize, &i.BgColor, &i.TextColor, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertAuditEntry = `
INSERT OR IGNORE INTO audit_log (event_id, event_type, entity_id, payload, occurred_at)
VALUES (?, ?, ?, ?, ?)`

type InsertAuditEntryParams struct {
	EventID    string
	EventType  string
	EntityID   int64
	Payload    string
	OccurredAt string
}

// InsertAuditEntry reports whether a new row was written; redelivered events
// are ignored by event_id.
func (q *Queries) InsertAuditEntry(ctx context.Context, arg InsertAuditEntryParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertAuditEntry, arg.EventID, arg.EventType, arg.EntityID, arg.Payload, arg.OccurredAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const getAuditEntries = `
SELECT id, event_id, event_type, entity_id, payload, occurred_at, recorded_at
FROM audit_log
ORDER BY id DESC
LIMIT ?`

func (q *Queries) GetAuditEntries(ctx context.Context, limit int64) ([]AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx, getAuditEntries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []AuditEntry{}
	for rows.Next() {
		var i AuditEntry
		if err := rows.Scan(&i.ID, &i.EventID, &i.EventType, &i.EntityID, &i.Payload, &i.OccurredAt, &i.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
