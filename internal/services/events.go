package services

import "pocketmoney/internal/core"

// Event payloads carry enough of the entity for the audit trail to be read
// without the ledger tables.

type expenseEvent struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Period      string `json:"period"`
	Date        string `json:"date"`
}

type giftEvent struct {
	Giver       string `json:"giver"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
}

type settingsEvent struct {
	BaseAllowanceCents int64  `json:"base_allowance_cents"`
	AllowancePeriod    string `json:"allowance_period"`
	AccountingPeriod   string `json:"accounting_period"`
	RewardKind         string `json:"reward_kind"`
	RewardAmountCents  int64  `json:"reward_amount_cents"`
}

func expensePayload(e core.Expense) expenseEvent {
	return expenseEvent{
		Name:        e.Name,
		Category:    string(e.Category),
		AmountCents: e.Amount.Cents,
		Period:      string(e.Period),
		Date:        e.Date.String(),
	}
}

func giftPayload(g core.Gift) giftEvent {
	return giftEvent{Giver: g.Giver, AmountCents: g.Amount.Cents, Date: g.Date.String()}
}

func settingsPayload(s core.Settings) settingsEvent {
	return settingsEvent{
		BaseAllowanceCents: s.BaseAllowance.Cents,
		AllowancePeriod:    string(s.AllowancePeriod),
		AccountingPeriod:   string(s.AccountingPeriod),
		RewardKind:         string(s.Reward.Kind),
		RewardAmountCents:  s.Reward.Amount.Cents,
	}
}
