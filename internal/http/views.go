package http

import (
	"time"

	"pocketmoney/internal/core"
)

// JSON shapes. Amounts marshal as fixed two-decimal strings.

type expenseView struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	Category      string      `json:"category"`
	CategoryLabel string      `json:"category_label"`
	Amount        core.Money  `json:"amount"`
	Period        core.Period `json:"period"`
	Date          string      `json:"date"`
}

type giftView struct {
	ID     int64      `json:"id"`
	Giver  string     `json:"giver"`
	Amount core.Money `json:"amount"`
	Date   string     `json:"date"`
}

type giftTotalView struct {
	Total       core.Money `json:"total"`
	Attribution string     `json:"attribution"`
}

// settingsView is flat so a GET body can be posted back unchanged.
type settingsView struct {
	BaseAllowance    core.Money  `json:"base_allowance"`
	AllowancePeriod  core.Period `json:"allowance_period"`
	AccountingPeriod core.Period `json:"accounting_period"`
	RewardKind       string      `json:"reward_kind"`
	RewardAmount     core.Money  `json:"reward_amount"`
	Font             string      `json:"font"`
	FontSize         int         `json:"font_size"`
	BgColor          string      `json:"bg_color"`
	TextColor        string      `json:"text_color"`
	UpdatedAt        *time.Time  `json:"updated_at,omitempty"`
}

type balanceView struct {
	Base     core.Money `json:"base"`
	Reward   core.Money `json:"reward"`
	Expenses core.Money `json:"expenses"`
	Gifts    core.Money `json:"gifts"`
	Expected core.Money `json:"expected"`
}

type summaryView struct {
	Period     core.Period   `json:"period"`
	RewardMode string        `json:"reward_mode"`
	Balance    balanceView   `json:"balance"`
	Gifts      giftTotalView `json:"gifts"`
	Expenses   []expenseView `json:"expenses"`
	Settings   settingsView  `json:"settings"`
}

type categoryView struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

func toExpenseView(e core.Expense) expenseView {
	return expenseView{
		ID:            e.ID,
		Name:          e.Name,
		Category:      string(e.Category),
		CategoryLabel: e.Category.Label(),
		Amount:        e.Amount,
		Period:        e.Period,
		Date:          e.Date.String(),
	}
}

func toExpenseViews(items []core.Expense) []expenseView {
	out := make([]expenseView, 0, len(items))
	for _, e := range items {
		out = append(out, toExpenseView(e))
	}
	return out
}

func toGiftViews(items []core.Gift) []giftView {
	out := make([]giftView, 0, len(items))
	for _, g := range items {
		out = append(out, giftView{ID: g.ID, Giver: g.Giver, Amount: g.Amount, Date: g.Date.String()})
	}
	return out
}

func toSettingsView(s core.Settings) settingsView {
	v := settingsView{
		BaseAllowance:    s.BaseAllowance,
		AllowancePeriod:  s.AllowancePeriod,
		AccountingPeriod: s.AccountingPeriod,
		RewardKind:       string(s.Reward.Kind),
		RewardAmount:     s.Reward.Amount,
		Font:             s.Display.Font,
		FontSize:         s.Display.FontSize,
		BgColor:          s.Display.BackgroundColor,
		TextColor:        s.Display.TextColor,
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

func toSettingsViews(items []core.Settings) []settingsView {
	out := make([]settingsView, 0, len(items))
	for _, s := range items {
		out = append(out, toSettingsView(s))
	}
	return out
}

func toSummaryView(s core.PeriodSummary, mode core.RewardMode) summaryView {
	return summaryView{
		Period:     s.Period,
		RewardMode: string(mode),
		Balance: balanceView{
			Base:     s.Balance.Base,
			Reward:   s.Balance.Reward,
			Expenses: s.Balance.Expenses,
			Gifts:    s.Balance.Gifts,
			Expected: s.Balance.Expected,
		},
		Gifts:    giftTotalView{Total: s.Gifts.Amount, Attribution: s.Gifts.Attribution},
		Expenses: toExpenseViews(s.Expenses),
		Settings: toSettingsView(s.Settings),
	}
}
