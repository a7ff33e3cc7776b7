package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// RewardCommitment subtracts the reward milestone from the expected balance.
	RewardCommitment RewardMode = "commitment"
	// RewardBonus adds it instead.
	RewardBonus RewardMode = "bonus"
)

// Fixed approximations, not calendar accurate.
const (
	weeksPerMonth = 4
	monthsPerYear = 12
	weeksPerYear  = 52
	balancePlaces = 2
)

type RewardMode string

func ParseRewardMode(s string) (RewardMode, error) {
	switch RewardMode(strings.ToLower(strings.TrimSpace(s))) {
	case RewardCommitment, "":
		return RewardCommitment, nil
	case RewardBonus:
		return RewardBonus, nil
	}
	return "", fmt.Errorf("unknown reward mode %q", s)
}

// BalanceInput carries already validated values for one computation.
type BalanceInput struct {
	BaseAllowance Money
	// AllowancePeriod is the period BaseAllowance is denominated in. Empty
	// means the allowance is already expressed in AccountingPeriod units.
	AllowancePeriod  Period
	AccountingPeriod Period
	Reward           RewardChoice
	TotalExpenses    Money
	TotalGifts       Money
	Mode             RewardMode
}

type BalanceResult struct {
	Period   Period
	Base     Money
	Reward   Money
	Expenses Money
	Gifts    Money
	Expected Money
}

// ComputeBalance returns the expected remaining balance for the accounting
// period: base + gifts - expenses - reward (reward is added in bonus mode).
// Only the final value is rounded, half away from zero, to two decimals; the
// reported Base and Reward components are rounded independently for display.
func ComputeBalance(in BalanceInput) BalanceResult {
	base := ConvertAmount(in.BaseAllowance.Decimal(), in.AllowancePeriod, in.AccountingPeriod)
	reward := RewardForPeriod(in.Reward, in.AccountingPeriod)

	expected := base.Add(in.TotalGifts.Decimal()).Sub(in.TotalExpenses.Decimal())
	if in.Mode == RewardBonus {
		expected = expected.Add(reward)
	} else {
		expected = expected.Sub(reward)
	}

	return BalanceResult{
		Period:   in.AccountingPeriod,
		Base:     MoneyFromDecimal(base),
		Reward:   MoneyFromDecimal(reward),
		Expenses: in.TotalExpenses,
		Gifts:    in.TotalGifts,
		Expected: MoneyFromDecimal(expected.Round(balancePlaces)),
	}
}

// RewardForPeriod scales a reward choice to the given period.
func RewardForPeriod(r RewardChoice, p Period) decimal.Decimal {
	switch r.Kind {
	case RewardWeekly:
		return ConvertAmount(r.Amount.Decimal(), Week, p)
	case RewardMonthly:
		return ConvertAmount(r.Amount.Decimal(), Month, p)
	default:
		return decimal.Zero
	}
}

// ConvertAmount rescales an amount denominated in from into to units. An empty
// from (or to) leaves the amount untouched.
func ConvertAmount(amount decimal.Decimal, from, to Period) decimal.Decimal {
	if from == "" || to == "" || from == to {
		return amount
	}
	f, ok := conversions[[2]Period{from, to}]
	if !ok {
		return amount
	}
	return amount.Mul(decimal.NewFromInt(f.mul)).Div(decimal.NewFromInt(f.div))
}

type factor struct{ mul, div int64 }

var conversions = map[[2]Period]factor{
	{Week, Month}: {weeksPerMonth, 1},
	{Month, Week}: {1, weeksPerMonth},
	{Month, Year}: {monthsPerYear, 1},
	{Year, Month}: {1, monthsPerYear},
	{Week, Year}:  {weeksPerYear, 1},
	{Year, Week}:  {1, weeksPerYear},
}
