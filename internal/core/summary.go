package core

// GiftTotal is the sum of all gift income plus who gave it, comma-joined in
// insertion order.
type GiftTotal struct {
	Amount      Money
	Attribution string
}

// PeriodSummary is everything a caller needs to redraw after a mutation.
type PeriodSummary struct {
	Period   Period
	Settings Settings
	Balance  BalanceResult
	Gifts    GiftTotal
	Expenses []Expense
}
