package storage

// Row types mirror the tables one to one.

type Expense struct {
	ID          int64
	Name        string
	Category    string
	AmountCents int64
	Period      string
	Date        string
}

type Gift struct {
	ID          int64
	Giver       string
	AmountCents int64
	Date        string
}

type SettingsRow struct {
	BaseAllowanceCents int64
	AllowancePeriod    string
	AccountingPeriod   string
	RewardKind         string
	RewardAmountCents  int64
	Font               string
	FontSize           int64
	BgColor            string
	TextColor          string
	UpdatedAt          string
}

type GiftTotals struct {
	TotalCents  int64
	Attribution string
}

type AuditEntry struct {
	ID         int64
	EventID    string
	EventType  string
	EntityID   int64
	Payload    string
	OccurredAt string
	RecordedAt string
}
