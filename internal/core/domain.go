package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	Week  Period = "Week"
	Month Period = "Month"
	Year  Period = "Year"
)

const (
	Food           Category = "Food"
	OnlineShopping Category = "Online Shopping"
	Stores         Category = "Stores"
	Toys           Category = "Toys"
	Other          Category = "Other"
)

const (
	RewardNone    RewardKind = "None"
	RewardWeekly  RewardKind = "Weekly"
	RewardMonthly RewardKind = "Monthly"
)

type (
	// Period is the accounting bucket used to file expenses and scale
	// recurring amounts.
	Period string

	Category string

	RewardKind string

	Date struct {
		time.Time
	}

	Expense struct {
		ID       int64
		Name     string
		Category Category
		Amount   Money
		Period   Period
		Date     Date
	}

	Gift struct {
		ID     int64
		Giver  string
		Amount Money
		Date   Date
	}

	// RewardChoice is the recurring chore milestone the user opted into.
	RewardChoice struct {
		Kind   RewardKind
		Amount Money
	}

	DisplayPrefs struct {
		Font            string
		FontSize        int
		BackgroundColor string
		TextColor       string
	}

	Settings struct {
		BaseAllowance    Money
		AllowancePeriod  Period // period the allowance is denominated in
		AccountingPeriod Period
		Reward           RewardChoice
		Display          DisplayPrefs
		UpdatedAt        time.Time
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyGiver      = errors.New("empty giver")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrInvalidReward   = errors.New("invalid reward")
	ErrInvalidDisplay  = errors.New("invalid display preferences")
	ErrNotFound        = errors.New("not found")
)

var (
	DefaultWeeklyReward  = RewardChoice{Kind: RewardWeekly, Amount: Money{Cents: 1000}}
	DefaultMonthlyReward = RewardChoice{Kind: RewardMonthly, Amount: Money{Cents: 5000}}
)

var (
	periods    = []Period{Week, Month, Year}
	categories = []Category{Food, OnlineShopping, Stores, Toys, Other}
	fonts      = []string{"Arial", "Courier", "Times New Roman"}
	hexColor   = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// ValidationError reports input rejected before any write.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// StorageError wraps a persistence failure. Fatal for the current request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError returns nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Periods returns the supported accounting periods in display order.
func Periods() []Period {
	return append([]Period(nil), periods...)
}

// ParsePeriod accepts the canonical names case-insensitively.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	for _, p := range periods {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", invalid("period", fmt.Errorf("%w: %q", ErrInvalidPeriod, s))
}

func (p Period) Validate() error {
	for _, v := range periods {
		if p == v {
			return nil
		}
	}
	return invalid("period", fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p)))
}

func (p Period) String() string { return string(p) }

// Categories returns the closed category set.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", invalid("category", fmt.Errorf("%w: %q", ErrInvalidCategory, s))
}

func (c Category) Validate() error {
	for _, v := range categories {
		if c == v {
			return nil
		}
	}
	return invalid("category", fmt.Errorf("%w: %q", ErrInvalidCategory, string(c)))
}

// Label is the display name shown next to the category.
func (c Category) Label() string {
	switch c {
	case Food:
		return "🍔 طعام"
	case OnlineShopping:
		return "🛒 تسوق أونلاين"
	case Stores:
		return "🏬 المتاجر"
	case Toys:
		return "🧸 ألعاب"
	case Other:
		return "📦 أخرى"
	default:
		return string(c)
	}
}

// Today returns the current calendar date in UTC, without a time component.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD; empty for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if len(e.Name) > 200 {
		return invalid("name", errors.New("name too long (max 200 characters)"))
	}
	if err := e.Category.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	return e.Period.Validate()
}

func (g Gift) Validate() error {
	if strings.TrimSpace(g.Giver) == "" {
		return invalid("giver", ErrEmptyGiver)
	}
	if len(g.Giver) > 200 {
		return invalid("giver", errors.New("giver too long (max 200 characters)"))
	}
	if err := g.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	return nil
}

func (r RewardChoice) Validate() error {
	switch r.Kind {
	case RewardNone:
		if r.Amount.Cents != 0 {
			return invalid("reward", fmt.Errorf("%w: none must not carry an amount", ErrInvalidReward))
		}
	case RewardWeekly, RewardMonthly:
		if r.Amount.Cents <= 0 {
			return invalid("reward", fmt.Errorf("%w: amount must be positive", ErrInvalidReward))
		}
	default:
		return invalid("reward", fmt.Errorf("%w: unknown kind %q", ErrInvalidReward, string(r.Kind)))
	}
	return nil
}

// ParseRewardKind accepts the kind names case-insensitively; empty means None.
func ParseRewardKind(s string) (RewardKind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RewardNone, nil
	}
	for _, k := range []RewardKind{RewardNone, RewardWeekly, RewardMonthly} {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", invalid("reward", fmt.Errorf("%w: unknown kind %q", ErrInvalidReward, s))
}

func (d DisplayPrefs) Validate() error {
	knownFont := false
	for _, f := range fonts {
		if d.Font == f {
			knownFont = true
			break
		}
	}
	if !knownFont {
		return invalid("font", fmt.Errorf("%w: unknown font %q", ErrInvalidDisplay, d.Font))
	}
	if d.FontSize < 20 || d.FontSize > 60 {
		return invalid("font_size", fmt.Errorf("%w: font size %d outside 20..60", ErrInvalidDisplay, d.FontSize))
	}
	if !hexColor.MatchString(d.BackgroundColor) {
		return invalid("bg_color", fmt.Errorf("%w: colour %q", ErrInvalidDisplay, d.BackgroundColor))
	}
	if !hexColor.MatchString(d.TextColor) {
		return invalid("text_color", fmt.Errorf("%w: colour %q", ErrInvalidDisplay, d.TextColor))
	}
	return nil
}

func (s Settings) Validate() error {
	if s.BaseAllowance.Cents < 0 {
		return invalid("base_allowance", ErrInvalidAmount)
	}
	if err := s.AllowancePeriod.Validate(); err != nil {
		return invalid("allowance_period", ErrInvalidPeriod)
	}
	if err := s.AccountingPeriod.Validate(); err != nil {
		return invalid("accounting_period", ErrInvalidPeriod)
	}
	if err := s.Reward.Validate(); err != nil {
		return err
	}
	return s.Display.Validate()
}

// DefaultDisplayPrefs mirrors the look the tracker ships with.
func DefaultDisplayPrefs() DisplayPrefs {
	return DisplayPrefs{
		Font:            "Arial",
		FontSize:        40,
		BackgroundColor: "#FFFFFF",
		TextColor:       "#000000",
	}
}

// DefaultSettings is returned when nothing was ever saved, and written by reset.
func DefaultSettings() Settings {
	return Settings{
		BaseAllowance:    Money{Cents: 5000},
		AllowancePeriod:  Month,
		AccountingPeriod: Month,
		Reward:           RewardChoice{Kind: RewardNone},
		Display:          DefaultDisplayPrefs(),
	}
}
