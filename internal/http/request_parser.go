package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pocketmoney/internal/core"
	"pocketmoney/internal/services"
)

// maxBodyBytes caps request bodies; every accepted payload is a handful of
// short fields.
const maxBodyBytes = 64 << 10

var errBadID = errors.New("id must be a positive integer")

// RequestBodyParser reads a JSON object or a form-encoded body and exposes
// both through Get.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("malformed JSON body: %w", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("malformed form body: %w", p.err)
	}
	return p.err
}

// Get returns the trimmed, control-character-free value for key.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func invalidField(field string, err error) error {
	return &core.ValidationError{Field: field, Err: err}
}

// ParseExpenseInput reads name, category, amount and an optional period.
func ParseExpenseInput(p *RequestBodyParser) (services.ExpenseInput, error) {
	in := services.ExpenseInput{Name: p.Get("name")}

	category, err := core.ParseCategory(p.Get("category"))
	if err != nil {
		return in, err
	}
	in.Category = category

	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return in, invalidField("amount", err)
	}
	in.Amount = core.Money{Cents: cents}

	if v := p.Get("period"); v != "" {
		period, err := core.ParsePeriod(v)
		if err != nil {
			return in, err
		}
		in.Period = period
	}
	return in, nil
}

func ParseGiftInput(p *RequestBodyParser) (string, core.Money, error) {
	giver := p.Get("giver")
	cents, err := core.ParseDecimalToCents(p.Get("amount"))
	if err != nil {
		return giver, core.Money{}, invalidField("amount", err)
	}
	return giver, core.Money{Cents: cents}, nil
}

// ParseSettings builds a full replacement from the body. Allowance and both
// periods are required. A missing reward means none; a weekly or monthly
// reward without an amount takes the preset. Missing display fields take
// their defaults.
func ParseSettings(p *RequestBodyParser) (core.Settings, error) {
	s := core.DefaultSettings()

	raw := p.Get("base_allowance")
	if raw == "" {
		return s, invalidField("base_allowance", core.ErrInvalidAmount)
	}
	cents, err := core.ParseNonNegativeCents(raw)
	if err != nil {
		return s, invalidField("base_allowance", err)
	}
	s.BaseAllowance = core.Money{Cents: cents}

	if s.AllowancePeriod, err = parsePeriodField(p, "allowance_period"); err != nil {
		return s, err
	}
	if s.AccountingPeriod, err = parsePeriodField(p, "accounting_period"); err != nil {
		return s, err
	}

	kind, err := core.ParseRewardKind(p.Get("reward_kind"))
	if err != nil {
		return s, err
	}
	s.Reward = core.RewardChoice{Kind: kind}
	if amount := p.Get("reward_amount"); amount != "" && kind != core.RewardNone {
		cents, err := core.ParseDecimalToCents(amount)
		if err != nil {
			return s, invalidField("reward_amount", err)
		}
		s.Reward.Amount = core.Money{Cents: cents}
	} else if kind == core.RewardWeekly {
		s.Reward = core.DefaultWeeklyReward
	} else if kind == core.RewardMonthly {
		s.Reward = core.DefaultMonthlyReward
	}

	if v := p.Get("font"); v != "" {
		s.Display.Font = v
	}
	if v := p.Get("font_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return s, invalidField("font_size", core.ErrInvalidDisplay)
		}
		s.Display.FontSize = size
	}
	if v := p.Get("bg_color"); v != "" {
		s.Display.BackgroundColor = v
	}
	if v := p.Get("text_color"); v != "" {
		s.Display.TextColor = v
	}

	return s, s.Validate()
}

func parsePeriodField(p *RequestBodyParser, field string) (core.Period, error) {
	period, err := core.ParsePeriod(p.Get(field))
	if err != nil {
		return "", invalidField(field, core.ErrInvalidPeriod)
	}
	return period, nil
}

// ParseID reads the {id} path segment.
func ParseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// ParsePeriodQuery reads ?period=; empty means the current accounting period.
func ParsePeriodQuery(r *http.Request) (core.Period, error) {
	v := strings.TrimSpace(r.URL.Query().Get("period"))
	if v == "" {
		return "", nil
	}
	return core.ParsePeriod(v)
}

// ParseLimit reads ?limit=, falling back to def when absent.
func ParseLimit(r *http.Request, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalidField("limit", errors.New("limit must be a non-negative integer"))
	}
	return n, nil
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
