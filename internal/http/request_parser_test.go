package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pocketmoney/internal/core"
)

func parserFor(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	p := NewRequestBodyParser(httptest.NewRecorder(), r)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse(%q): %v", body, err)
	}
	return p
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		key    string
		want   string
		isJSON bool
	}{
		{"json string", `{"name":"  Lunch "}`, "name", "Lunch", true},
		{"json number", `{"amount":12.5}`, "amount", "12.5", true},
		{"json missing key", `{"name":"x"}`, "amount", "", true},
		{"form", "name=Book&amount=3%2C20", "amount", "3,20", false},
		{"control characters stripped", "name=a%00b%07c", "name", "abc", false},
		{"empty body", "", "name", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parserFor(t, tt.body)
			if got := p.Get(tt.key); got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if p.IsJSON() != tt.isJSON {
				t.Errorf("IsJSON = %v", p.IsJSON())
			}
		})
	}
}

func TestRequestBodyParserMalformed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	p := NewRequestBodyParser(httptest.NewRecorder(), r)
	if err := p.Parse(); err == nil {
		t.Fatal("expected error")
	}
	// second call returns the cached result
	if err := p.Parse(); err == nil {
		t.Fatal("expected cached error")
	}
}

func TestParseExpenseInput(t *testing.T) {
	in, err := ParseExpenseInput(parserFor(t, `{"name":"Kite","category":"toys","amount":"4.995","period":"YEAR"}`))
	if err != nil {
		t.Fatal(err)
	}
	if in.Category != core.Toys || in.Amount.Cents != 500 || in.Period != core.Year || in.Name != "Kite" {
		t.Fatalf("in = %+v", in)
	}

	in, err = ParseExpenseInput(parserFor(t, `{"name":"Kite","category":"Toys","amount":"1"}`))
	if err != nil || in.Period != "" {
		t.Fatalf("period should stay empty: %+v %v", in, err)
	}

	_, err = ParseExpenseInput(parserFor(t, `{"name":"Kite","category":"Toys","amount":"-1"}`))
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Field != "amount" || !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings(parserFor(t, "base_allowance=0&allowance_period=Month&accounting_period=Year&reward_kind=monthly"))
	if err != nil {
		t.Fatal(err)
	}
	if s.BaseAllowance.Cents != 0 || s.AccountingPeriod != core.Year || s.Reward != core.DefaultMonthlyReward {
		t.Fatalf("s = %+v", s)
	}
	if s.Display != core.DefaultDisplayPrefs() {
		t.Fatalf("display = %+v", s.Display)
	}

	s, err = ParseSettings(parserFor(t, `{"base_allowance":"5","allowance_period":"Week","accounting_period":"Week",
		"reward_kind":"Weekly","reward_amount":"2.50","font":"Courier","font_size":"22","bg_color":"#000000","text_color":"#FFFFFF"}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Reward.Amount.Cents != 250 || s.Display.Font != "Courier" || s.Display.FontSize != 22 {
		t.Fatalf("s = %+v", s)
	}

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing allowance", "allowance_period=Week&accounting_period=Week", "base_allowance"},
		{"negative allowance", "base_allowance=-1&allowance_period=Week&accounting_period=Week", "base_allowance"},
		{"bad allowance period", "base_allowance=1&allowance_period=Day&accounting_period=Week", "allowance_period"},
		{"missing accounting period", "base_allowance=1&allowance_period=Week", "accounting_period"},
		{"unknown reward", "base_allowance=1&allowance_period=Week&accounting_period=Week&reward_kind=Daily", "reward"},
		{"font size not a number", "base_allowance=1&allowance_period=Week&accounting_period=Week&font_size=big", "font_size"},
		{"font size out of range", "base_allowance=1&allowance_period=Week&accounting_period=Week&font_size=90", "font_size"},
		{"unknown font", "base_allowance=1&allowance_period=Week&accounting_period=Week&font=Comic", "font"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings(parserFor(t, tt.body))
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("err = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	tests := map[string]bool{"7": true, "0": false, "-3": false, "x": false, "": false}
	for raw, ok := range tests {
		r := httptest.NewRequest(http.MethodDelete, "/expenses/", nil)
		r.SetPathValue("id", raw)
		_, err := ParseID(r)
		if (err == nil) != ok {
			t.Errorf("ParseID(%q) err = %v", raw, err)
		}
	}
}

func TestParsePeriodQueryAndLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/balance?period=month&limit=5", nil)
	if p, err := ParsePeriodQuery(r); err != nil || p != core.Month {
		t.Fatalf("period = %q, %v", p, err)
	}
	if n, err := ParseLimit(r, 20); err != nil || n != 5 {
		t.Fatalf("limit = %d, %v", n, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/balance", nil)
	if p, err := ParsePeriodQuery(r); err != nil || p != "" {
		t.Fatalf("empty period = %q, %v", p, err)
	}
	if n, _ := ParseLimit(r, 20); n != 20 {
		t.Fatalf("default limit = %d", n)
	}

	r = httptest.NewRequest(http.MethodGet, "/balance?period=fortnight&limit=x", nil)
	if _, err := ParsePeriodQuery(r); !core.IsValidation(err) {
		t.Fatalf("bad period err = %v", err)
	}
	if _, err := ParseLimit(r, 20); !core.IsValidation(err) {
		t.Fatalf("bad limit err = %v", err)
	}
}
