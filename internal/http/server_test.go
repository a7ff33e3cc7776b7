package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pocketmoney/internal/cache"
	"pocketmoney/internal/core"
	"pocketmoney/internal/ledger/memory"
	applog "pocketmoney/internal/log"
	"pocketmoney/internal/services"
)

func newTestServer(t *testing.T, ledger Ledger, rpm int) *Server {
	t.Helper()
	logger := applog.New(applog.Config{Output: io.Discard})
	srv, err := NewServer(":0", ledger, Options{Logger: logger, RateLimitRPM: rpm})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.limiter.Stop)
	return srv
}

func newLedger() *services.LedgerService {
	return services.NewLedgerService(memory.New(), nil,
		cache.NewLRUCache[core.PeriodSummary](8, time.Minute), core.RewardCommitment)
}

func do(t *testing.T, srv *Server, method, target, contentType, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	var decoded map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", method, target, rr.Body.String(), err)
		}
	}
	return rr, decoded
}

func postJSON(t *testing.T, srv *Server, target string, v any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return do(t, srv, http.MethodPost, target, "application/json", string(b))
}

func expected(t *testing.T, body map[string]any) string {
	t.Helper()
	summary, ok := body["summary"].(map[string]any)
	if !ok {
		summary = body
	}
	balance, ok := summary["balance"].(map[string]any)
	if !ok {
		t.Fatalf("no balance in %v", body)
	}
	return balance["expected"].(string)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr, _ := do(t, srv, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}

func TestCreateExpense(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)

	rr, body := postJSON(t, srv, "/expenses", map[string]string{
		"name": "Lunch", "category": "Food", "amount": "12.50",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if body["id"].(float64) <= 0 {
		t.Fatalf("missing id: %v", body)
	}
	summary := body["summary"].(map[string]any)
	if summary["period"] != "Month" {
		t.Fatalf("period = %v, want Month", summary["period"])
	}
	if got := expected(t, body); got != "37.50" {
		t.Fatalf("expected balance = %s, want 37.50", got)
	}

	form := url.Values{"name": {"Robot"}, "category": {"toys"}, "amount": {"7,25"}, "period": {"week"}}
	rr, body = do(t, srv, http.MethodPost, "/expenses", "application/x-www-form-urlencoded", form.Encode())
	if rr.Code != http.StatusCreated {
		t.Fatalf("form status = %d, body %s", rr.Code, rr.Body.String())
	}
	if period := body["summary"].(map[string]any)["period"]; period != "Week" {
		t.Fatalf("form period = %v", period)
	}

	rr, body = do(t, srv, http.MethodGet, "/expenses?period=Week", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	items := body["expenses"].([]any)
	if len(items) != 1 || body["total"] != "7.25" {
		t.Fatalf("list = %v", body)
	}
	item := items[0].(map[string]any)
	if item["category"] != "Toys" || item["category_label"] == "" || item["date"] == "" {
		t.Fatalf("item = %v", item)
	}

	_, body = do(t, srv, http.MethodGet, "/expenses", "", "")
	if body["period"] != "Month" || len(body["expenses"].([]any)) != 1 {
		t.Fatalf("default period listing = %v", body)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)

	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"bad amount", map[string]string{"name": "x", "category": "Food", "amount": "abc"}, "amount"},
		{"zero amount", map[string]string{"name": "x", "category": "Food", "amount": "0"}, "amount"},
		{"empty name", map[string]string{"name": "  ", "category": "Food", "amount": "1"}, "name"},
		{"unknown category", map[string]string{"name": "x", "category": "Cars", "amount": "1"}, "category"},
		{"unknown period", map[string]string{"name": "x", "category": "Food", "amount": "1", "period": "Decade"}, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := postJSON(t, srv, "/expenses", tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
			}
			if body["field"] != tt.field {
				t.Fatalf("field = %v, want %s", body["field"], tt.field)
			}
		})
	}

	rr, _ := do(t, srv, http.MethodPost, "/expenses", "application/json", `{"name":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed JSON status = %d", rr.Code)
	}

	_, body := do(t, srv, http.MethodGet, "/expenses?period=Month", "", "")
	if len(body["expenses"].([]any)) != 0 {
		t.Fatalf("rejected input was stored: %v", body)
	}
}

func TestDeleteExpense(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)
	_, body := postJSON(t, srv, "/expenses", map[string]string{"name": "Book", "category": "Stores", "amount": "10"})
	id := int64(body["id"].(float64))

	target := "/expenses/" + jsonNumber(id)
	for i := 0; i < 2; i++ {
		rr, body := do(t, srv, http.MethodDelete, target, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("delete #%d status = %d", i+1, rr.Code)
		}
		if got := expected(t, body); got != "50.00" {
			t.Fatalf("balance after delete = %s", got)
		}
	}

	rr, _ := do(t, srv, http.MethodDelete, "/expenses/abc", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id status = %d", rr.Code)
	}
	rr, _ = do(t, srv, http.MethodGet, "/expenses/1", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /expenses/1 status = %d", rr.Code)
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestGifts(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)

	for _, g := range []map[string]any{{"giver": "Grandma", "amount": 20}, {"giver": "Uncle Saad", "amount": "5.5"}} {
		rr, _ := postJSON(t, srv, "/gifts", g)
		if rr.Code != http.StatusCreated {
			t.Fatalf("gift status = %d, body %s", rr.Code, rr.Body.String())
		}
	}

	rr, body := do(t, srv, http.MethodGet, "/gifts", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body["total"] != "25.50" || body["attribution"] != "Grandma, Uncle Saad" {
		t.Fatalf("gifts = %v", body)
	}

	_, body = do(t, srv, http.MethodGet, "/balance", "", "")
	if got := expected(t, body); got != "75.50" {
		t.Fatalf("balance = %s, want 75.50", got)
	}

	rr, body = postJSON(t, srv, "/gifts", map[string]string{"giver": "", "amount": "3"})
	if rr.Code != http.StatusUnprocessableEntity || body["field"] != "giver" {
		t.Fatalf("empty giver: %d %v", rr.Code, body)
	}

	rr, body = do(t, srv, http.MethodDelete, "/gifts/1", "", "")
	if rr.Code != http.StatusOK || expected(t, body) != "55.50" {
		t.Fatalf("delete gift: %d %v", rr.Code, body)
	}
}

func TestSettings(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)

	rr, body := do(t, srv, http.MethodGet, "/settings", "", "")
	if rr.Code != http.StatusOK || body["base_allowance"] != "50.00" || body["reward_kind"] != "None" {
		t.Fatalf("defaults = %d %v", rr.Code, body)
	}

	rr, body = postJSON(t, srv, "/settings", map[string]any{
		"base_allowance":    "30",
		"allowance_period":  "Week",
		"accounting_period": "Month",
		"reward_kind":       "Weekly",
		"font_size":         30,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rr.Code, rr.Body.String())
	}
	if body["reward_amount"] != "10.00" || body["font_size"].(float64) != 30 || body["updated_at"] == nil {
		t.Fatalf("stored = %v", body)
	}

	// 30/week -> 120/month, weekly reward 10 -> 40/month
	_, body = do(t, srv, http.MethodGet, "/balance", "", "")
	if got := expected(t, body); got != "80.00" {
		t.Fatalf("balance = %s, want 80.00", got)
	}
	_, body = do(t, srv, http.MethodGet, "/balance?period=week", "", "")
	if got := expected(t, body); got != "20.00" {
		t.Fatalf("weekly balance = %s, want 20.00", got)
	}

	rr, body = postJSON(t, srv, "/settings", map[string]any{"allowance_period": "Week", "accounting_period": "Week"})
	if rr.Code != http.StatusUnprocessableEntity || body["field"] != "base_allowance" {
		t.Fatalf("missing allowance: %d %v", rr.Code, body)
	}
	rr, body = postJSON(t, srv, "/settings", map[string]any{
		"base_allowance": "1", "allowance_period": "Week", "accounting_period": "Week", "bg_color": "red",
	})
	if rr.Code != http.StatusUnprocessableEntity || body["field"] != "bg_color" {
		t.Fatalf("bad colour: %d %v", rr.Code, body)
	}

	rr, body = do(t, srv, http.MethodPost, "/settings/reset", "", "")
	if rr.Code != http.StatusOK || body["base_allowance"] != "50.00" || body["reward_kind"] != "None" {
		t.Fatalf("reset = %d %v", rr.Code, body)
	}

	_, body = do(t, srv, http.MethodGet, "/settings/history?limit=1", "", "")
	history := body["history"].([]any)
	if len(history) != 1 || history[0].(map[string]any)["base_allowance"] != "50.00" {
		t.Fatalf("history = %v", history)
	}
	_, body = do(t, srv, http.MethodGet, "/settings/history", "", "")
	if len(body["history"].([]any)) != 2 {
		t.Fatalf("full history = %v", body["history"])
	}
	rr, _ = do(t, srv, http.MethodGet, "/settings/history?limit=-1", "", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative limit status = %d", rr.Code)
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)
	_, body := do(t, srv, http.MethodGet, "/categories", "", "")
	cats := body["categories"].([]any)
	if len(cats) != 5 || cats[0].(map[string]any)["name"] != "Food" {
		t.Fatalf("categories = %v", cats)
	}
	if len(body["periods"].([]any)) != 3 {
		t.Fatalf("periods = %v", body["periods"])
	}
}

// brokenLedger fails every read with a storage error.
type brokenLedger struct {
	Ledger
}

var errBroken = core.NewStorageError("query", errors.New("database is locked"))

func (brokenLedger) Summary(context.Context, core.Period) (core.PeriodSummary, error) {
	return core.PeriodSummary{}, errBroken
}
func (brokenLedger) Ping(context.Context) error { return errBroken }

func TestStorageErrors(t *testing.T) {
	srv := newTestServer(t, brokenLedger{Ledger: newLedger()}, 0)

	rr, body := do(t, srv, http.MethodGet, "/balance", "", "")
	if rr.Code != http.StatusInternalServerError || body["error"] != "internal error" {
		t.Fatalf("balance: %d %v", rr.Code, body)
	}
	if strings.Contains(rr.Body.String(), "locked") {
		t.Fatal("storage detail leaked to client")
	}

	rr, _ = do(t, srv, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d", rr.Code)
	}
}

// settingsCounter counts direct settings reads made by handlers.
type settingsCounter struct {
	Ledger
	reads int
}

func (c *settingsCounter) Settings(ctx context.Context) (core.Settings, error) {
	c.reads++
	return c.Ledger.Settings(ctx)
}

func TestListExpensesDefaultPeriodResolvedByLedger(t *testing.T) {
	counter := &settingsCounter{Ledger: newLedger()}
	srv := newTestServer(t, counter, 0)

	rr, body := do(t, srv, http.MethodGet, "/expenses", "", "")
	if rr.Code != http.StatusOK || body["period"] != "Month" || body["total"] != "0.00" {
		t.Fatalf("GET /expenses: %d %v", rr.Code, body)
	}
	if counter.reads != 0 {
		t.Fatalf("handler read settings %d times", counter.reads)
	}
}

func TestRateLimitPerForwardedClient(t *testing.T) {
	get := func(srv *Server, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil) // RemoteAddr 192.0.2.1
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	logger := applog.New(applog.Config{Output: io.Discard})
	proxied, err := NewServer(":0", newLedger(), Options{
		Logger:         logger,
		RateLimitRPM:   1,
		TrustedProxies: []string{"192.0.2.0/24"},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(proxied.limiter.Stop)
	if a, b := get(proxied, "203.0.113.7"), get(proxied, "203.0.113.8"); a != http.StatusOK || b != http.StatusOK {
		t.Fatalf("clients behind a trusted proxy share a bucket: %d %d", a, b)
	}

	direct := newTestServer(t, newLedger(), 1)
	if a, b := get(direct, "203.0.113.7"), get(direct, "203.0.113.8"); a != http.StatusOK || b != http.StatusTooManyRequests {
		t.Fatalf("untrusted forwarding header honoured: %d %d", a, b)
	}

	if _, err := NewServer(":0", newLedger(), Options{Logger: logger, TrustedProxies: []string{"nope"}}); err == nil {
		t.Fatal("expected error for an invalid trusted proxy")
	}
}

func TestMiddlewareChain(t *testing.T) {
	srv := newTestServer(t, newLedger(), 2)

	for i := 0; i < 2; i++ {
		rr, _ := do(t, srv, http.MethodGet, "/healthz", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("headers = %v", rr.Header())
		}
	}

	rr, body := do(t, srv, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d %v", rr.Code, rr.Header())
	}
	if body["error"] == nil {
		t.Fatalf("429 body = %v", body)
	}
}

func TestBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, newLedger(), 0)
	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	rr, _ := do(t, srv, http.MethodPost, "/gifts", "application/x-www-form-urlencoded", "giver="+string(big))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rr.Code)
	}
}
