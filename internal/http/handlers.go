package http

import (
	"context"
	"net/http"

	"pocketmoney/internal/core"
	"pocketmoney/internal/services"
)

// Ledger is what the handlers need from services.LedgerService.
type Ledger interface {
	RewardMode() core.RewardMode
	AddExpense(ctx context.Context, in services.ExpenseInput) (int64, core.PeriodSummary, error)
	RemoveExpense(ctx context.Context, id int64) (core.PeriodSummary, error)
	ListExpenses(ctx context.Context, period core.Period) (services.ExpenseList, error)
	AddGift(ctx context.Context, giver string, amount core.Money) (int64, core.PeriodSummary, error)
	RemoveGift(ctx context.Context, id int64) (core.PeriodSummary, error)
	Gifts(ctx context.Context) ([]core.Gift, core.GiftTotal, error)
	Settings(ctx context.Context) (core.Settings, error)
	UpdateSettings(ctx context.Context, s core.Settings) (core.Settings, error)
	ResetSettings(ctx context.Context) (core.Settings, error)
	SettingsHistory(ctx context.Context, limit int) ([]core.Settings, error)
	Summary(ctx context.Context, period core.Period) (core.PeriodSummary, error)
	Ping(ctx context.Context) error
}

var _ Ledger = (*services.LedgerService)(nil)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats := core.Categories()
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{Name: string(c), Label: c.Label()})
	}
	NewJSONResponse().Body(map[string]any{
		"categories": out,
		"periods":    core.Periods(),
	}).Write(w)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriodQuery(r)
	if err != nil {
		writeError(w, r, "balance", err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), period)
	if err != nil {
		writeError(w, r, "balance", err)
		return
	}
	NewJSONResponse().Body(toSummaryView(summary, s.ledger.RewardMode())).Write(w)
}

// mutationBody is returned by every write so callers can redraw without a
// second request.
type mutationBody struct {
	ID      int64       `json:"id,omitempty"`
	Summary summaryView `json:"summary"`
}
