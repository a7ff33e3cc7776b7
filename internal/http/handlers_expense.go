package http

import (
	"net/http"

	applog "pocketmoney/internal/log"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, "create expense", err)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	in, err := ParseExpenseInput(p)
	if err != nil {
		writeError(w, r, "create expense", err)
		return
	}

	id, summary, err := s.ledger.AddExpense(r.Context(), in)
	if err != nil {
		writeError(w, r, "create expense", err)
		return
	}

	s.audit.LogMutation(r.Context(), applog.OpCreate, "expense", id, in.Amount.Cents, string(summary.Period))
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(mutationBody{ID: id, Summary: toSummaryView(summary, s.ledger.RewardMode())}).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	summary, err := s.ledger.RemoveExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, "delete expense", err)
		return
	}

	s.audit.LogMutation(r.Context(), applog.OpDelete, "expense", id, 0, "")
	NewJSONResponse().Body(mutationBody{Summary: toSummaryView(summary, s.ledger.RewardMode())}).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriodQuery(r)
	if err != nil {
		writeError(w, r, "list expenses", err)
		return
	}

	// an empty period is resolved to the accounting period by the ledger
	list, err := s.ledger.ListExpenses(r.Context(), period)
	if err != nil {
		writeError(w, r, "list expenses", err)
		return
	}
	body := map[string]any{
		"period":   list.Period,
		"expenses": toExpenseViews(list.Items),
		"total":    list.Total,
	}
	NewJSONResponse().Body(body).Write(w)
}
