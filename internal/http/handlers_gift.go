package http

import (
	"net/http"

	applog "pocketmoney/internal/log"
)

func (s *Server) handleCreateGift(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, "create gift", err)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	giver, amount, err := ParseGiftInput(p)
	if err != nil {
		writeError(w, r, "create gift", err)
		return
	}

	id, summary, err := s.ledger.AddGift(r.Context(), giver, amount)
	if err != nil {
		writeError(w, r, "create gift", err)
		return
	}

	s.audit.LogMutation(r.Context(), applog.OpCreate, "gift", id, amount.Cents, "")
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(mutationBody{ID: id, Summary: toSummaryView(summary, s.ledger.RewardMode())}).
		Write(w)
}

func (s *Server) handleDeleteGift(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	summary, err := s.ledger.RemoveGift(r.Context(), id)
	if err != nil {
		writeError(w, r, "delete gift", err)
		return
	}

	s.audit.LogMutation(r.Context(), applog.OpDelete, "gift", id, 0, "")
	NewJSONResponse().Body(mutationBody{Summary: toSummaryView(summary, s.ledger.RewardMode())}).Write(w)
}

func (s *Server) handleListGifts(w http.ResponseWriter, r *http.Request) {
	gifts, total, err := s.ledger.Gifts(r.Context())
	if err != nil {
		writeError(w, r, "list gifts", err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"gifts":       toGiftViews(gifts),
		"total":       total.Amount,
		"attribution": total.Attribution,
	}).Write(w)
}
