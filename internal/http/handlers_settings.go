package http

import (
	"net/http"

	applog "pocketmoney/internal/log"
)

const defaultHistoryLimit = 20

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.Settings(r.Context())
	if err != nil {
		writeError(w, r, "get settings", err)
		return
	}
	NewJSONResponse().Body(toSettingsView(settings)).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, "update settings", err)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	settings, err := ParseSettings(p)
	if err != nil {
		writeError(w, r, "update settings", err)
		return
	}

	stored, err := s.ledger.UpdateSettings(r.Context(), settings)
	if err != nil {
		writeError(w, r, "update settings", err)
		return
	}

	s.audit.LogMutation(r.Context(), applog.OpUpdate, "settings", 1, 0, string(stored.AccountingPeriod))
	NewJSONResponse().Body(toSettingsView(stored)).Write(w)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.ledger.ResetSettings(r.Context())
	if err != nil {
		writeError(w, r, "reset settings", err)
		return
	}

	s.audit.LogMutation(r.Context(), applog.OpReset, "settings", 1, 0, string(stored.AccountingPeriod))
	NewJSONResponse().Body(toSettingsView(stored)).Write(w)
}

func (s *Server) handleSettingsHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r, defaultHistoryLimit)
	if err != nil {
		writeError(w, r, "settings history", err)
		return
	}

	history, err := s.ledger.SettingsHistory(r.Context(), limit)
	if err != nil {
		writeError(w, r, "settings history", err)
		return
	}
	NewJSONResponse().Body(map[string]any{"history": toSettingsViews(history)}).Write(w)
}
