package api

import (
	"net/http"

	"github.com/muaviaUsmani/hearth/internal/automode"
	"github.com/muaviaUsmani/hearth/internal/event"
)

type autoModeResponse struct {
	Enabled                bool                 `json:"enabled"`
	Mode                   automode.Mode        `json:"mode"`
	ActiveWindow           *automode.TimeWindow `json:"activeWindow,omitempty"`
	NextBoundary           string               `json:"nextBoundaryIso"`
	RecommendedPollSeconds int                  `json:"recommendedPollSeconds"`
}

func (s *Server) handleAutoMode(w http.ResponseWriter, r *http.Request) {
	// the scheduler process may have applied a newer config file
	if _, err := s.autoMode.Reload(r.Context()); err != nil {
		s.log.WarnContext(r.Context(), "Serving in-memory auto-mode config", "error", err)
	}

	st := s.autoMode.Status()
	next, err := event.FormatISO(st.NextBoundary)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, autoModeResponse{
		Enabled:                st.Enabled,
		Mode:                   st.Mode,
		ActiveWindow:           st.ActiveWindow,
		NextBoundary:           next,
		RecommendedPollSeconds: st.RecommendedPollSeconds,
	})
}

func (s *Server) handleGetAutoModeConfig(w http.ResponseWriter, r *http.Request) {
	if _, err := s.autoMode.Reload(r.Context()); err != nil {
		s.log.WarnContext(r.Context(), "Serving in-memory auto-mode config", "error", err)
	}
	writeJSON(w, http.StatusOK, s.autoMode.Config())
}

func (s *Server) handlePutAutoModeConfig(w http.ResponseWriter, r *http.Request) {
	var cfg automode.Config
	if err := decodeBody(w, r, &cfg, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.autoMode.Update(r.Context(), &cfg); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.status.Invalidate()
	writeJSON(w, http.StatusOK, s.autoMode.Config())
}
