package api

import (
	"net/http"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/muaviaUsmani/hearth/internal/event"
)

type listEventsResponse struct {
	Events     []*event.Event `json:"events"`
	TotalCount int            `json:"totalCount"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type recordRunRequest struct {
	ExecutedAt string `json:"executedAtIso"`
}

type recordRunResponse struct {
	Event   *event.Event `json:"event"`
	Deleted bool         `json:"deleted"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req event.CreateRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	ev, err := s.events.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordEventCreated()
	s.status.Invalidate()
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events, TotalCount: len(events)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.Get(r.Context(), r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleCancelEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("eventId")
	if err := s.events.Cancel(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RecordEventCancelled()
	s.status.Invalidate()
	writeJSON(w, http.StatusOK, cancelResponse{Success: true, Message: "Event cancelled successfully"})
}

func (s *Server) handleRecordRun(w http.ResponseWriter, r *http.Request) {
	var req recordRunRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	executedAt := s.events.Now()
	if req.ExecutedAt != "" {
		t, err := event.ParseISO(req.ExecutedAt)
		if err != nil {
			s.writeError(w, r, errors.Validation("executedAtIso", "executedAtIso must be an RFC 3339 timestamp."))
			return
		}
		executedAt = t
	}

	ev, err := s.events.RecordRun(r.Context(), r.PathValue("eventId"), executedAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.status.Invalidate()
	writeJSON(w, http.StatusOK, recordRunResponse{Event: ev, Deleted: ev == nil})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	force := false
	switch r.URL.Query().Get("forceRefresh") {
	case "", "false", "0":
	case "true", "1":
		force = true
	default:
		writeBadRequest(w, "forceRefresh must be true or false.")
		return
	}

	report, err := s.status.Status(r.Context(), force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Ping(r.Context()); err != nil {
		s.log.WarnContext(r.Context(), "Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetMetrics())
}
