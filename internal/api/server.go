// Package api exposes the schedule engine and auto-mode over HTTP.
package api

import (
	"net/http"

	"github.com/muaviaUsmani/hearth/internal/automode"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/muaviaUsmani/hearth/internal/metrics"
	"github.com/muaviaUsmani/hearth/internal/status"
	"golang.org/x/time/rate"
)

// Server routes API requests to the event store, status aggregator and
// auto-mode manager
type Server struct {
	events   *event.Store
	status   *status.Aggregator
	autoMode *automode.Manager
	metrics  *metrics.Collector
	limiter  *rate.Limiter
	log      logger.Logger
	mux      *http.ServeMux
}

// NewServer constructs a server with no rate limit
func NewServer(events *event.Store, agg *status.Aggregator, modes *automode.Manager) *Server {
	s := &Server{
		events:   events,
		status:   agg,
		autoMode: modes,
		metrics:  metrics.Default(),
		limiter:  rate.NewLimiter(rate.Inf, 0),
		log:      logger.Default().WithComponent(logger.ComponentAPI),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// SetRateLimit allows rps requests per second with the given burst
func (s *Server) SetRateLimit(rps float64, burst int) {
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// SetMetrics replaces the metrics collector
func (s *Server) SetMetrics(c *metrics.Collector) {
	s.metrics = c
}

// SetLogger replaces the server's logger
func (s *Server) SetLogger(l logger.Logger) {
	s.log = l.WithComponent(logger.ComponentAPI)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /status", s.handleStatus)

	s.mux.HandleFunc("POST /events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /events", s.handleListEvents)
	s.mux.HandleFunc("GET /events/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /events/{eventId}", s.handleGetEvent)
	s.mux.HandleFunc("DELETE /events/{eventId}", s.handleCancelEvent)
	s.mux.HandleFunc("POST /events/{eventId}/runs", s.handleRecordRun)

	s.mux.HandleFunc("GET /automode", s.handleAutoMode)
	s.mux.HandleFunc("GET /automode/config", s.handleGetAutoModeConfig)
	s.mux.HandleFunc("PUT /automode/config", s.handlePutAutoModeConfig)
}

// Handler returns the routes wrapped in recovery, logging and rate limiting
func (s *Server) Handler() http.Handler {
	return s.recoverMiddleware(s.logMiddleware(s.rateLimitMiddleware(s.mux)))
}
