// Package health exposes the operational HTTP surface: a liveness probe and
// prometheus counters for the flows the bot drives.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tardybot_registrations_total",
		Help: "Registration attempts by outcome.",
	}, []string{"outcome"})

	TardyRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tardybot_tardy_requests_total",
		Help: "Tardiness requests submitted to managers.",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tardybot_decisions_total",
		Help: "Manager decisions by verdict.",
	}, []string{"verdict"})

	OnecRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tardybot_onec_requests_total",
		Help: "Calls to the 1C endpoints by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

type Server struct {
	srv     *http.Server
	started time.Time
}

func NewServer(addr string) *Server {
	s := &Server{started: time.Now()}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Truncate(time.Second).String(),
	})
}
