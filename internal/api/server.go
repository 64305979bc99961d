package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reefer-telemetry-sim/internal/db"
	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/parser"
	"reefer-telemetry-sim/internal/simulation"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// Server represents the API server
type Server struct {
	db      *db.Database
	sim     *simulation.Simulator
	router  *mux.Router
	metrics *Metrics
}

// NewServer creates a new API server
func NewServer(database *db.Database, sim *simulation.Simulator) *Server {
	s := &Server{
		db:      database,
		sim:     sim,
		router:  mux.NewRouter(),
		metrics: NewMetrics(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Profile endpoints
	s.router.HandleFunc("/api/v1/profiles", s.handleListProfiles).Methods("GET")
	s.router.HandleFunc("/api/v1/profiles/{name}", s.handleGetProfile).Methods("GET")

	// Run endpoints
	s.router.HandleFunc("/api/v1/runs", s.handleListRuns).Methods("GET")
	s.router.HandleFunc("/api/v1/runs/{run_id}", s.handleGetRun).Methods("GET")
	s.router.HandleFunc("/api/v1/runs/{run_id}/trips", s.handleListTrips).Methods("GET")

	s.router.HandleFunc("/api/v1/readings", s.handleQueryReadings).Methods("GET")
	s.router.HandleFunc("/api/v1/simulate", s.handleSimulate).Methods("POST")

	s.router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.Use(s.metrics.middleware, jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler wraps the router with access logging to accessLog and panic recovery
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	return handlers.RecoveryHandler()(handlers.LoggingHandler(accessLog, s.router))
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *meta       `json:"meta,omitempty"`
}

type meta struct {
	Total   int   `json:"total,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
	QueryMs int64 `json:"query_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func respondWithMeta(w http.ResponseWriter, data interface{}, m *meta) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data, Meta: m})
}

// intParam reads a non-negative integer query parameter
func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	reg := s.sim.Registry()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"default":  reg.DefaultProfile(),
		"profiles": reg.Names(),
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	p, ok := s.sim.Registry().Lookup(name)
	if !ok {
		respondError(w, http.StatusNotFound, "profile not found")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetRun(mux.Vars(r)["run_id"])
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	runID := mux.Vars(r)["run_id"]

	trips, err := s.db.ListTrips(runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(trips) == 0 {
		respondError(w, http.StatusNotFound, "no trips found for run")
		return
	}

	respondWithMeta(w, trips, &meta{Total: len(trips), QueryMs: time.Since(start).Milliseconds()})
}

func (s *Server) handleQueryReadings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := models.ReadingQuery{
		RunID:  r.URL.Query().Get("run_id"),
		TripID: r.URL.Query().Get("trip_id"),
		Class:  models.Class(r.URL.Query().Get("class")),
	}
	if q.Class != "" && q.Class != models.ClassGood && q.Class != models.ClassBad {
		respondError(w, http.StatusBadRequest, "class must be Good or Bad")
		return
	}

	var err error
	if q.Limit, err = intParam(r, "limit", defaultLimit); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit == 0 || q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset, err = intParam(r, "offset", 0); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		if q.StartTime, err = parser.ParseTimestamp(v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		if q.EndTime, err = parser.ParseTimestamp(v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
	}

	results, err := s.db.QueryReadings(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []models.ResultRow{}
	}

	respondWithMeta(w, results, &meta{
		Total:   len(results),
		Limit:   q.Limit,
		Offset:  q.Offset,
		QueryMs: time.Since(start).Milliseconds(),
	})
}

type simulateRequest struct {
	Commodity string              `json:"commodity"`
	TripID    string              `json:"trip_id"`
	Seed      uint64              `json:"seed"`
	Records   []models.TripRecord `json:"records"`
}

type simulateResponse struct {
	Summary models.TripSummary `json:"summary"`
	Rows    []models.ResultRow `json:"rows"`
}

// handleSimulate runs one trip on demand without persisting it
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Commodity == "" {
		respondError(w, http.StatusBadRequest, "commodity is required")
		return
	}
	if req.TripID == "" {
		req.TripID = "adhoc"
	}

	// Validate records; trip id and commodity come from the request when absent
	var problems []string
	for i := range req.Records {
		rec := &req.Records[i]
		if rec.TripID == "" {
			rec.TripID = req.TripID
		}
		if rec.Commodity == "" {
			rec.Commodity = req.Commodity
		}
		if errs := parser.ValidateTripRecord(rec); len(errs) > 0 {
			problems = append(problems, fmt.Sprintf("record %d: %s", i, strings.Join(errs, "; ")))
		}
	}
	if len(problems) > 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiResponse{Success: false, Error: "invalid records", Data: problems})
		return
	}

	res, err := s.sim.Simulate(simulation.NewRand(req.Seed), req.Commodity, req.Records, req.TripID)
	if errors.Is(err, simulation.ErrNoData) {
		s.metrics.Trip(outcomeSkipped, 0)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if errors.Is(err, simulation.ErrTripTooShort) {
		s.metrics.Trip(outcomeFailed, 0)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.metrics.Trip(outcomeFailed, 0)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.Trip(outcomeSucceeded, len(res.Rows))

	respondJSON(w, http.StatusOK, simulateResponse{Summary: res.Summary, Rows: res.Rows})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
