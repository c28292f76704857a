package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/race-archive/internal/crawler"
	"github.com/user/race-archive/internal/domain"
	"go.uber.org/zap"
)

// handleRecords serves GET /api/records?periods=2024-05,2024-06&results=true&venue=&country=
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	raw := strings.Join(append(q["periods"], q["period"]...), ",")
	periods, err := domain.ParsePeriods(raw)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(periods) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "periods query parameter is required")
		return
	}

	withResults := false
	if v := q.Get("results"); v != "" {
		if withResults, err = strconv.ParseBool(v); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "results must be a boolean")
			return
		}
	}

	req := domain.CollectRequest{Periods: periods, WithResults: withResults}
	if venue, country := q.Get("venue"), q.Get("country"); venue != "" || country != "" {
		req.Filter = &domain.Filter{Venue: venue, Country: country}
	}

	res, err := s.collector.Collect(r.Context(), req)
	if err != nil {
		if errors.Is(err, crawler.ErrNoPeriods) || errors.Is(err, crawler.ErrInvalidPeriod) {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("collect failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not collect records")
		return
	}
	s.respondWithJSON(w, http.StatusOK, res)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.respondWithError(w, http.StatusNotFound, "run history is not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve runs")
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	s.respondWithJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"service": "healthy"}
	isHealthy := true
	for name, dep := range s.checks {
		if err := dep.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			isHealthy = false
			s.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !isHealthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
