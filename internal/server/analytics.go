package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"wattview/internal/db"
)

// respond runs fn against the analytics service and writes the
// result, collapsing the shared error handling.
func respond[T any](
	s *Server, w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, f db.Filter) (T, error),
) {
	result, err := fn(r.Context(), parseFilter(r))
	if err != nil {
		if handleContextError(err) {
			return
		}
		s.logger.Error("analytics query failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetSummary)
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetHourlyData)
}

func (s *Server) handleWeeklyPeaks(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetWeeklyPeakHours)
}

func (s *Server) handleFloors(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetFloorAnalytics)
}

func (s *Server) handleTopUnits(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetTopConsumingUnits)
}

func (s *Server) handleEquipmentTypes(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetConsumptionByEquipmentType)
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetBuildingMetrics)
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	respond(s, w, r, s.analytics.GetBranchMetrics)
}

func (s *Server) handleListDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.db.ListDates(r.Context())
	if err != nil {
		if handleContextError(err) {
			return
		}
		s.logger.Error("listing dates", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	if dates == nil {
		dates = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (s *Server) handleTriggerRollup(
	w http.ResponseWriter, r *http.Request,
) {
	if s.rebuild == nil {
		s.writeError(w, http.StatusServiceUnavailable,
			"rollup rebuild not available")
		return
	}
	if err := s.rebuild(r.Context()); err != nil {
		if handleContextError(err) {
			return
		}
		s.logger.Error("rollup rebuild failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError,
			"rollup rebuild failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Reader().PingContext(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.version)
}
