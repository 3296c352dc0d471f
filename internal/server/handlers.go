package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/variantly/variantly/internal/config"
	"github.com/variantly/variantly/internal/engine"
	"github.com/variantly/variantly/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	exps, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(exps),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// AssignRequest asks for the caller's variant in one experiment. Inline
// attributes supplement the stored profile for targeting.
type AssignRequest struct {
	UserID       string            `json:"userId"`
	ExperimentID string            `json:"experimentId"`
	SessionID    string            `json:"sessionId,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// AssignResponse carries the assigned variant. A null variant means the user
// is not in the experiment and should get the default experience.
type AssignResponse struct {
	Variant *store.Variant `json:"variant"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if done := corsPreflight(w, r, http.MethodPost); done {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ExperimentID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	variant, err := s.engine.Assign(r.Context(), engine.AssignRequest{
		UserID:       req.UserID,
		ExperimentID: req.ExperimentID,
		SessionID:    req.SessionID,
		Attributes:   req.Attributes,
	})
	if err != nil {
		s.log.Error("assignment failed",
			zap.String("experiment", req.ExperimentID),
			zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if variant != nil {
		s.metrics.assignments.WithLabelValues(req.ExperimentID, variant.ID).Inc()
	}

	writeJSON(w, http.StatusOK, AssignResponse{Variant: variant})
}

// TrackRequest reports a metric-relevant event, e.g. an onboarding step
// completion.
type TrackRequest struct {
	ExperimentID string         `json:"experimentId"`
	UserID       string         `json:"userId"`
	SessionID    string         `json:"sessionId,omitempty"`
	EventType    string         `json:"eventType"`
	Payload      map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if done := corsPreflight(w, r, http.MethodPost); done {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.UserID == "" || req.EventType == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	// Best-effort: a failed write is logged, never surfaced to the flow that
	// triggered it.
	err := s.engine.Track(r.Context(), engine.TrackRequest{
		ExperimentID: req.ExperimentID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		EventType:    req.EventType,
		Payload:      req.Payload,
	})
	if err != nil {
		s.log.Warn("event tracking failed",
			zap.String("experiment", req.ExperimentID),
			zap.String("event_type", req.EventType),
			zap.Error(err))
	} else {
		s.metrics.events.WithLabelValues(req.ExperimentID, req.EventType).Inc()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		exps, err := s.store.ListExperiments(r.Context())
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if exps == nil {
			exps = []*store.Experiment{}
		}
		writeJSON(w, http.StatusOK, exps)

	case http.MethodPost:
		var exp store.Experiment
		if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		err := s.engine.CreateExperiment(r.Context(), &exp)
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verr.Errors})
			return
		}
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, &exp)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExperimentSub routes /v1/experiments/{id}/results and
// /v1/experiments/{id}/status.
func (s *Server) handleExperimentSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/experiments/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id, action := parts[0], parts[1]

	switch action {
	case "results":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		results, err := s.engine.GetExperimentResults(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Experiment not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, results)

	case "status":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Status store.ExperimentStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		err := s.engine.UpdateExperimentStatus(r.Context(), id, req.Status)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Experiment not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

// handleProfile upserts the attribute profile targeting evaluates against:
// PUT /v1/profiles/{id}.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/v1/profiles/")
	if userID == "" || strings.Contains(userID, "/") {
		http.NotFound(w, r)
		return
	}

	var attrs map[string]string
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.store.PutUserProfile(r.Context(), userID, attrs); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// corsPreflight sets CORS headers for browser callers and handles OPTIONS.
func corsPreflight(w http.ResponseWriter, r *http.Request, method string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
