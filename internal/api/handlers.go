package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"firefly/internal/identity"
	"firefly/internal/metrics"
	"firefly/internal/models"
	"firefly/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "firefly",
		"description": "Deploy journal for an F1R3FLY node",
		"endpoints": map[string]string{
			"GET /":                          "This page - Service information",
			"GET /health":                    "Health check endpoint",
			"GET /metrics":                   "Prometheus metrics for monitoring",
			"GET /deploys/{id}":              "Journaled state of one deploy",
			"GET /wallets/{address}/deploys": "Deploys of a wallet (supports ?limit=, ?offset=)",
		},
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Reports unhealthy when the journal cannot be reached
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := models.HealthResponse{
		Status:    "healthy",
		Journal:   "ok",
		Timestamp: time.Now().UTC(),
		Service:   "firefly",
	}

	code := http.StatusOK
	if err := s.repository.Ping(r.Context()); err != nil {
		slog.Warn("Journal ping failed", "error", err)
		health.Status = "unhealthy"
		health.Journal = err.Error()
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleGetDeploy returns one journaled deploy
// GET /deploys/{id}
func (s *Server) handleGetDeploy(w http.ResponseWriter, r *http.Request, id string) {
	record, err := s.repository.GetDeploy(r.Context(), models.DeployID(id))
	if errors.Is(err, storage.ErrDeployNotFound) {
		s.sendError(w, "Deploy not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to get deploy", "deploy_id", id, "error", err)
		metrics.ErrorsTotal.WithLabelValues("api").Inc()
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, record)
}

// handleListWalletDeploys lists the journaled deploys of one wallet, newest first
// GET /wallets/{address}/deploys?limit=50&offset=0
func (s *Server) handleListWalletDeploys(w http.ResponseWriter, r *http.Request, address string) {
	wallet, err := identity.ParseWalletAddress(address)
	if err != nil {
		s.sendError(w, "Invalid wallet address", http.StatusBadRequest)
		return
	}

	limit, offset := parsePagination(r.URL.Query())

	records, err := s.repository.ListWalletDeploys(r.Context(), wallet.String(), limit, offset)
	if err != nil {
		slog.Error("Failed to list wallet deploys", "wallet", wallet.String(), "error", err)
		metrics.ErrorsTotal.WithLabelValues("api").Inc()
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*models.DeployRecord{}
	}

	s.sendJSON(w, http.StatusOK, models.DeployListResponse{
		Wallet:  wallet.String(),
		Deploys: records,
		Limit:   limit,
		Offset:  offset,
	})
}

// sendJSON writes a JSON body with the given status code
func (s *Server) sendJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
