// Package httpserver exposes the marketplace API plus health and metrics
// endpoints.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nearhand/internal/market"
	"nearhand/internal/metrics"
	"nearhand/internal/repo"
)

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	service    *market.Service
	store      repo.Repository
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates the HTTP server listening on addr.
func New(addr string, service *market.Service, store repo.Repository, logger *slog.Logger, metricRegistry *metrics.Metrics) *Server {
	server := &Server{
		service: service,
		store:   store,
		logger:  logger.With("component", "http"),
		metrics: metricRegistry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", server.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/me", server.auth(server.handleGetMe))
	mux.HandleFunc("PATCH /api/v1/me/profile", server.auth(server.handleUpdateProfile))
	mux.HandleFunc("PATCH /api/v1/me/location", server.auth(server.handleHeartbeat))
	mux.HandleFunc("PATCH /api/v1/me/radius", server.auth(server.handleUpdateRadius))
	mux.HandleFunc("PATCH /api/v1/me/notifications", server.auth(server.handleUpdateNotifications))
	mux.HandleFunc("POST /api/v1/me/neighborhood", server.auth(server.handleAssignNeighborhood))
	mux.HandleFunc("POST /api/v1/me/devices", server.auth(server.handleRegisterDevice))

	mux.HandleFunc("GET /api/v1/nearby/helpers", server.auth(server.handleNearbyHelpers))
	mux.HandleFunc("POST /api/v1/movement/start", server.auth(server.handleStartMovement))
	mux.HandleFunc("POST /api/v1/movement/stop", server.auth(server.handleStopMovement))

	mux.HandleFunc("GET /api/v1/broadcasts", server.auth(server.handleListBroadcasts))
	mux.HandleFunc("POST /api/v1/broadcasts", server.auth(server.handleCreateBroadcast))
	mux.HandleFunc("DELETE /api/v1/broadcasts/{broadcastId}", server.auth(server.handleDeleteBroadcast))
	mux.HandleFunc("POST /api/v1/broadcasts/{broadcastId}/respond", server.auth(server.handleRespondToBroadcast))

	mux.HandleFunc("POST /api/v1/requests", server.auth(server.handleCreateRequest))
	mux.HandleFunc("GET /api/v1/requests/incoming", server.auth(server.handleIncomingRequests))
	mux.HandleFunc("POST /api/v1/requests/{requestId}/accept", server.auth(server.handleAcceptRequest))
	mux.HandleFunc("POST /api/v1/requests/{requestId}/decline", server.auth(server.handleDeclineRequest))
	mux.HandleFunc("POST /api/v1/requests/{requestId}/cancel", server.auth(server.handleCancelRequest))

	mux.HandleFunc("GET /api/v1/tasks/active", server.auth(server.handleActiveTask))
	mux.HandleFunc("POST /api/v1/tasks/{taskId}/start", server.auth(server.handleStartTask))
	mux.HandleFunc("POST /api/v1/tasks/{taskId}/complete", server.auth(server.handleCompleteTask))

	mux.HandleFunc("GET /api/v1/wallet", server.auth(server.handleGetWallet))
	mux.HandleFunc("GET /api/v1/wallet/ledger", server.auth(server.handleListLedger))
	mux.HandleFunc("POST /api/v1/wallet/withdrawals", server.auth(server.handleWithdraw))

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
