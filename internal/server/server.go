// Package server exposes the watcher's operational endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thumbnail_watcher/internal/domain"
)

const (
	readHeaderTimeout = 5 * time.Second
	pingTimeout       = 2 * time.Second
)

// Pinger reports whether the snapshot store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StateReader loads the per-channel sync bookkeeping.
type StateReader interface {
	Get(ctx context.Context, channelID string) (*domain.SyncState, error)
}

// VideoCounter counts the stored snapshot of a channel.
type VideoCounter interface {
	CountByChannel(ctx context.Context, channelID string) (int64, error)
}

type Server struct {
	srv    *http.Server
	pinger Pinger
	states StateReader
	videos VideoCounter
	logger *slog.Logger
}

func New(addr string, pinger Pinger, states StateReader, videos VideoCounter, logger *slog.Logger) *Server {
	s := &Server{
		pinger: pinger,
		states: states,
		videos: videos,
		logger: logger.With("component", "server"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/channels/{channelID}/state", s.channelState)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := s.pinger.PingContext(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	ChannelID     string     `json:"channel_id"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
	TotalNew      int64      `json:"total_new"`
	TotalChanged  int64      `json:"total_changed"`
	TrackedVideos int64      `json:"tracked_videos"`
	StoredVideos  int64      `json:"stored_videos"`
}

func (s *Server) channelState(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	state, err := s.states.Get(r.Context(), channelID)
	if err != nil {
		s.logger.Error("failed to load sync state", "channel_id", channelID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load sync state"})
		return
	}
	if state.LastSyncedAt.IsZero() {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "channel has not been synced"})
		return
	}

	stored, err := s.videos.CountByChannel(r.Context(), channelID)
	if err != nil {
		s.logger.Error("failed to count stored videos", "channel_id", channelID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to count stored videos"})
		return
	}

	lastSynced := state.LastSyncedAt.UTC()
	s.writeJSON(w, http.StatusOK, stateResponse{
		ChannelID:     state.ChannelID,
		LastSyncedAt:  &lastSynced,
		LastRunID:     state.LastRunID,
		TotalNew:      state.TotalNew,
		TotalChanged:  state.TotalChanged,
		TrackedVideos: state.TrackedVideos,
		StoredVideos:  stored,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
