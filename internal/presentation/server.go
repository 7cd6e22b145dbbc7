package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanspareilsmyn/heartlens/internal/config"
	"github.com/sanspareilsmyn/heartlens/internal/message"
)

const shutdownTimeout = 5 * time.Second

// Controller is the acquisition switch exposed over HTTP.
type Controller interface {
	Toggle(ctx context.Context) (bool, error)
}

// Server serves the latest frame, the acquisition toggle, a websocket frame
// stream and the Prometheus metrics.
type Server struct {
	cfg      config.PresentationConfig
	ctrl     Controller
	hub      *Hub
	upgrader websocket.Upgrader
	latest   atomic.Pointer[message.Frame]
	logger   *zap.Logger
}

type toggleResponse struct {
	Enabled bool   `json:"enabled"`
	Error   string `json:"error,omitempty"`
}

func NewServer(cfg config.PresentationConfig, ctrl Controller, logger *zap.Logger) *Server {
	return &Server{
		cfg:  cfg,
		ctrl: ctrl,
		hub:  NewHub(logger.Named("hub")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/frame", s.handleFrame)
	mux.HandleFunc("POST /api/toggle", s.handleToggle)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Publish keeps f as the latest frame and broadcasts it to websocket clients.
// Frames are only encoded when a client is connected.
func (s *Server) Publish(f message.Frame) error {
	s.latest.Store(&f)
	if s.hub.Len() == 0 {
		return nil
	}
	data, err := message.EncodeFrame(f)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	s.hub.Broadcast(data)
	return nil
}

// latestEncoded returns the latest frame as JSON, or nil before the first Publish.
func (s *Server) latestEncoded() ([]byte, error) {
	f := s.latest.Load()
	if f == nil {
		return nil, nil
	}
	return message.EncodeFrame(*f)
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	sugar := s.logger.Sugar()
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("Presentation server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%w: %w", ErrServerFailed, err)
	case <-ctx.Done():
	}

	sugar.Info("Shutting down presentation server...")
	s.hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("Presentation server shutdown incomplete", zap.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%w: %w", ErrServerFailed, err)
	}
	return ctx.Err()
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	data, err := s.latestEncoded()
	if err != nil {
		s.logger.Warn("Failed to encode frame", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.Error(w, ErrNoFrameYet.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleToggle flips acquisition. A failed transport command still changes the
// local state, so it is reported in the body with status 200.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.ctrl.Toggle(r.Context())
	resp := toggleResponse{Enabled: enabled}
	if err != nil {
		s.logger.Warn("Toggle command failed", zap.Bool("enabled", enabled), zap.Error(err))
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("Failed to write toggle response", zap.Error(err))
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	initial, err := s.latestEncoded()
	if err != nil {
		s.logger.Debug("Skipping initial frame", zap.Error(err))
		initial = nil
	}

	s.hub.add(conn, initial)
	defer func() {
		s.hub.remove(conn)
		_ = conn.Close()
	}()

	// Clients never send; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
