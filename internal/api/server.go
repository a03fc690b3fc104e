package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"playround/internal/logging"
	"playround/internal/scene"
)

// Server is the HTTP API server with the WebSocket feed.
type Server struct {
	frames      FrameSource
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a server from cfg.
//
// Background workers do not start until Start is called, so tests can
// construct the server and use Router without goroutines running.
func NewServer(cfg RouterConfig) *Server {
	if cfg.RateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		cfg.RateLimiter = NewIPRateLimiter(rateLimitCfg)
	}

	s := &Server{
		frames:      cfg.Frames,
		wsHub:       NewWebSocketHub(),
		rateLimiter: cfg.RateLimiter,
	}
	s.router = NewRouter(cfg)
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
	return s
}

// Start launches the hub and serves HTTP on addr until Stop.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.frames, FrameInterval)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	logging.Info("🌐 API server starting", zap.String("addr", addr))

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// PublishPluck pushes a pluck onto the live feed.
func (s *Server) PublishPluck(ev scene.PluckEvent) {
	s.wsHub.BroadcastPluck(ev)
}

// GetStats returns feed and rate limiter statistics
func (s *Server) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"wsClients": s.wsHub.ClientCount(),
		"rateLimit": s.rateLimiter.GetStats(),
	}
}

// Stop shuts the HTTP server down and releases background workers.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("⚠️ API server shutdown", zap.Error(err))
		}
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
}
