// Package api is the HTTP and WebSocket surface of a peer: local editing,
// inspection of the shared scene, and a live feed for renderers.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"playround/internal/geom"
	"playround/internal/journal"
	"playround/internal/logging"
	"playround/internal/metrics"
	"playround/internal/network"
	"playround/internal/render"
	"playround/internal/scene"
)

// FrameSource publishes scene frames without blocking on the scene lock.
type FrameSource interface {
	Frame() *scene.Frame
	Refresh()
}

// Controller performs local edits and broadcasts them to peers.
// Keep this minimal - only include methods the API layer actually calls.
type Controller interface {
	CreatePad(center geom.Vec, radius float64) (scene.Record, error)
	CreateCurvedPath(padID string, startAngle, startRadius, endAngle, endRadius float64) (scene.Record, error)
	CreateStraightPath(padID string, p1, p2 geom.Vec) (scene.Record, error)
	CreateString(padID string, p1, p2 geom.Vec) (scene.Record, error)
	SetPadText(id, text string) error
	SpawnMarker(pathID string) error
	SpawnAtJunction(id scene.JunctionID) ([]string, error)
	Delete(id string) ([]string, error)
	SetDisplayName(name string)
	MoveCursor(pos geom.Vec, pressed bool) []scene.PluckEvent
}

// SceneInspector answers point queries the frame does not carry.
type SceneInspector interface {
	Get(id string) (scene.Record, bool)
	Orphans() []scene.Record
}

// PeerLister lists known peers.
type PeerLister interface {
	List() []network.Peer
}

// JournalReader exposes recent journal entries.
type JournalReader interface {
	Recent(n int) []journal.Event
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Frames:  engine,
//	    Control: processor,
//	    Scene:   sc,
//	    Peers:   peers,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	Frames  FrameSource    // required
	Control Controller     // required
	Scene   SceneInspector // required
	Peers   PeerLister     // required

	// Journal is optional; without it /api/journal returns an empty list.
	Journal JournalReader

	// Stats is optional and feeds /api/stats.
	Stats func() map[string]interface{}

	// Render sizes /api/scene.png. Zero uses render.DefaultConfig.
	Render render.Config

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to localhost on any port.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware.
	DisableLogging bool
}

type routerHandlers struct {
	frames   FrameSource
	control  Controller
	scene    SceneInspector
	peers    PeerLister
	journal  JournalReader
	stats    func() map[string]interface{}
	renderer *pngRenderer
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It has no side effects apart from the rate limiter's cleanup goroutine,
// so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(requestLogger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &routerHandlers{
		frames:   cfg.Frames,
		control:  cfg.Control,
		scene:    cfg.Scene,
		peers:    cfg.Peers,
		journal:  cfg.Journal,
		stats:    cfg.Stats,
		renderer: newPNGRenderer(cfg.Render),
	}

	r.Route("/api", func(r chi.Router) {
		// Inspection
		r.Get("/scene", h.handleGetScene)
		r.Get("/scene.png", h.handleGetScenePNG)
		r.Get("/objects/{id}", h.handleGetObject)
		r.Get("/peers", h.handleGetPeers)
		r.Get("/orphans", h.handleGetOrphans)
		r.Get("/journal", h.handleGetJournal)
		r.Get("/stats", h.handleGetStats)

		// Local editing
		r.Post("/pads", h.handleCreatePad)
		r.Put("/pads/{id}/text", h.handleSetPadText)
		r.Post("/paths/curved", h.handleCreateCurvedPath)
		r.Post("/paths/straight", h.handleCreateStraightPath)
		r.Post("/paths/{id}/markers", h.handleSpawnMarker)
		r.Post("/junctions/{id}/markers", h.handleSpawnAtJunction)
		r.Post("/strings", h.handleCreateString)
		r.Delete("/objects/{id}", h.handleDelete)

		// This peer
		r.Put("/me/name", h.handleSetName)
		r.Post("/me/cursor", h.handleMoveCursor)
	})

	return r
}

// requestLogger logs each request with zap and records request metrics
// against the matched route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		took := time.Since(start)
		metrics.RecordRequest(r.Method, endpoint, status, took)
		logging.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", took))
	})
}
