package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"playround/internal/geom"
	"playround/internal/journal"
	"playround/internal/logging"
	"playround/internal/network"
	"playround/internal/render"
	"playround/internal/scene"
)

// maxBodyBytes bounds request bodies; pad text is the largest legitimate one.
const maxBodyBytes = 64 << 10

// =============================================================================
// INSPECTION
// =============================================================================

func (h *routerHandlers) handleGetScene(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.frames.Frame())
}

func (h *routerHandlers) handleGetScenePNG(w http.ResponseWriter, r *http.Request) {
	data, err := h.renderer.encode(h.frames.Frame())
	if err != nil {
		logging.Warn("⚠️ scene render failed", zap.Error(err))
		writeError(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (h *routerHandlers) handleGetObject(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.scene.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "object not found", http.StatusNotFound)
		return
	}
	writeJSON(w, rec)
}

func (h *routerHandlers) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	peers := h.peers.List()
	if peers == nil {
		peers = []network.Peer{}
	}
	writeJSON(w, peers)
}

func (h *routerHandlers) handleGetOrphans(w http.ResponseWriter, r *http.Request) {
	orphans := h.scene.Orphans()
	if orphans == nil {
		orphans = []scene.Record{}
	}
	writeJSON(w, orphans)
}

func (h *routerHandlers) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	events := []journal.Event{}
	if h.journal != nil {
		events = append(events, h.journal.Recent(n)...)
	}
	writeJSON(w, events)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	if h.stats != nil {
		stats = h.stats()
	}
	writeJSON(w, stats)
}

// =============================================================================
// LOCAL EDITING
// =============================================================================

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p point) vec() geom.Vec { return geom.Pt(p.X, p.Y) }

func (h *routerHandlers) handleCreatePad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Radius float64 `json:"radius"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Radius <= 0 {
		writeError(w, "radius must be positive", http.StatusBadRequest)
		return
	}
	rec, err := h.control.CreatePad(geom.Pt(req.X, req.Y), req.Radius)
	h.respondCreated(w, rec, err)
}

func (h *routerHandlers) handleCreateCurvedPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pad         string  `json:"pad"`
		StartAngle  float64 `json:"startAngle"`
		StartRadius float64 `json:"startRadius"`
		EndAngle    float64 `json:"endAngle"`
		EndRadius   float64 `json:"endRadius"`
	}
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.control.CreateCurvedPath(req.Pad, req.StartAngle, req.StartRadius, req.EndAngle, req.EndRadius)
	h.respondCreated(w, rec, err)
}

type segmentRequest struct {
	Pad string `json:"pad"`
	P1  point  `json:"p1"`
	P2  point  `json:"p2"`
}

func (h *routerHandlers) handleCreateStraightPath(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.control.CreateStraightPath(req.Pad, req.P1.vec(), req.P2.vec())
	h.respondCreated(w, rec, err)
}

func (h *routerHandlers) handleCreateString(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.control.CreateString(req.Pad, req.P1.vec(), req.P2.vec())
	h.respondCreated(w, rec, err)
}

func (h *routerHandlers) handleSetPadText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.control.SetPadText(chi.URLParam(r, "id"), req.Text); err != nil {
		writeSceneError(w, err)
		return
	}
	h.frames.Refresh()
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleSpawnMarker(w http.ResponseWriter, r *http.Request) {
	if err := h.control.SpawnMarker(chi.URLParam(r, "id")); err != nil {
		writeSceneError(w, err)
		return
	}
	h.frames.Refresh()
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleSpawnAtJunction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, "invalid junction id", http.StatusBadRequest)
		return
	}
	paths, err := h.control.SpawnAtJunction(scene.JunctionID(id))
	if err != nil {
		writeSceneError(w, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	h.frames.Refresh()
	writeJSON(w, map[string]interface{}{"paths": paths})
}

func (h *routerHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.control.Delete(chi.URLParam(r, "id"))
	if err != nil {
		writeSceneError(w, err)
		return
	}
	h.frames.Refresh()
	writeJSON(w, map[string]interface{}{"removed": removed})
}

func (h *routerHandlers) handleSetName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.control.SetDisplayName(req.Name)
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleMoveCursor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Pressed bool    `json:"pressed"`
	}
	if !decode(w, r, &req) {
		return
	}
	plucks := h.control.MoveCursor(geom.Pt(req.X, req.Y), req.Pressed)
	if plucks == nil {
		plucks = []scene.PluckEvent{}
	}
	writeJSON(w, map[string]interface{}{"plucks": plucks})
}

func (h *routerHandlers) respondCreated(w http.ResponseWriter, rec scene.Record, err error) {
	if err != nil {
		writeSceneError(w, err)
		return
	}
	h.frames.Refresh()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}

// =============================================================================
// PNG
// =============================================================================

// pngRenderer serializes access to one reusable gg context.
type pngRenderer struct {
	mu sync.Mutex
	r  *render.Renderer
}

func newPNGRenderer(cfg render.Config) *pngRenderer {
	return &pngRenderer{r: render.NewRenderer(cfg)}
}

func (p *pngRenderer) encode(f *scene.Frame) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var buf bytes.Buffer
	if err := p.r.EncodePNG(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Helper functions (package-level for reuse)

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

// writeSceneError maps scene and network errors onto HTTP statuses.
func writeSceneError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scene.ErrNotFound), errors.Is(err, scene.ErrUnknownParent):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scene.ErrDuplicate), errors.Is(err, network.ErrNoRoom):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scene.ErrInvalidParent), errors.Is(err, scene.ErrInvalidRecord):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logging.Error("❌ edit failed", zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
