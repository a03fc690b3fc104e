// Package render draws scene frames with gg.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"
	"time"

	"github.com/fogleman/gg"

	"playround/internal/geom"
	"playround/internal/scene"
)

// Config sizes the canvas.
type Config struct {
	Width  int
	Height int
}

// DefaultConfig matches the default canvas.
func DefaultConfig() Config {
	return Config{Width: 512, Height: 512}
}

// Palette
var (
	background    = color.RGBA{250, 250, 255, 255}
	padFill       = color.RGBA{235, 238, 248, 255}
	padEdge       = color.RGBA{120, 130, 160, 255}
	pathActive    = color.RGBA{40, 110, 220, 255}
	pathIdle      = color.RGBA{150, 170, 200, 255}
	pathDisabled  = color.RGBA{200, 200, 200, 255}
	stringColor   = color.RGBA{30, 30, 40, 255}
	junctionColor = color.RGBA{255, 120, 0, 255}
	markerColor   = color.RGBA{255, 62, 62, 255}
	textColor     = color.RGBA{20, 25, 35, 255}
)

// curveSegments is how finely spirals are sampled.
const curveSegments = 64

// Renderer draws frames onto a reusable context. It is not safe for
// concurrent use.
type Renderer struct {
	cfg Config
	dc  *gg.Context

	frames   uint64
	lastTook time.Duration
}

// NewRenderer creates a renderer for cfg.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg = DefaultConfig()
	}
	return &Renderer{cfg: cfg, dc: gg.NewContext(cfg.Width, cfg.Height)}
}

// Render draws f and returns the canvas. The image is reused by the next call.
func (r *Renderer) Render(f *scene.Frame) image.Image {
	start := time.Now()
	dc := r.dc

	dc.SetColor(background)
	dc.DrawRectangle(0, 0, float64(r.cfg.Width), float64(r.cfg.Height))
	dc.Fill()

	// pads under everything else
	for _, rec := range f.Objects {
		if rec.Kind == scene.KindPad {
			r.drawPad(rec)
		}
	}
	for _, rec := range f.Objects {
		switch rec.Kind {
		case scene.KindCurvedPath:
			r.setPathStyle(rec)
			r.polyline(scene.TraceCurve(rec, curveSegments))
		case scene.KindStraightPath:
			r.setPathStyle(rec)
			r.polyline([]geom.Vec{rec.P1, rec.P2})
		case scene.KindString:
			dc.SetColor(stringColor)
			dc.SetLineWidth(1)
			r.polyline([]geom.Vec{rec.P1, rec.P2})
		}
	}

	dc.SetColor(junctionColor)
	dc.SetLineWidth(1.5)
	for _, j := range f.Junctions {
		dc.DrawCircle(j.Center.X, j.Center.Y, j.Radius)
		dc.Stroke()
	}

	dc.SetColor(markerColor)
	for _, m := range f.Markers {
		dc.DrawCircle(m.Pos.X, m.Pos.Y, 4)
		dc.Fill()
	}

	r.frames++
	r.lastTook = time.Since(start)
	return dc.Image()
}

// EncodePNG renders f and writes it to w as PNG.
func (r *Renderer) EncodePNG(w io.Writer, f *scene.Frame) error {
	r.Render(f)
	if err := r.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func (r *Renderer) drawPad(rec scene.Record) {
	dc := r.dc
	dc.SetColor(padFill)
	dc.DrawCircle(rec.Center.X, rec.Center.Y, rec.Radius)
	dc.Fill()

	dc.SetColor(padEdge)
	dc.SetLineWidth(2)
	dc.DrawCircle(rec.Center.X, rec.Center.Y, rec.Radius)
	dc.Stroke()

	if rec.Text == "" {
		return
	}
	// text sits below the pad, one line per row
	dc.SetColor(textColor)
	lines := strings.Split(rec.Text, "\n")
	y := rec.Center.Y + rec.Radius + dc.FontHeight() + 4
	for _, line := range lines {
		dc.DrawStringAnchored(line, rec.Center.X, y, 0.5, 0.5)
		y += dc.FontHeight() * 1.3
	}
}

func (r *Renderer) setPathStyle(rec scene.Record) {
	switch {
	case !rec.Enabled:
		r.dc.SetColor(pathDisabled)
	case rec.Active:
		r.dc.SetColor(pathActive)
	default:
		r.dc.SetColor(pathIdle)
	}
	r.dc.SetLineWidth(2)
	if rec.Directed {
		r.dc.SetDash()
	} else {
		r.dc.SetDash(6, 4)
	}
}

func (r *Renderer) polyline(pts []geom.Vec) {
	if len(pts) < 2 {
		return
	}
	dc := r.dc
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		dc.LineTo(p.X, p.Y)
	}
	dc.Stroke()
	dc.SetDash()
}

// GetStats returns renderer statistics
func (r *Renderer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"width":       r.cfg.Width,
		"height":      r.cfg.Height,
		"frames":      r.frames,
		"lastFrameUs": r.lastTook.Microseconds(),
	}
}
