package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playround/internal/scene"
)

func seededFrame(t *testing.T) *scene.Frame {
	t.Helper()
	sc := scene.New(scene.DefaultConfig(), nil, nil)
	_, err := sc.Seed(512, 512)
	require.NoError(t, err)
	return sc.Snapshot()
}

func rgba(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

// TestRenderDrawsScene verifies pads, markers and background land where expected
func TestRenderDrawsScene(t *testing.T) {
	f := seededFrame(t)
	r := NewRenderer(DefaultConfig())
	img := r.Render(f)

	assert.Equal(t, 512, img.Bounds().Dx())
	assert.Equal(t, 512, img.Bounds().Dy())
	assert.Equal(t, background, rgba(img.At(500, 500)))
	assert.Equal(t, padFill, rgba(img.At(128, 128)))

	require.Len(t, f.Markers, 1)
	m := f.Markers[0].Pos
	assert.Equal(t, markerColor, rgba(img.At(int(m.X), int(m.Y))))
	assert.Equal(t, uint64(1), r.GetStats()["frames"])
}

// TestRenderEmptyFrame verifies an empty scene is just background
func TestRenderEmptyFrame(t *testing.T) {
	r := NewRenderer(Config{Width: 64, Height: 32})
	img := r.Render(&scene.Frame{})
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, background, rgba(img.At(10, 10)))
}

// TestEncodePNG verifies the output decodes as a PNG of the canvas size
func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Config{Width: 200, Height: 100})
	require.NoError(t, r.EncodePNG(&buf, seededFrame(t)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}
