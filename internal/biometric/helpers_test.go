package biometric

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/vision"
)

// noisePNG encodes a w x h image of seeded random pixels.
func noisePNG(t *testing.T, w, h int, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return encodePNG(t, img)
}

// solidPNG encodes a single-colour image.
func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	return encodePNG(t, solidImage(w, h, c))
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testSimulatedConfig() config.SimulatedConfig {
	return config.SimulatedConfig{
		Label:          "Local",
		MatchThreshold: 0.8,
		Jitter:         0.05,
		Seed:           42,
		MinSide:        50,
	}
}

// colorAnalyzer embeds an image as its normalized mean colour. Fully black
// images have no face.
type colorAnalyzer struct {
	calls  int
	closed bool
}

func (a *colorAnalyzer) Analyze(img image.Image) (*vision.Analysis, error) {
	a.calls++
	b := img.Bounds()
	var r, g, bl float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr >> 8)
			g += float64(cg >> 8)
			bl += float64(cb >> 8)
		}
	}
	if r+g+bl == 0 {
		return nil, nil
	}
	n := float64(b.Dx() * b.Dy())
	emb := []float32{float32(r / n), float32(g / n), float32(bl / n)}
	vision.Normalize(emb)
	return &vision.Analysis{Faces: 1, Embedding: emb}, nil
}

func (a *colorAnalyzer) Close() { a.closed = true }
