package biometric

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	qualityRefPixels     = 640 * 480
	qualitySharpnessNorm = 1000.0
	qualityMaxSide       = 1024
)

// QualityScore rates an enrollment photo in [0,1] as the mean of resolution,
// sharpness (Laplacian variance) and brightness closeness to mid-gray.
// It ranks samples for display and never influences a match decision.
func QualityScore(img image.Image) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0
	}

	resolution := math.Min(1, float64(b.Dx()*b.Dy())/qualityRefPixels)

	gray := toGray(img)
	sharpness := math.Min(1, laplacianVariance(gray)/qualitySharpnessNorm)
	brightness := 1 - math.Abs(meanIntensity(gray)-127)/127

	return clamp01((resolution + sharpness + brightness) / 3)
}

// toGray converts to 8-bit luma, downscaling large images so the Laplacian
// pass stays bounded.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if long := max(w, h); long > qualityMaxSide {
		w = w * qualityMaxSide / long
		h = h * qualityMaxSide / long
		gray := image.NewGray(image.Rect(0, 0, max(w, 1), max(h, 1)))
		draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
		return gray
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func laplacianVariance(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := float64(g.GrayAt(x, y).Y)
			lap := float64(g.GrayAt(x-1, y).Y) + float64(g.GrayAt(x+1, y).Y) +
				float64(g.GrayAt(x, y-1).Y) + float64(g.GrayAt(x, y+1).Y) - 4*c
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func meanIntensity(g *image.Gray) float64 {
	if len(g.Pix) == 0 {
		return 0
	}
	var total float64
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			total += float64(g.GrayAt(x, y).Y)
		}
	}
	return total / float64(w*h)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
