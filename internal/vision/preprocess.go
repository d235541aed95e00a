package vision

import (
	"image"

	"golang.org/x/image/draw"
)

var (
	detMean = [3]float32{127.5, 127.5, 127.5}
	detStd  = [3]float32{128, 128, 128}
	embMean = [3]float32{127.5, 127.5, 127.5}
	embStd  = [3]float32{127.5, 127.5, 127.5}
)

// cropPadding widens face boxes before embedding.
const cropPadding = 0.1

// ToCHW resizes img to w x h and lays it out as normalized planar RGB:
//
//	value = (pixel - mean) / std
func ToCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	rgba := resize(img, w, h)
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4:]
			i := y*w + x
			data[i] = (float32(px[0]) - mean[0]) / std[0]
			data[plane+i] = (float32(px[1]) - mean[1]) / std[1]
			data[2*plane+i] = (float32(px[2]) - mean[2]) / std[2]
		}
	}
	return data
}

func resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// CropFace cuts the padded box out of img. It returns nil for empty boxes.
func CropFace(img image.Image, bbox [4]float32) image.Image {
	b := img.Bounds()
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])).Intersect(b)
	if r.Empty() {
		return nil
	}

	padW := int(float32(r.Dx()) * cropPadding)
	padH := int(float32(r.Dy()) * cropPadding)
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(b)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
