package biometric

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"slices"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageInfo describes an image without decoding its pixels.
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Size   int
}

// ContentType maps the decoder format name to a MIME type.
func (i ImageInfo) ContentType() string {
	switch i.Format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension used for stored reference images.
func (i ImageInfo) Extension() string {
	if i.Format == "jpeg" {
		return "jpg"
	}
	if i.Format == "" {
		return "bin"
	}
	return i.Format
}

// Inspect validates that data is a raster image of a registered format.
func Inspect(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty raster %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height, Size: len(data)}, nil
}

// decodeImage fully decodes data.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// Bounds are the per-provider limits on accepted images.
type Bounds struct {
	MinBytes int
	MaxBytes int
	MinSide  int
	MaxSide  int
	Formats  []string
}

var (
	remoteBounds = Bounds{
		MinBytes: 1 << 10,
		MaxBytes: 6 << 20,
		MinSide:  36,
		MaxSide:  4096,
		Formats:  []string{"jpeg", "png", "gif", "bmp"},
	}
	localBounds = Bounds{
		MaxBytes: 20 << 20,
		MinSide:  32,
		MaxSide:  8192,
		Formats:  []string{"jpeg", "png", "gif", "bmp", "webp"},
	}
)

// Check reports ErrUnsupportedFormat or ErrImageBounds for images outside b.
func (b Bounds) Check(info ImageInfo) error {
	if len(b.Formats) > 0 && !slices.Contains(b.Formats, info.Format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, info.Format)
	}
	if b.MinBytes > 0 && info.Size < b.MinBytes {
		return fmt.Errorf("%w: %d bytes is below %d", ErrImageBounds, info.Size, b.MinBytes)
	}
	if b.MaxBytes > 0 && info.Size > b.MaxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrImageBounds, info.Size, b.MaxBytes)
	}
	if b.MinSide > 0 && (info.Width < b.MinSide || info.Height < b.MinSide) {
		return fmt.Errorf("%w: %dx%d is smaller than %dx%d", ErrImageBounds, info.Width, info.Height, b.MinSide, b.MinSide)
	}
	if b.MaxSide > 0 && (info.Width > b.MaxSide || info.Height > b.MaxSide) {
		return fmt.Errorf("%w: %dx%d is larger than %dx%d", ErrImageBounds, info.Width, info.Height, b.MaxSide, b.MaxSide)
	}
	return nil
}
