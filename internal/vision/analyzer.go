// Package vision wraps the ONNX face models used by the local matching backend.
package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/observability"
)

const (
	DetectorModel = "det_10g.onnx"
	EmbedderModel = "w600k_r50.onnx"
)

// Analysis is the result of running detection and embedding on one image.
type Analysis struct {
	Faces     int
	Primary   Detection
	Embedding []float32
}

// Analyzer runs detection then embedding on the first detected face.
// ONNX sessions own fixed tensors, so calls are serialised.
type Analyzer struct {
	mu  sync.Mutex
	det *Detector
	emb *Embedder
}

var runtimeMu sync.Mutex

// InitRuntime loads the ONNX Runtime shared library once per process.
// An empty path picks the platform default.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime (%s): %w", libraryPath, err)
	}
	return nil
}

// DestroyRuntime releases the ONNX environment.
func DestroyRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// LoadAnalyzer loads both models from modelsDir. InitRuntime must have succeeded.
func LoadAnalyzer(modelsDir string, detThreshold float32) (*Analyzer, error) {
	detPath := filepath.Join(modelsDir, DetectorModel)
	embPath := filepath.Join(modelsDir, EmbedderModel)
	for _, p := range []string{detPath, embPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("model file: %w", err)
		}
	}

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, detThreshold, nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Analyzer{det: det, emb: emb}, nil
}

// Analyze returns nil when img holds no usable face. When several faces are
// found, the highest scoring one is embedded.
func (a *Analyzer) Analyze(img image.Image) (*Analysis, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	dets, err := a.det.Detect(img)
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if len(dets) == 0 {
		return nil, nil
	}

	face := CropFace(img, dets[0].BBox)
	if face == nil {
		return nil, nil
	}

	start = time.Now()
	embedding, err := a.emb.Extract(face)
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return &Analysis{Faces: len(dets), Primary: dets[0], Embedding: embedding}, nil
}

func (a *Analyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.det != nil {
		a.det.Close()
	}
	if a.emb != nil {
		a.emb.Close()
	}
}

// DefaultLibraryPath returns the ONNX Runtime library name for this OS.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
