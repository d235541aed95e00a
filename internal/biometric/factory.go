package biometric

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/vision"
)

// AnalyzerLoader prepares the local model runtime. It is the capability check
// of the Local provider: an error means the runtime or models are missing.
type AnalyzerLoader func(cfg config.LocalConfig) (FaceAnalyzer, error)

type factoryOptions struct {
	loadAnalyzer AnalyzerLoader
	httpClient   *http.Client
}

type FactoryOption func(*factoryOptions)

// WithAnalyzerLoader replaces the ONNX-backed loader.
func WithAnalyzerLoader(fn AnalyzerLoader) FactoryOption {
	return func(o *factoryOptions) { o.loadAnalyzer = fn }
}

// WithHTTPClient sets the client used by the Remote provider.
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(o *factoryOptions) { o.httpClient = c }
}

// NewProvider builds the configured provider. A Local provider whose runtime
// cannot be loaded is replaced by the Simulated one; a Remote provider without
// credentials is a startup error.
func NewProvider(cfg config.ProvidersConfig, opts ...FactoryOption) (Provider, error) {
	o := factoryOptions{loadAnalyzer: loadONNXAnalyzer}
	for _, opt := range opts {
		opt(&o)
	}

	kind, err := ParseKind(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var p Provider
	switch kind {
	case KindRemote:
		p, err = NewRemoteProvider(cfg.Remote, o.httpClient)
		if err != nil {
			return nil, err
		}
	case KindSimulated:
		p = NewSimulatedProvider(cfg.Simulated)
	case KindLocal:
		analyzer, err := o.loadAnalyzer(cfg.Local)
		if err != nil {
			sim := cfg.Simulated
			sim.Label = "Local"
			p = NewSimulatedProvider(sim)
			slog.Warn("local face runtime unavailable, using simulated provider",
				"error", err, "provider", p.Name())
		} else {
			p = NewLocalProvider(analyzer, cfg.Local.DistanceThreshold)
		}
	}

	observability.ProviderInfo.WithLabelValues(p.Name(), string(p.Kind())).Set(1)
	return p, nil
}

func loadONNXAnalyzer(cfg config.LocalConfig) (FaceAnalyzer, error) {
	if cfg.ModelsDir == "" {
		return nil, fmt.Errorf("%w: models_dir not set", ErrRuntimeUnavailable)
	}
	if err := vision.InitRuntime(cfg.LibraryPath); err != nil {
		return nil, errors.Join(ErrRuntimeUnavailable, err)
	}
	analyzer, err := vision.LoadAnalyzer(cfg.ModelsDir, float32(cfg.DetectionThreshold))
	if err != nil {
		vision.DestroyRuntime()
		return nil, errors.Join(ErrRuntimeUnavailable, err)
	}
	return analyzer, nil
}
