package biometric

import (
	"context"
	"image"
	"log/slog"

	"github.com/your-org/facegate/internal/vision"
)

// FaceAnalyzer detects faces and embeds the first one. *vision.Analyzer
// implements it; tests substitute deterministic fakes.
type FaceAnalyzer interface {
	Analyze(img image.Image) (*vision.Analysis, error)
	Close()
}

// LocalProvider matches faces with on-host models. Confidence is
// 1 - cosine distance of L2-normalized embeddings; a match requires the
// distance to stay within the configured threshold.
type LocalProvider struct {
	analyzer  FaceAnalyzer
	threshold float64
	bounds    Bounds
}

func NewLocalProvider(analyzer FaceAnalyzer, distanceThreshold float64) *LocalProvider {
	return &LocalProvider{analyzer: analyzer, threshold: distanceThreshold, bounds: localBounds}
}

func (p *LocalProvider) Name() string { return "Local" }
func (p *LocalProvider) Kind() Kind   { return KindLocal }

func (p *LocalProvider) Close() error {
	p.analyzer.Close()
	return nil
}

func (p *LocalProvider) DetectFace(ctx context.Context, img []byte) (*Probe, error) {
	info, err := Inspect(img)
	if err != nil {
		return nil, detectionError(p.Name(), err)
	}
	if err := p.bounds.Check(info); err != nil {
		return nil, detectionError(p.Name(), err)
	}
	decoded, err := decodeImage(img)
	if err != nil {
		return nil, detectionError(p.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	analysis, err := p.analyzer.Analyze(decoded)
	if err != nil {
		return nil, detectionError(p.Name(), err)
	}
	if analysis == nil || len(analysis.Embedding) == 0 {
		return nil, nil
	}
	if analysis.Faces > 1 {
		slog.Debug("several faces found, using the first", "faces", analysis.Faces, "score", analysis.Primary.Confidence)
	}

	return &Probe{
		Reference: NewVectorReference(KindLocal, analysis.Embedding),
		Image:     decoded,
		Format:    info.Format,
		Faces:     analysis.Faces,
	}, nil
}

func (p *LocalProvider) Compare(ctx context.Context, ref FaceReference, probe *Probe) (MatchResult, error) {
	if probe == nil {
		return noMatch(p.Name(), ReasonNoFace), nil
	}
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}
	if err := checkKind(ref, KindLocal); err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}
	stored, err := ref.Vector()
	if err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}
	probeVec, err := probe.Reference.Vector()
	if err != nil {
		return MatchResult{}, verificationError(p.Name(), err)
	}
	if len(stored) != len(probeVec) {
		return MatchResult{}, verificationError(p.Name(), ErrCorruptReference)
	}

	d := CosineDistance(stored, probeVec)
	return MatchResult{
		IsMatch:    d <= p.threshold,
		Confidence: ConfidenceFromDistance(d),
		Distance:   d,
		Provider:   p.Name(),
	}, nil
}

func (p *LocalProvider) VerifyFaces(ctx context.Context, ref FaceReference, img []byte) (MatchResult, error) {
	return verifyImage(ctx, p, ref, img)
}

func (p *LocalProvider) EnrollFace(ctx context.Context, img []byte) (*Enrollment, error) {
	return enrollImage(ctx, p, img)
}
