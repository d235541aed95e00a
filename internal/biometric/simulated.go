package biometric

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/your-org/facegate/internal/config"
)

const (
	simDigestLen    = sha256.Size
	simVectorDim    = 128
	simPrefixLen    = 8
	simPayloadBytes = simDigestLen + 4*simVectorDim
)

// SimulatedProvider stands in for a real backend when no model is available.
// References are derived from a SHA-256 of the image bytes, so identical
// images always produce identical references and a deterministic self-match.
type SimulatedProvider struct {
	name      string
	threshold float64
	jitter    float64
	minSide   int

	mu  sync.Mutex
	rng *rand.Rand // nil means the global source
}

func NewSimulatedProvider(cfg config.SimulatedConfig) *SimulatedProvider {
	p := &SimulatedProvider{
		name:      cfg.Label + " (Simulated)",
		threshold: cfg.MatchThreshold,
		jitter:    cfg.Jitter,
		minSide:   cfg.MinSide,
	}
	if cfg.Seed != 0 {
		p.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	return p
}

func (p *SimulatedProvider) Name() string { return p.name }
func (p *SimulatedProvider) Kind() Kind   { return KindSimulated }
func (p *SimulatedProvider) Close() error { return nil }

func (p *SimulatedProvider) DetectFace(_ context.Context, img []byte) (*Probe, error) {
	info, err := Inspect(img)
	if err != nil {
		return nil, detectionError(p.name, err)
	}
	decoded, err := decodeImage(img)
	if err != nil {
		return nil, detectionError(p.name, err)
	}
	if info.Width < p.minSide || info.Height < p.minSide {
		return nil, nil
	}
	return &Probe{
		Reference: FaceReference{Provider: KindSimulated, Payload: simulatedPayload(img)},
		Image:     decoded,
		Format:    info.Format,
		Faces:     1,
	}, nil
}

func (p *SimulatedProvider) Compare(_ context.Context, ref FaceReference, probe *Probe) (MatchResult, error) {
	if probe == nil {
		return noMatch(p.name, ReasonNoFace), nil
	}
	if err := checkKind(ref, KindSimulated); err != nil {
		return MatchResult{}, verificationError(p.name, err)
	}
	if len(ref.Payload) != simPayloadBytes || len(probe.Reference.Payload) != simPayloadBytes {
		return MatchResult{}, verificationError(p.name,
			fmt.Errorf("%w: simulated payload of %d bytes", ErrCorruptReference, len(ref.Payload)))
	}

	var confidence float64
	if bytes.Equal(ref.Payload[:simDigestLen], probe.Reference.Payload[:simDigestLen]) {
		confidence = 1
	} else {
		same := 0
		for i := 0; i < simPrefixLen; i++ {
			if ref.Payload[i] == probe.Reference.Payload[i] {
				same++
			}
		}
		confidence = clamp01(float64(same)/simPrefixLen + p.noise())
	}

	return MatchResult{
		IsMatch:    confidence >= p.threshold,
		Confidence: confidence,
		Distance:   1 - confidence,
		Provider:   p.name,
	}, nil
}

func (p *SimulatedProvider) VerifyFaces(ctx context.Context, ref FaceReference, img []byte) (MatchResult, error) {
	return verifyImage(ctx, p, ref, img)
}

func (p *SimulatedProvider) EnrollFace(ctx context.Context, img []byte) (*Enrollment, error) {
	return enrollImage(ctx, p, img)
}

// noise returns uniform jitter in [-jitter, +jitter].
func (p *SimulatedProvider) noise() float64 {
	if p.jitter == 0 {
		return 0
	}
	var u float64
	if p.rng != nil {
		p.mu.Lock()
		u = p.rng.Float64()
		p.mu.Unlock()
	} else {
		u = rand.Float64()
	}
	return (2*u - 1) * p.jitter
}

// simulatedPayload is the image digest followed by a pseudo-embedding drawn
// from a ChaCha8 stream keyed by that digest.
func simulatedPayload(img []byte) []byte {
	digest := sha256.Sum256(img)
	rng := rand.New(rand.NewChaCha8(digest))

	payload := make([]byte, simPayloadBytes)
	copy(payload, digest[:])
	vec := make([]float32, simVectorDim)
	var norm float64
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(payload[simDigestLen+i*4:], math.Float32bits(float32(float64(v)/norm)))
	}
	return payload
}
