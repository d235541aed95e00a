// Package biometric holds the matching providers: face detection, reference
// extraction and probe-to-reference comparison for each backend.
package biometric

import (
	"context"
	"errors"
	"image"
)

// ReasonNoFace is reported when a probe carries no detectable face.
const ReasonNoFace = "no face detected in probe"

// Probe is a decoded probe image. It is built once per verification and shared
// read-only across all comparisons.
type Probe struct {
	Reference FaceReference
	Image     image.Image
	Format    string
	Faces     int
}

// MatchResult is the outcome of one probe to reference comparison.
// Confidence is always within [0,1].
type MatchResult struct {
	IsMatch    bool
	Confidence float64
	Distance   float64
	Provider   string
	Reason     string
}

// Enrollment is what a provider returns for an accepted enrollment photo.
type Enrollment struct {
	Reference    FaceReference
	QualityScore float64
	ProviderName string
	Format       string
}

// Provider is implemented by the Local, Remote and Simulated backends.
type Provider interface {
	// Name is the operator-facing label, e.g. "Local" or "Local (Simulated)".
	Name() string
	Kind() Kind
	// DetectFace returns nil, nil when the image holds no face.
	DetectFace(ctx context.Context, img []byte) (*Probe, error)
	// Compare scores an already decoded probe against a stored reference.
	Compare(ctx context.Context, ref FaceReference, probe *Probe) (MatchResult, error)
	// VerifyFaces decodes img and compares it; a missing face is a non-match.
	VerifyFaces(ctx context.Context, ref FaceReference, img []byte) (MatchResult, error)
	// EnrollFace fails with *FaceEnrollmentError when no face is found.
	EnrollFace(ctx context.Context, img []byte) (*Enrollment, error)
	Close() error
}

// noMatch is the well-formed result for probes that cannot be compared.
func noMatch(provider, reason string) MatchResult {
	return MatchResult{Provider: provider, Reason: reason}
}

// verifyImage implements VerifyFaces on top of DetectFace and Compare.
func verifyImage(ctx context.Context, p Provider, ref FaceReference, img []byte) (MatchResult, error) {
	probe, err := p.DetectFace(ctx, img)
	if err != nil {
		var detErr *FaceDetectionError
		if errors.As(err, &detErr) {
			return noMatch(p.Name(), detErr.Error()), nil
		}
		return MatchResult{}, err
	}
	if probe == nil {
		return noMatch(p.Name(), ReasonNoFace), nil
	}
	return p.Compare(ctx, ref, probe)
}

// enrollImage implements EnrollFace on top of DetectFace.
func enrollImage(ctx context.Context, p Provider, img []byte) (*Enrollment, error) {
	probe, err := p.DetectFace(ctx, img)
	if err != nil {
		return nil, &FaceEnrollmentError{Provider: p.Name(), Err: err}
	}
	if probe == nil {
		return nil, &FaceEnrollmentError{Provider: p.Name(), Err: ErrNoFace}
	}
	return &Enrollment{
		Reference:    probe.Reference,
		QualityScore: QualityScore(probe.Image),
		ProviderName: p.Name(),
		Format:       probe.Format,
	}, nil
}
