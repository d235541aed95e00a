package biometric

import (
	"errors"
	"fmt"
)

var (
	ErrNoFace             = errors.New("no face detected")
	ErrInvalidImage       = errors.New("input is not a decodable image")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrImageBounds        = errors.New("image outside provider bounds")
	ErrProviderMismatch   = errors.New("face reference belongs to another provider")
	ErrCorruptReference   = errors.New("corrupt face reference")
	ErrReferenceExpired   = errors.New("face reference expired, re-enroll the identity")
	ErrMissingCredentials = errors.New("remote provider credentials missing")
	ErrRuntimeUnavailable = errors.New("provider runtime unavailable")
)

// FaceDetectionError reports malformed or undetectable input.
type FaceDetectionError struct {
	Provider string
	Err      error
}

func (e *FaceDetectionError) Error() string {
	return fmt.Sprintf("face detection (%s): %v", e.Provider, e.Err)
}

func (e *FaceDetectionError) Unwrap() error { return e.Err }

// FaceVerificationError reports a provider-side comparison failure.
type FaceVerificationError struct {
	Provider string
	Err      error
}

func (e *FaceVerificationError) Error() string {
	return fmt.Sprintf("face verification (%s): %v", e.Provider, e.Err)
}

func (e *FaceVerificationError) Unwrap() error { return e.Err }

// FaceEnrollmentError reports an enrollment photo that cannot become a reference.
type FaceEnrollmentError struct {
	Provider string
	Err      error
}

func (e *FaceEnrollmentError) Error() string {
	return fmt.Sprintf("face enrollment (%s): %v", e.Provider, e.Err)
}

func (e *FaceEnrollmentError) Unwrap() error { return e.Err }

// ProviderUnavailableError is returned by the factory only; it is fatal at startup.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

func detectionError(provider string, err error) error {
	return &FaceDetectionError{Provider: provider, Err: err}
}

func verificationError(provider string, err error) error {
	return &FaceVerificationError{Provider: provider, Err: err}
}
