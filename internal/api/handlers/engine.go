package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/engine"
	"github.com/your-org/facegate/internal/models"
)

// FaceEngine is the subset of *engine.Engine the HTTP layer calls.
type FaceEngine interface {
	Enroll(ctx context.Context, identityID uuid.UUID, images [][]byte) (*models.EnrollmentReport, error)
	Revoke(ctx context.Context, identityID uuid.UUID) error
	Enrollments(ctx context.Context, identityID uuid.UUID) ([]models.FaceEnrollment, error)
	Verify(ctx context.Context, req engine.VerifyRequest) (*models.VerificationOutcome, error)
	Provider() biometric.Provider
	Threshold() float64
}

// statusFor maps engine and provider errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, biometric.ErrInvalidImage),
		errors.Is(err, biometric.ErrUnsupportedFormat),
		errors.Is(err, biometric.ErrImageBounds),
		errors.Is(err, engine.ErrNoImages),
		errors.Is(err, engine.ErrTooManyImages),
		errors.Is(err, engine.ErrInvalidThreshold):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
