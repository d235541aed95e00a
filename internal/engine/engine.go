// Package engine decides whether a probe photograph belongs to an enrolled
// identity. It builds the candidate gallery, scans it with the active matching
// provider and manages the enrollment lifecycle of face samples.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrNoImages         = errors.New("no images submitted")
	ErrTooManyImages    = errors.New("too many images")
	ErrInvalidThreshold = errors.New("threshold must be within [0,100]")
)

const auditTimeout = 5 * time.Second

// IdentityDirectory is the read-only view of residency records.
// GetIdentity returns nil, nil for unknown ids.
type IdentityDirectory interface {
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ListIdentities(ctx context.Context, filter models.GalleryFilter) ([]models.Identity, error)
}

// EnrollmentStore persists face samples. AppendEnrollments writes all rows of
// one identity atomically. DeactivateEnrollments returns the number of rows
// switched off; zero is not an error.
type EnrollmentStore interface {
	AppendEnrollments(ctx context.Context, identityID uuid.UUID, rows []models.FaceEnrollment) error
	DeactivateEnrollments(ctx context.Context, identityID uuid.UUID) (int64, error)
	ListEnrollments(ctx context.Context, identityID uuid.UUID) ([]models.FaceEnrollment, error)
	ActiveEnrollments(ctx context.Context, identityIDs []uuid.UUID) ([]models.FaceEnrollment, error)
}

// DuplicateFinder is implemented by stores that can search vector references.
// It returns other identities with an active reference within maxDistance.
type DuplicateFinder interface {
	FindSimilar(ctx context.Context, ref biometric.FaceReference, exclude uuid.UUID, maxDistance float64) ([]uuid.UUID, error)
}

// BlobStore keeps reference images and returns an operator-facing URL.
type BlobStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Deps are the collaborators of an Engine. Blobs and Audit are optional.
type Deps struct {
	Provider   biometric.Provider
	Identities IdentityDirectory
	Store      EnrollmentStore
	Blobs      BlobStore
	Audit      AuditSink
	Logger     *slog.Logger
	Now        func() time.Time
}

type Engine struct {
	cfg        config.EngineConfig
	provider   biometric.Provider
	identities IdentityDirectory
	store      EnrollmentStore
	blobs      BlobStore
	audit      AuditSink
	log        *slog.Logger
	now        func() time.Time
}

func New(cfg config.EngineConfig, deps Deps) (*Engine, error) {
	if deps.Provider == nil || deps.Identities == nil || deps.Store == nil {
		return nil, errors.New("engine: provider, identities and store are required")
	}
	if cfg.AcceptanceThreshold < 0 || cfg.AcceptanceThreshold > 100 {
		return nil, ErrInvalidThreshold
	}
	if cfg.ScanConcurrency < 1 {
		cfg.ScanConcurrency = 1
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		cfg:        cfg,
		provider:   deps.Provider,
		identities: deps.Identities,
		store:      deps.Store,
		blobs:      deps.Blobs,
		audit:      deps.Audit,
		log:        log.With("component", "engine"),
		now:        now,
	}, nil
}

// Provider returns the active matching provider.
func (e *Engine) Provider() biometric.Provider { return e.provider }

// Threshold returns the default acceptance threshold on the 0-100 scale.
func (e *Engine) Threshold() float64 { return e.cfg.AcceptanceThreshold }
