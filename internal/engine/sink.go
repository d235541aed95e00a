package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/your-org/facegate/internal/models"
)

// AuditSink receives every verification outcome.
type AuditSink interface {
	Record(ctx context.Context, out *models.VerificationOutcome) error
}

// SinkFunc adapts a function to AuditSink.
type SinkFunc func(ctx context.Context, out *models.VerificationOutcome) error

func (f SinkFunc) Record(ctx context.Context, out *models.VerificationOutcome) error {
	return f(ctx, out)
}

// MultiSink fans an outcome out to every sink and joins their errors.
type MultiSink []AuditSink

func (m MultiSink) Record(ctx context.Context, out *models.VerificationOutcome) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes outcomes to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(ctx context.Context, out *models.VerificationOutcome) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "audit",
		"action", out.Action(),
		"verification", out.ID,
		"confidence", out.Confidence,
		"provider", out.Provider,
		"matched_identity", out.MatchedIdentityID,
	)
	return nil
}
