package engine

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

const (
	ReasonEmptyGallery   = "empty gallery"
	ReasonBelowThreshold = "best confidence below threshold"
	ReasonNoComparisons  = "no comparable references"
	ReasonCancelled      = "request cancelled"
)

// VerifyRequest is one verification call. Threshold overrides the configured
// acceptance threshold when set; both are on a 0-100 scale.
type VerifyRequest struct {
	Probe     []byte
	Filter    models.GalleryFilter
	Threshold *float64
}

type candidateScore struct {
	confidence  float64
	sample      *models.FaceEnrollment
	comparisons int
	failures    int
	aborted     bool
	timedOut    bool
}

// Verify searches the gallery selected by req.Filter for the identity that
// best matches the probe. An image that cannot be decoded is the only input
// error; every other case produces an outcome, which is also sent to the
// audit sink. A request cancelled mid-scan is REJECTED with ReasonCancelled.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) (*models.VerificationOutcome, error) {
	start := time.Now()

	threshold := e.cfg.AcceptanceThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	if _, err := biometric.Inspect(req.Probe); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	out := &models.VerificationOutcome{
		ID:        uuid.New(),
		Decision:  models.DecisionRejected,
		Threshold: threshold,
		Provider:  e.provider.Name(),
		Filter:    req.Filter.String(),
		CreatedAt: e.now().UTC(),
	}

	gallery, err := e.buildGallery(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	out.Stats.Excluded = gallery.Excluded
	out.Stats.Candidates = len(gallery.Candidates)

	if gallery.Empty() {
		out.Reason = ReasonEmptyGallery
		e.finish(ctx, out, start)
		return out, nil
	}

	probe, err := e.provider.DetectFace(ctx, req.Probe)
	if err != nil {
		e.log.Warn("probe detection failed", "error", err, "verification", out.ID)
	}
	if err != nil || probe == nil {
		out.Reason = biometric.ReasonNoFace
		e.finish(ctx, out, start)
		return out, nil
	}

	scores := e.scan(ctx, gallery, probe)
	for _, s := range scores {
		out.Stats.Comparisons += s.comparisons
		out.Stats.Failures += s.failures
		if s.timedOut {
			out.Stats.TimedOut++
		}
	}

	// A partial scan cannot name the global best match.
	if ctx.Err() != nil {
		out.Reason = ReasonCancelled
		e.log.Warn("verification aborted during gallery scan",
			"verification", out.ID, "error", context.Cause(ctx))
		e.finish(ctx, out, start)
		return out, nil
	}

	best := -1
	for i, s := range scores {
		if s.sample == nil {
			continue
		}
		if s.confidence >= threshold {
			out.Stats.AboveThreshold++
		}
		if best < 0 || outranks(gallery, scores, i, best) {
			best = i
		}
	}

	switch {
	case best < 0:
		out.Reason = ReasonNoComparisons
	case scores[best].confidence >= threshold:
		win := scores[best]
		ident := gallery.Candidates[best].Identity
		out.Decision = models.DecisionAccepted
		out.Confidence = win.confidence
		out.MatchedIdentityID = &ident.ID
		out.MatchedName = ident.DisplayName
		out.ReferenceImageURL = win.sample.ReferenceImageURL
	default:
		out.Confidence = scores[best].confidence
		out.Reason = ReasonBelowThreshold
	}

	e.finish(ctx, out, start)
	return out, nil
}

// outranks reports whether candidate i beats candidate j: higher confidence,
// then the earlier enrolled winning sample, then the lower identity id.
func outranks(g *Gallery, scores []candidateScore, i, j int) bool {
	a, b := scores[i], scores[j]
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	if cmp := a.sample.EnrolledAt.Compare(b.sample.EnrolledAt); cmp != 0 {
		return cmp < 0
	}
	ida, idb := g.Candidates[i].Identity.ID, g.Candidates[j].Identity.ID
	return bytes.Compare(ida[:], idb[:]) < 0
}

// scan compares the probe against every sample of every candidate. Each
// candidate runs under its own timeout; results are indexed like the gallery.
func (e *Engine) scan(ctx context.Context, g *Gallery, probe *biometric.Probe) []candidateScore {
	scores := make([]candidateScore, len(g.Candidates))

	var grp errgroup.Group
	grp.SetLimit(e.cfg.ScanConcurrency)
	for i := range g.Candidates {
		grp.Go(func() error {
			scores[i] = e.scoreCandidate(ctx, &g.Candidates[i], probe)
			return nil
		})
	}
	_ = grp.Wait()
	return scores
}

func (e *Engine) scoreCandidate(ctx context.Context, c *Candidate, probe *biometric.Probe) candidateScore {
	cctx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.CandidateTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, e.cfg.CandidateTimeout)
	}
	defer cancel()

	providerName := e.provider.Name()
	var s candidateScore
	for i := range c.Samples {
		sample := &c.Samples[i]
		if cctx.Err() != nil {
			s.aborted = true
			break
		}

		res, err := e.provider.Compare(cctx, sample.Reference, probe)
		s.comparisons++
		if err != nil {
			if cctx.Err() != nil {
				s.aborted = true
				break
			}
			s.failures++
			observability.Comparisons.WithLabelValues(providerName, "error").Inc()
			e.log.Warn("comparison failed, skipping sample",
				"error", err, "identity", c.Identity.ID, "enrollment", sample.ID)
			continue
		}

		label := "no_match"
		if res.IsMatch {
			label = "match"
		}
		observability.Comparisons.WithLabelValues(providerName, label).Inc()

		conf := toPercent(res.Confidence)
		if s.sample == nil || conf > s.confidence {
			s.confidence = conf
			s.sample = sample
		}
	}

	if s.aborted {
		s.confidence = 0
		s.sample = nil
		// the request itself ended; Verify reports that once
		if ctx.Err() != nil {
			observability.Comparisons.WithLabelValues(providerName, "cancelled").Inc()
			return s
		}
		s.timedOut = true
		observability.Comparisons.WithLabelValues(providerName, "timeout").Inc()
		e.log.Warn("candidate comparison timed out, treating as non-match",
			"identity", c.Identity.ID, "timeout", e.cfg.CandidateTimeout,
			"error", context.Cause(cctx))
	}
	return s
}

// toPercent converts a provider confidence in [0,1] to the 0-100 scale,
// rounded to 4 decimals.
func toPercent(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return math.Round(c*100*1e4) / 1e4
}

func (e *Engine) finish(ctx context.Context, out *models.VerificationOutcome, start time.Time) {
	out.Duration = time.Since(start)

	observability.Verifications.WithLabelValues(string(out.Decision)).Inc()
	observability.VerificationDuration.WithLabelValues(out.Provider).Observe(out.Duration.Seconds())

	attrs := []any{
		"verification", out.ID,
		"decision", out.Decision,
		"confidence", out.Confidence,
		"threshold", out.Threshold,
		"provider", out.Provider,
		"filter", out.Filter,
		"candidates", out.Stats.Candidates,
		"comparisons", out.Stats.Comparisons,
		"duration", out.Duration,
	}
	if out.MatchedIdentityID != nil {
		attrs = append(attrs, "identity", *out.MatchedIdentityID)
	}
	if out.Reason != "" {
		attrs = append(attrs, "reason", out.Reason)
	}
	e.log.Info("verification complete", attrs...)

	e.record(ctx, out)
}

// record sends the outcome to the audit sink. It outlives a cancelled request
// and never fails the verification.
func (e *Engine) record(ctx context.Context, out *models.VerificationOutcome) {
	if e.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := e.audit.Record(actx, out); err != nil {
		e.log.Error("audit record failed", "error", err, "verification", out.ID, "action", out.Action())
	}
}
