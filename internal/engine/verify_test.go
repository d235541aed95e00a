package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestVerifyThresholdScenarios(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		decision  models.Decision
	}{
		{"accepted above threshold", 80, models.DecisionAccepted},
		{"rejected below threshold", 95, models.DecisionRejected},
		{"accepted at threshold", 92, models.DecisionAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{scores: map[string]float64{"ana-1": 0.92}}
			f := newFixture(t, p, testEngineConfig())
			ana := f.addIdentity(t, "Ana", models.CategoryOwner)
			f.addSample(t, ana.ID, "ana-1", t0)

			out, err := f.engine.Verify(context.Background(), VerifyRequest{
				Probe:     noisePNG(t, 64, 64, 1),
				Threshold: ptr(tt.threshold),
			})
			require.NoError(t, err)

			assert.Equal(t, tt.decision, out.Decision)
			assert.InDelta(t, 92.0, out.Confidence, 1e-9, "best confidence is always reported")
			assert.Equal(t, tt.threshold, out.Threshold)
			assert.Equal(t, "Fake", out.Provider)
			if tt.decision == models.DecisionAccepted {
				require.NotNil(t, out.MatchedIdentityID)
				assert.Equal(t, ana.ID, *out.MatchedIdentityID)
				assert.Equal(t, "Ana", out.MatchedName)
				assert.Equal(t, "https://blobs.example.com/ana-1", out.ReferenceImageURL)
				assert.Equal(t, models.ActionAccessGranted, out.Action())
				assert.Equal(t, 1, out.Stats.AboveThreshold)
			} else {
				assert.Nil(t, out.MatchedIdentityID)
				assert.Empty(t, out.MatchedName)
				assert.Empty(t, out.ReferenceImageURL)
				assert.Equal(t, ReasonBelowThreshold, out.Reason)
				assert.Zero(t, out.Stats.AboveThreshold)
			}
			assert.Equal(t, 1, f.audit.count())
		})
	}
}

func TestVerifyBestIdentityAcrossSamples(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		decision  models.Decision
	}{
		{"accepted at 80", 80, models.DecisionAccepted},
		{"rejected at 95", 95, models.DecisionRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{scores: map[string]float64{"a-1": 0.10, "b-1": 0.40, "b-2": 0.92}}
			f := newFixture(t, p, testEngineConfig())
			ctx := context.Background()

			a := f.addIdentity(t, "IdentityA", models.CategoryOwner)
			require.NoError(t, f.store.AppendEnrollments(ctx, a.ID, []models.FaceEnrollment{{
				ID:                uuid.New(),
				IdentityID:        a.ID,
				Reference:         biometric.FaceReference{Provider: fakeKind, Payload: []byte("a-1")},
				ReferenceImageURL: "https://blobs.example.com/a-1",
				QualityScore:      0.9,
				Active:            true,
				EnrolledAt:        t0,
				ProviderName:      "Fake",
			}}))

			b := f.addIdentity(t, "IdentityB", models.CategoryTenant)
			f.addSample(t, b.ID, "b-1", t0)
			f.addSample(t, b.ID, "b-2", t0.Add(time.Minute))

			out, err := f.engine.Verify(ctx, VerifyRequest{
				Probe:     noisePNG(t, 64, 64, 2),
				Threshold: ptr(tt.threshold),
			})
			require.NoError(t, err)

			assert.Equal(t, tt.decision, out.Decision)
			assert.InDelta(t, 92.0, out.Confidence, 1e-9)
			assert.Equal(t, 3, out.Stats.Comparisons)
			assert.Equal(t, 2, out.Stats.Candidates)
			if tt.decision == models.DecisionAccepted {
				require.NotNil(t, out.MatchedIdentityID)
				assert.Equal(t, b.ID, *out.MatchedIdentityID)
				assert.Equal(t, "IdentityB", out.MatchedName)
				assert.Equal(t, "https://blobs.example.com/b-2", out.ReferenceImageURL)
			} else {
				assert.Nil(t, out.MatchedIdentityID)
				assert.Empty(t, out.MatchedName)
				assert.Empty(t, out.ReferenceImageURL)
				assert.Equal(t, ReasonBelowThreshold, out.Reason)
			}
			assert.Equal(t, 1, f.audit.count())
		})
	}
}

func TestVerifyUsesConfiguredThreshold(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"a": 0.86}}
	f := newFixture(t, p, testEngineConfig())
	f.addSample(t, f.addIdentity(t, "A", models.CategoryStaff).ID, "a", t0)

	out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 1)})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAccepted, out.Decision)
	assert.Equal(t, 85.0, out.Threshold)
}

func TestVerifyEmptyGallery(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"t": 0.99}}
	f := newFixture(t, p, testEngineConfig())
	tenant := f.addIdentity(t, "Tenant", models.CategoryTenant)
	f.addSample(t, tenant.ID, "t", t0)
	f.addIdentity(t, "Owner without samples", models.CategoryOwner)

	out, err := f.engine.Verify(context.Background(), VerifyRequest{
		Probe:  noisePNG(t, 64, 64, 2),
		Filter: models.ByCategory(models.CategoryOwner),
	})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionRejected, out.Decision)
	assert.Zero(t, out.Confidence)
	assert.Equal(t, ReasonEmptyGallery, out.Reason)
	assert.Equal(t, "owner", out.Filter)
	assert.Zero(t, p.detections.Load(), "no detection for an empty gallery")
	assert.Zero(t, p.compares.Load())
	assert.Equal(t, 1, f.audit.count())
}

func TestVerifyNoFaceMakesNoComparisons(t *testing.T) {
	p := &fakeProvider{noFace: true, scores: map[string]float64{"a": 1}}
	f := newFixture(t, p, testEngineConfig())
	f.addSample(t, f.addIdentity(t, "A", models.CategoryOwner).ID, "a", t0)

	out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 3)})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionRejected, out.Decision)
	assert.Zero(t, out.Confidence)
	assert.Equal(t, biometric.ReasonNoFace, out.Reason)
	assert.EqualValues(t, 1, p.detections.Load())
	assert.Zero(t, p.compares.Load())
	assert.Equal(t, 1, f.audit.count())
}

func TestVerifyInvalidInput(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, testEngineConfig())

	_, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: []byte("not an image")})
	require.ErrorIs(t, err, biometric.ErrInvalidImage)

	_, err = f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 1), Threshold: ptr(101.0)})
	require.ErrorIs(t, err, ErrInvalidThreshold)

	assert.Zero(t, f.audit.count(), "input errors produce no outcome")
}

func TestVerifyTieBreakIsDeterministic(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"late": 0.9, "early": 0.9, "same-a": 0.9, "same-b": 0.9}}
	f := newFixture(t, p, testEngineConfig())

	late := f.addIdentity(t, "Late", models.CategoryOwner)
	early := f.addIdentity(t, "Early", models.CategoryOwner)
	f.addSample(t, late.ID, "late", t0.Add(time.Hour))
	f.addSample(t, early.ID, "early", t0)

	probe := noisePNG(t, 64, 64, 4)
	for i := 0; i < 100; i++ {
		out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: probe})
		require.NoError(t, err)
		require.Equal(t, models.DecisionAccepted, out.Decision)
		require.Equal(t, early.ID, *out.MatchedIdentityID, "iteration %d", i)
	}
}

func TestVerifyTieBreakFallsBackToIdentityID(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"a": 0.9, "b": 0.9}}
	f := newFixture(t, p, testEngineConfig())

	a := f.addIdentity(t, "A", models.CategoryOwner)
	b := f.addIdentity(t, "B", models.CategoryOwner)
	f.addSample(t, a.ID, "a", t0)
	f.addSample(t, b.ID, "b", t0)

	want := a.ID
	if b.ID.String() < a.ID.String() {
		want = b.ID
	}
	for i := 0; i < 100; i++ {
		out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 5)})
		require.NoError(t, err)
		require.Equal(t, want, *out.MatchedIdentityID)
	}
}

func TestVerifyMultiSampleMonotonicity(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"s1": 0.7, "s2": 0.9, "s3": 0.5}}
	f := newFixture(t, p, testEngineConfig())
	ident := f.addIdentity(t, "Multi", models.CategoryOwner)
	probe := noisePNG(t, 64, 64, 6)

	verify := func() float64 {
		out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: probe, Threshold: ptr(0.0)})
		require.NoError(t, err)
		return out.Confidence
	}

	f.addSample(t, ident.ID, "s1", t0)
	first := verify()
	f.addSample(t, ident.ID, "s2", t0.Add(time.Minute))
	second := verify()
	f.addSample(t, ident.ID, "s3", t0.Add(2*time.Minute))
	third := verify()

	assert.InDelta(t, 70.0, first, 1e-9)
	assert.GreaterOrEqual(t, second, first)
	assert.GreaterOrEqual(t, third, second)
	assert.InDelta(t, 90.0, third, 1e-9)
}

func TestVerifyCandidateTimeoutIsNonMatch(t *testing.T) {
	p := &fakeProvider{
		scores: map[string]float64{"fast": 0.88},
		block:  map[string]bool{"slow": true},
	}
	cfg := testEngineConfig()
	cfg.CandidateTimeout = 20 * time.Millisecond
	f := newFixture(t, p, cfg)

	slow := f.addIdentity(t, "Slow", models.CategoryOwner)
	fast := f.addIdentity(t, "Fast", models.CategoryOwner)
	f.addSample(t, slow.ID, "slow", t0)
	f.addSample(t, fast.ID, "fast", t0)

	out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 7)})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionAccepted, out.Decision)
	assert.Equal(t, fast.ID, *out.MatchedIdentityID)
	assert.Equal(t, 1, out.Stats.TimedOut)
	assert.Equal(t, 2, out.Stats.Candidates)
}

func TestVerifySkipsFailedComparisons(t *testing.T) {
	p := &fakeProvider{
		scores:   map[string]float64{"good": 0.6},
		failures: map[string]error{"broken": &biometric.FaceVerificationError{Provider: "Fake", Err: biometric.ErrCorruptReference}},
	}
	f := newFixture(t, p, testEngineConfig())
	ident := f.addIdentity(t, "A", models.CategoryOwner)
	f.addSample(t, ident.ID, "broken", t0)
	f.addSample(t, ident.ID, "good", t0.Add(time.Second))

	out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 8)})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionRejected, out.Decision)
	assert.InDelta(t, 60.0, out.Confidence, 1e-9)
	assert.Equal(t, 1, out.Stats.Failures)
}

func TestVerifyAllComparisonsFail(t *testing.T) {
	p := &fakeProvider{failures: map[string]error{"x": errors.New("remote unavailable")}}
	f := newFixture(t, p, testEngineConfig())
	f.addSample(t, f.addIdentity(t, "X", models.CategoryOwner).ID, "x", t0)

	out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 9)})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, out.Decision)
	assert.Equal(t, ReasonNoComparisons, out.Reason)
}

func TestVerifyExcludesForeignReferences(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"mine": 0.95}}
	f := newFixture(t, p, testEngineConfig())
	ident := f.addIdentity(t, "A", models.CategoryOwner)
	f.addSample(t, ident.ID, "mine", t0)

	foreign := models.FaceEnrollment{
		IdentityID: ident.ID,
		Reference:  biometric.NewHandleReference(biometric.KindRemote, "face-handle"),
		Active:     true,
		EnrolledAt: t0,
	}
	require.NoError(t, f.store.AppendEnrollments(context.Background(), ident.ID, []models.FaceEnrollment{foreign}))

	out, err := f.engine.Verify(context.Background(), VerifyRequest{Probe: noisePNG(t, 64, 64, 10)})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAccepted, out.Decision)
	assert.Equal(t, 1, out.Stats.Excluded)
	assert.EqualValues(t, 1, p.compares.Load(), "foreign references are never compared")
}

func TestVerifyCancelledScanIsAudited(t *testing.T) {
	p := &fakeProvider{scores: map[string]float64{"a": 0.95}}
	f := newFixture(t, p, testEngineConfig())
	ident := f.addIdentity(t, "A", models.CategoryOwner)
	f.addSample(t, ident.ID, "a", t0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.engine.Verify(ctx, VerifyRequest{Probe: noisePNG(t, 64, 64, 13)})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, out.Decision)
	assert.Equal(t, ReasonCancelled, out.Reason)
	assert.Nil(t, out.MatchedIdentityID)
	assert.Zero(t, out.Confidence)
	assert.Equal(t, 1, out.Stats.Candidates)
	assert.Zero(t, out.Stats.TimedOut, "a cancelled request is not a candidate timeout")

	require.Equal(t, 1, f.audit.count())
	assert.NoError(t, f.audit.ctxErrs[0])
	assert.Equal(t, ReasonCancelled, f.audit.outcomes[0].Reason)
}

func TestVerifyDeadlineMidScanIsAudited(t *testing.T) {
	p := &fakeProvider{
		scores: map[string]float64{"fast": 0.99},
		block:  map[string]bool{"slow": true},
	}
	cfg := testEngineConfig()
	cfg.CandidateTimeout = time.Minute
	f := newFixture(t, p, cfg)
	f.addSample(t, f.addIdentity(t, "Slow", models.CategoryOwner).ID, "slow", t0)
	f.addSample(t, f.addIdentity(t, "Fast", models.CategoryOwner).ID, "fast", t0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out, err := f.engine.Verify(ctx, VerifyRequest{Probe: noisePNG(t, 64, 64, 14)})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, out.Decision, "a partial scan never accepts")
	assert.Equal(t, ReasonCancelled, out.Reason)
	assert.Nil(t, out.MatchedIdentityID)
	assert.Zero(t, out.Stats.TimedOut)
	assert.Equal(t, 1, f.audit.count())
}

func TestVerifyAuditSurvivesCancellationAndErrors(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, testEngineConfig())
	f.audit.err = errors.New("audit store down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.engine.Verify(ctx, VerifyRequest{Probe: noisePNG(t, 64, 64, 11)})
	require.NoError(t, err, "audit failures are never surfaced")
	assert.Equal(t, ReasonEmptyGallery, out.Reason)

	require.Equal(t, 1, f.audit.count())
	assert.NoError(t, f.audit.ctxErrs[0], "audit runs detached from the request context")
}

func TestVerifyInactiveExclusionWithSimulatedProvider(t *testing.T) {
	sim := biometric.NewSimulatedProvider(config.SimulatedConfig{
		Label: "Local", MatchThreshold: 0.8, Jitter: 0.05, Seed: 7, MinSide: 50,
	})
	f := newFixture(t, sim, testEngineConfig())
	ident := f.addIdentity(t, "Resident", models.CategoryTenant)
	photo := noisePNG(t, 96, 96, 12)
	ctx := context.Background()

	report, err := f.engine.Enroll(ctx, ident.ID, [][]byte{photo})
	require.NoError(t, err)
	require.Equal(t, 1, report.Enrolled)

	out, err := f.engine.Verify(ctx, VerifyRequest{Probe: photo})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAccepted, out.Decision)
	assert.InDelta(t, 100.0, out.Confidence, 1e-9, "self-match is exact")
	assert.Equal(t, "Local (Simulated)", out.Provider)

	require.NoError(t, f.engine.Revoke(ctx, ident.ID))

	out, err = f.engine.Verify(ctx, VerifyRequest{Probe: photo})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionRejected, out.Decision)
	assert.Equal(t, ReasonEmptyGallery, out.Reason)
	assert.Nil(t, out.MatchedIdentityID)
}

func TestToPercent(t *testing.T) {
	assert.Equal(t, 92.0, toPercent(0.92))
	assert.Equal(t, 12.3457, toPercent(0.123456789))
	assert.Equal(t, 0.0, toPercent(-0.1))
	assert.Equal(t, 100.0, toPercent(1.5))
}
