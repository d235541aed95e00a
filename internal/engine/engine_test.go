package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const fakeKind = biometric.KindLocal

// fakeProvider scores references by payload. Payloads listed in block wait
// for the comparison context to end.
type fakeProvider struct {
	noFace     bool
	scores     map[string]float64
	failures   map[string]error
	block      map[string]bool
	enroll     func(img []byte) (*biometric.Enrollment, error)
	compares   atomic.Int32
	detections atomic.Int32
}

func (p *fakeProvider) Name() string         { return "Fake" }
func (p *fakeProvider) Kind() biometric.Kind { return fakeKind }
func (p *fakeProvider) Close() error         { return nil }

func (p *fakeProvider) DetectFace(_ context.Context, img []byte) (*biometric.Probe, error) {
	p.detections.Add(1)
	if p.noFace {
		return nil, nil
	}
	return &biometric.Probe{Reference: biometric.FaceReference{Provider: fakeKind, Payload: img}, Faces: 1}, nil
}

func (p *fakeProvider) Compare(ctx context.Context, ref biometric.FaceReference, _ *biometric.Probe) (biometric.MatchResult, error) {
	p.compares.Add(1)
	key := string(ref.Payload)
	if p.block[key] {
		<-ctx.Done()
		return biometric.MatchResult{}, ctx.Err()
	}
	if err := p.failures[key]; err != nil {
		return biometric.MatchResult{}, err
	}
	c := p.scores[key]
	return biometric.MatchResult{IsMatch: c >= 0.5, Confidence: c, Provider: p.Name()}, nil
}

func (p *fakeProvider) VerifyFaces(ctx context.Context, ref biometric.FaceReference, img []byte) (biometric.MatchResult, error) {
	probe, err := p.DetectFace(ctx, img)
	if err != nil || probe == nil {
		return biometric.MatchResult{Provider: p.Name(), Reason: biometric.ReasonNoFace}, err
	}
	return p.Compare(ctx, ref, probe)
}

func (p *fakeProvider) EnrollFace(_ context.Context, img []byte) (*biometric.Enrollment, error) {
	if p.enroll == nil {
		return nil, &biometric.FaceEnrollmentError{Provider: p.Name(), Err: biometric.ErrNoFace}
	}
	return p.enroll(img)
}

// recordingSink collects audited outcomes.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []*models.VerificationOutcome
	ctxErrs  []error
	err      error
}

func (s *recordingSink) Record(ctx context.Context, out *models.VerificationOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

// memoryBlobs stores uploads in a map.
type memoryBlobs struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (b *memoryBlobs) Store(_ context.Context, key string, _ []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return "", errors.New("bucket unavailable")
	}
	b.keys = append(b.keys, key)
	return "https://blobs.example.com/" + key, nil
}

func (b *memoryBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = slices.DeleteFunc(b.keys, func(k string) bool { return k == key })
	return nil
}

type fixture struct {
	engine   *Engine
	store    *storage.MemoryStore
	provider biometric.Provider
	audit    *recordingSink
	blobs    *memoryBlobs
}

func newFixture(t *testing.T, provider biometric.Provider, cfg config.EngineConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		provider: provider,
		audit:    &recordingSink{},
		blobs:    &memoryBlobs{},
	}
	eng, err := New(cfg, Deps{
		Provider:   provider,
		Identities: f.store,
		Store:      f.store,
		Blobs:      f.blobs,
		Audit:      f.audit,
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		AcceptanceThreshold:    85,
		CandidateTimeout:       time.Second,
		ScanConcurrency:        4,
		MaxImagesPerEnrollment: 10,
		DuplicateDistance:      0.35,
	}
}

func (f *fixture) addIdentity(t *testing.T, name string, cat models.Category) models.Identity {
	t.Helper()
	ident := models.Identity{ID: uuid.New(), DisplayName: name, Category: cat, Active: true}
	require.NoError(t, f.store.UpsertIdentity(context.Background(), ident))
	return ident
}

// addSample stores an active enrollment whose payload is key.
func (f *fixture) addSample(t *testing.T, identityID uuid.UUID, key string, enrolledAt time.Time) models.FaceEnrollment {
	t.Helper()
	row := models.FaceEnrollment{
		ID:                uuid.New(),
		IdentityID:        identityID,
		Reference:         biometric.FaceReference{Provider: fakeKind, Payload: []byte(key)},
		ReferenceImageURL: "https://blobs.example.com/" + key,
		QualityScore:      0.5,
		Active:            true,
		EnrolledAt:        enrolledAt,
		ProviderName:      "Fake",
	}
	require.NoError(t, f.store.AppendEnrollments(context.Background(), identityID, []models.FaceEnrollment{row}))
	return row
}

// noisePNG encodes a w x h image of seeded random pixels.
func noisePNG(t *testing.T, w, h int, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+7))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(testEngineConfig(), Deps{})
	require.Error(t, err)

	cfg := testEngineConfig()
	cfg.AcceptanceThreshold = 120
	store := storage.NewMemoryStore()
	_, err = New(cfg, Deps{Provider: &fakeProvider{}, Identities: store, Store: store})
	require.ErrorIs(t, err, ErrInvalidThreshold)

	// zero is a valid threshold, not a request for the default
	eng, err := New(config.EngineConfig{}, Deps{Provider: &fakeProvider{}, Identities: store, Store: store})
	require.NoError(t, err)
	require.Zero(t, eng.Threshold())
}
