package storage

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
)

// MemoryStore keeps identities and enrollments in process memory. It backs
// the simulated development mode and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	identities  map[uuid.UUID]models.Identity
	enrollments map[uuid.UUID][]models.FaceEnrollment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities:  make(map[uuid.UUID]models.Identity),
		enrollments: make(map[uuid.UUID][]models.FaceEnrollment),
	}
}

func (s *MemoryStore) UpsertIdentity(_ context.Context, ident models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[ident.ID] = ident
	return nil
}

func (s *MemoryStore) GetIdentity(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

func (s *MemoryStore) ListIdentities(_ context.Context, filter models.GalleryFilter) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Identity
	for _, ident := range s.identities {
		if filter.Matches(ident) {
			out = append(out, ident)
		}
	}
	slices.SortFunc(out, func(a, b models.Identity) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out, nil
}

func (s *MemoryStore) AppendEnrollments(_ context.Context, identityID uuid.UUID, rows []models.FaceEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		r.IdentityID = identityID
		r.Reference.Payload = slices.Clone(r.Reference.Payload)
		s.enrollments[identityID] = append(s.enrollments[identityID], r)
	}
	return nil
}

func (s *MemoryStore) DeactivateEnrollments(_ context.Context, identityID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	rows := s.enrollments[identityID]
	for i := range rows {
		if rows[i].Active {
			rows[i].Active = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListEnrollments(_ context.Context, identityID uuid.UUID) ([]models.FaceEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := slices.Clone(s.enrollments[identityID])
	slices.SortStableFunc(rows, func(a, b models.FaceEnrollment) int { return a.EnrolledAt.Compare(b.EnrolledAt) })
	return rows, nil
}

func (s *MemoryStore) ActiveEnrollments(_ context.Context, identityIDs []uuid.UUID) ([]models.FaceEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FaceEnrollment
	for _, id := range identityIDs {
		for _, r := range s.enrollments[id] {
			if r.Active {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// FindSimilar scans active vector references of other identities.
func (s *MemoryStore) FindSimilar(_ context.Context, ref biometric.FaceReference, exclude uuid.UUID, maxDistance float64) ([]uuid.UUID, error) {
	probe, err := ref.Vector()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for id, rows := range s.enrollments {
		if id == exclude {
			continue
		}
		for _, r := range rows {
			if !r.Active || r.Reference.Provider != ref.Provider {
				continue
			}
			vec, err := r.Reference.Vector()
			if err != nil {
				continue
			}
			if biometric.CosineDistance(probe, vec) <= maxDistance {
				out = append(out, id)
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
