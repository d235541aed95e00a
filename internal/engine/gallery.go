package engine

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// Candidate is one identity of a gallery with its comparable samples, oldest
// first.
type Candidate struct {
	Identity models.Identity
	Samples  []models.FaceEnrollment
}

// Gallery is the request-scoped set of candidates, ordered by identity id.
type Gallery struct {
	Candidates []Candidate
	// Excluded counts rows dropped because they were inactive or produced by
	// another provider kind.
	Excluded int
}

func (g *Gallery) Empty() bool { return len(g.Candidates) == 0 }

// buildGallery collects the active, filter-matching identities and their
// active samples tagged with the active provider kind. Identities left
// without samples are not candidates.
func (e *Engine) buildGallery(ctx context.Context, filter models.GalleryFilter) (*Gallery, error) {
	identities, err := e.identities.ListIdentities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	byID := make(map[uuid.UUID]*Candidate, len(identities))
	ids := make([]uuid.UUID, 0, len(identities))
	for _, ident := range identities {
		if !filter.Matches(ident) {
			continue
		}
		if _, dup := byID[ident.ID]; dup {
			continue
		}
		byID[ident.ID] = &Candidate{Identity: ident}
		ids = append(ids, ident.ID)
	}

	g := &Gallery{}
	if len(ids) == 0 {
		return g, nil
	}

	rows, err := e.store.ActiveEnrollments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load enrollments: %w", err)
	}

	kind := e.provider.Kind()
	for _, row := range rows {
		c, ok := byID[row.IdentityID]
		if !ok {
			continue
		}
		if !row.Active || row.Reference.Provider != kind {
			g.Excluded++
			continue
		}
		c.Samples = append(c.Samples, row)
	}

	for _, id := range ids {
		c := byID[id]
		if len(c.Samples) == 0 {
			continue
		}
		slices.SortStableFunc(c.Samples, func(a, b models.FaceEnrollment) int {
			if cmp := a.EnrolledAt.Compare(b.EnrolledAt); cmp != 0 {
				return cmp
			}
			return bytes.Compare(a.ID[:], b.ID[:])
		})
		g.Candidates = append(g.Candidates, *c)
	}
	slices.SortFunc(g.Candidates, func(a, b Candidate) int {
		return bytes.Compare(a.Identity.ID[:], b.Identity.ID[:])
	})

	if g.Excluded > 0 {
		e.log.Debug("gallery rows excluded", "excluded", g.Excluded, "provider_kind", kind)
	}
	return g, nil
}
