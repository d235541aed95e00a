package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// Enroll extracts a reference from each photo and appends the successful ones
// to the identity in a single write. Photos without a usable face are reported
// per item and do not abort the batch. Nothing is written when no photo
// succeeds.
func (e *Engine) Enroll(ctx context.Context, identityID uuid.UUID, images [][]byte) (*models.EnrollmentReport, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if limit := e.cfg.MaxImagesPerEnrollment; limit > 0 && len(images) > limit {
		return nil, fmt.Errorf("%w: %d submitted, limit is %d", ErrTooManyImages, len(images), limit)
	}

	ident, err := e.identities.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if ident == nil {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, identityID)
	}

	report := &models.EnrollmentReport{
		IdentityID: identityID,
		Requested:  len(images),
		Items:      make([]models.EnrollmentItem, 0, len(images)),
	}

	batchTime := e.now().UTC()
	rows := make([]models.FaceEnrollment, 0, len(images))
	var uploaded []string
	for i, img := range images {
		enrolled, err := e.provider.EnrollFace(ctx, img)
		if err != nil {
			report.Failed++
			report.Items = append(report.Items, models.EnrollmentItem{Index: i, Error: err.Error()})
			observability.Enrollments.WithLabelValues("failed").Inc()
			e.log.Info("enrollment photo rejected", "identity", identityID, "index", i, "error", err)
			continue
		}

		row := models.FaceEnrollment{
			ID:         uuid.New(),
			IdentityID: identityID,
			Reference:  enrolled.Reference,
			// keeps submission order within a batch at microsecond precision
			EnrolledAt:   batchTime.Add(time.Duration(i) * time.Microsecond),
			QualityScore: enrolled.QualityScore,
			Active:       true,
			ProviderName: enrolled.ProviderName,
		}
		var key string
		row.ReferenceImageURL, key = e.storeImage(ctx, row, enrolled.Format, img)
		if key != "" {
			uploaded = append(uploaded, key)
		}

		rows = append(rows, row)
		id := row.ID
		report.Items = append(report.Items, models.EnrollmentItem{Index: i, EnrollmentID: &id, QualityScore: row.QualityScore})
	}

	if len(rows) == 0 {
		e.log.Warn("no usable photos in enrollment batch", "identity", identityID, "requested", len(images))
		return report, nil
	}

	if err := e.store.AppendEnrollments(ctx, identityID, rows); err != nil {
		e.removeImages(ctx, uploaded)
		return nil, fmt.Errorf("append enrollments: %w", err)
	}
	report.Enrolled = len(rows)
	observability.Enrollments.WithLabelValues("enrolled").Add(float64(len(rows)))

	if all, err := e.store.ListEnrollments(ctx, identityID); err != nil {
		e.log.Warn("load profile sample", "error", err, "identity", identityID)
	} else if profile := models.ProfileSample(all); profile != nil {
		report.ReferenceImageURL = profile.ReferenceImageURL
	}

	report.PossibleDuplicates = e.findDuplicates(ctx, identityID, rows)

	e.log.Info("enrollment complete",
		"identity", identityID,
		"name", ident.DisplayName,
		"enrolled", report.Enrolled,
		"failed", report.Failed,
		"provider", e.provider.Name(),
	)
	return report, nil
}

// storeImage uploads the enrollment photo and returns its URL and object key.
// A failed upload leaves both empty and does not fail the enrollment.
func (e *Engine) storeImage(ctx context.Context, row models.FaceEnrollment, format string, img []byte) (string, string) {
	if e.blobs == nil {
		return "", ""
	}
	info := biometric.ImageInfo{Format: format}
	key := fmt.Sprintf("enrollments/%s/%s.%s", row.IdentityID, row.ID, info.Extension())
	url, err := e.blobs.Store(ctx, key, img, info.ContentType())
	if err != nil {
		e.log.Warn("store reference image", "error", err, "key", key)
		return "", ""
	}
	return url, key
}

// removeImages deletes uploads whose rows were never committed.
func (e *Engine) removeImages(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	for _, key := range keys {
		if err := e.blobs.Delete(ctx, key); err != nil {
			e.log.Warn("remove orphaned reference image", "error", err, "key", key)
		}
	}
}

// findDuplicates reports other identities holding a reference close to one of
// the new rows. Only vector references can be searched.
func (e *Engine) findDuplicates(ctx context.Context, identityID uuid.UUID, rows []models.FaceEnrollment) []uuid.UUID {
	finder, ok := e.store.(DuplicateFinder)
	if !ok || e.cfg.DuplicateDistance <= 0 {
		return nil
	}

	var found []uuid.UUID
	for _, row := range rows {
		if row.Reference.Provider != biometric.KindLocal {
			continue
		}
		ids, err := finder.FindSimilar(ctx, row.Reference, identityID, e.cfg.DuplicateDistance)
		if err != nil {
			e.log.Warn("duplicate check failed", "error", err, "enrollment", row.ID)
			continue
		}
		for _, id := range ids {
			if !slices.Contains(found, id) {
				found = append(found, id)
			}
		}
	}
	if len(found) > 0 {
		e.log.Warn("enrolled face resembles other identities", "identity", identityID, "similar", found)
	}
	return found
}

// Revoke deactivates every enrollment of the identity. Revoking an identity
// with no active enrollments succeeds.
func (e *Engine) Revoke(ctx context.Context, identityID uuid.UUID) error {
	n, err := e.store.DeactivateEnrollments(ctx, identityID)
	if err != nil {
		return fmt.Errorf("deactivate enrollments: %w", err)
	}
	e.log.Info("enrollments revoked", "identity", identityID, "rows", n)
	return nil
}

// Enrollments lists all samples of an identity, active or not, oldest first.
func (e *Engine) Enrollments(ctx context.Context, identityID uuid.UUID) ([]models.FaceEnrollment, error) {
	rows, err := e.store.ListEnrollments(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return rows, nil
}
