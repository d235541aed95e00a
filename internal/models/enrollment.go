package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
)

// FaceEnrollment is one stored face sample of an identity. Rows are never
// changed after insert except for Active.
type FaceEnrollment struct {
	ID                uuid.UUID               `json:"id" db:"id"`
	IdentityID        uuid.UUID               `json:"identity_id" db:"identity_id"`
	Reference         biometric.FaceReference `json:"-" db:"reference"`
	ReferenceImageURL string                  `json:"reference_image_url,omitempty" db:"reference_image_url"`
	QualityScore      float64                 `json:"quality_score" db:"quality_score"`
	Active            bool                    `json:"active" db:"active"`
	EnrolledAt        time.Time               `json:"enrolled_at" db:"enrolled_at"`
	ProviderName      string                  `json:"provider_name" db:"provider_name"`
}

// ProfileSample returns the highest quality active enrollment, or nil.
// Equal scores keep the earliest sample.
func ProfileSample(rows []FaceEnrollment) *FaceEnrollment {
	var best *FaceEnrollment
	for i := range rows {
		r := &rows[i]
		if !r.Active {
			continue
		}
		if best == nil || r.QualityScore > best.QualityScore ||
			(r.QualityScore == best.QualityScore && r.EnrolledAt.Before(best.EnrolledAt)) {
			best = r
		}
	}
	return best
}

// EnrollmentItem is the result for one submitted photo.
type EnrollmentItem struct {
	Index        int        `json:"index"`
	EnrollmentID *uuid.UUID `json:"enrollment_id,omitempty"`
	QualityScore float64    `json:"quality_score,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type EnrollmentReport struct {
	IdentityID         uuid.UUID        `json:"identity_id"`
	Requested          int              `json:"requested"`
	Enrolled           int              `json:"enrolled"`
	Failed             int              `json:"failed"`
	ReferenceImageURL  string           `json:"reference_image_url,omitempty"`
	Items              []EnrollmentItem `json:"items"`
	PossibleDuplicates []uuid.UUID      `json:"possible_duplicates,omitempty"`
}
