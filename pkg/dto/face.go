package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

type EnrollmentResponse struct {
	ID                uuid.UUID `json:"id"`
	IdentityID        uuid.UUID `json:"identity_id"`
	ReferenceImageURL string    `json:"reference_image_url,omitempty"`
	QualityScore      float64   `json:"quality_score"`
	Active            bool      `json:"active"`
	ProviderName      string    `json:"provider_name"`
	ProviderKind      string    `json:"provider_kind"`
	EnrolledAt        string    `json:"enrolled_at"`
}

type EnrollmentListResponse struct {
	IdentityID      uuid.UUID            `json:"identity_id"`
	Enrollments     []EnrollmentResponse `json:"enrollments"`
	Active          int                  `json:"active"`
	Total           int                  `json:"total"`
	ProfileImageURL string               `json:"profile_image_url,omitempty"`
}

type EnrollItemResponse struct {
	Index        int        `json:"index"`
	EnrollmentID *uuid.UUID `json:"enrollment_id,omitempty"`
	QualityScore float64    `json:"quality_score,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type EnrollResponse struct {
	IdentityID         uuid.UUID            `json:"identity_id"`
	Requested          int                  `json:"requested"`
	Enrolled           int                  `json:"enrolled"`
	Failed             int                  `json:"failed"`
	ReferenceImageURL  string               `json:"reference_image_url,omitempty"`
	Items              []EnrollItemResponse `json:"items"`
	PossibleDuplicates []uuid.UUID          `json:"possible_duplicates,omitempty"`
}

type RevokeResponse struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Revoked    bool      `json:"revoked"`
}

func NewEnrollmentResponse(e models.FaceEnrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:                e.ID,
		IdentityID:        e.IdentityID,
		ReferenceImageURL: e.ReferenceImageURL,
		QualityScore:      e.QualityScore,
		Active:            e.Active,
		ProviderName:      e.ProviderName,
		ProviderKind:      string(e.Reference.Provider),
		EnrolledAt:        e.EnrolledAt.UTC().Format(timeLayout),
	}
}

func NewEnrollResponse(r *models.EnrollmentReport) EnrollResponse {
	items := make([]EnrollItemResponse, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, EnrollItemResponse(it))
	}
	return EnrollResponse{
		IdentityID:         r.IdentityID,
		Requested:          r.Requested,
		Enrolled:           r.Enrolled,
		Failed:             r.Failed,
		ReferenceImageURL:  r.ReferenceImageURL,
		Items:              items,
		PossibleDuplicates: r.PossibleDuplicates,
	}
}
