package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

type StatsResponse struct {
	Candidates     int `json:"candidates"`
	Comparisons    int `json:"comparisons"`
	AboveThreshold int `json:"above_threshold"`
	Failures       int `json:"failures"`
	TimedOut       int `json:"timed_out"`
	Excluded       int `json:"excluded"`
}

// VerifyResponse is returned by POST /v1/verify and pushed to WebSocket
// clients.
type VerifyResponse struct {
	ID                uuid.UUID     `json:"id"`
	Decision          string        `json:"decision"`
	Action            string        `json:"action"`
	MatchedIdentityID *uuid.UUID    `json:"matched_identity_id,omitempty"`
	MatchedName       string        `json:"matched_name,omitempty"`
	Confidence        float64       `json:"confidence"`
	Threshold         float64       `json:"threshold"`
	Provider          string        `json:"provider"`
	ReferenceImageURL string        `json:"reference_image_url,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	Filter            string        `json:"filter"`
	DurationMS        float64       `json:"duration_ms"`
	Stats             StatsResponse `json:"stats"`
	CreatedAt         string        `json:"created_at"`
}

func NewVerifyResponse(out *models.VerificationOutcome) VerifyResponse {
	return VerifyResponse{
		ID:                out.ID,
		Decision:          string(out.Decision),
		Action:            string(out.Action()),
		MatchedIdentityID: out.MatchedIdentityID,
		MatchedName:       out.MatchedName,
		Confidence:        out.Confidence,
		Threshold:         out.Threshold,
		Provider:          out.Provider,
		ReferenceImageURL: out.ReferenceImageURL,
		Reason:            out.Reason,
		Filter:            out.Filter,
		DurationMS:        float64(out.Duration.Microseconds()) / 1000,
		Stats:             StatsResponse(out.Stats),
		CreatedAt:         out.CreatedAt.UTC().Format(timeLayout),
	}
}

type ProviderResponse struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Threshold float64 `json:"threshold"`
}

type AuditRecordResponse struct {
	VerificationID string  `json:"verification_id"`
	Action         string  `json:"action"`
	IdentityID     *string `json:"identity_id,omitempty"`
	MatchedName    string  `json:"matched_name,omitempty"`
	Confidence     float64 `json:"confidence"`
	Threshold      float64 `json:"threshold"`
	Provider       string  `json:"provider"`
	Reason         string  `json:"reason,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// WSEvent is a WebSocket message for real-time access decisions.
type WSEvent struct {
	Type string         `json:"type"` // verification
	Data VerifyResponse `json:"data"`
}
