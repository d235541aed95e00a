package models

import (
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionAccepted Decision = "ACCEPTED"
	DecisionRejected Decision = "REJECTED"
)

type AuditAction string

const (
	ActionAccessGranted AuditAction = "ACCESS_GRANTED"
	ActionAccessDenied  AuditAction = "ACCESS_DENIED"
)

// ScanStats counts what a single verification did.
type ScanStats struct {
	Candidates     int `json:"candidates"`
	Comparisons    int `json:"comparisons"`
	AboveThreshold int `json:"above_threshold"`
	Failures       int `json:"failures"`
	TimedOut       int `json:"timed_out"`
	Excluded       int `json:"excluded"`
}

// VerificationOutcome is the decision for one probe. Confidence and Threshold
// are on a 0-100 scale. MatchedIdentityID, MatchedName and ReferenceImageURL
// are only set when the decision is ACCEPTED.
type VerificationOutcome struct {
	ID                uuid.UUID     `json:"id"`
	Decision          Decision      `json:"decision"`
	MatchedIdentityID *uuid.UUID    `json:"matched_identity_id,omitempty"`
	MatchedName       string        `json:"matched_name,omitempty"`
	Confidence        float64       `json:"confidence"`
	Threshold         float64       `json:"threshold"`
	Provider          string        `json:"provider"`
	ReferenceImageURL string        `json:"reference_image_url,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	Filter            string        `json:"filter"`
	Duration          time.Duration `json:"duration"`
	Stats             ScanStats     `json:"stats"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (o *VerificationOutcome) Accepted() bool { return o.Decision == DecisionAccepted }

// Action is the audit action recorded for the outcome.
func (o *VerificationOutcome) Action() AuditAction {
	if o.Accepted() {
		return ActionAccessGranted
	}
	return ActionAccessDenied
}
