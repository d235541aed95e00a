package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
)

func TestAuditSubject(t *testing.T) {
	assert.Equal(t, "audit.access_granted", AuditSubject(models.ActionAccessGranted))
	assert.Equal(t, "audit.access_denied", AuditSubject(models.ActionAccessDenied))
}

func TestDecodeAudit(t *testing.T) {
	id := uuid.New()
	out := models.VerificationOutcome{
		ID:                uuid.New(),
		Decision:          models.DecisionAccepted,
		MatchedIdentityID: &id,
		Confidence:        97.5,
		Threshold:         85,
		Provider:          "Local",
		Duration:          12 * time.Millisecond,
		CreatedAt:         time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(AuditMessage{Action: out.Action(), Outcome: out})
	require.NoError(t, err)

	msg, err := DecodeAudit(data)
	require.NoError(t, err)
	assert.Equal(t, models.ActionAccessGranted, msg.Action)
	assert.Equal(t, out, msg.Outcome)

	// action is derived when absent
	msg, err = DecodeAudit([]byte(`{"outcome":{"decision":"REJECTED"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.ActionAccessDenied, msg.Action)

	_, err = DecodeAudit([]byte("{"))
	assert.Error(t, err)
}
