package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/engine"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuditReader struct {
	limit  int
	action models.AuditAction
	recs   []storage.AuditRecord
	err    error
}

func (f *fakeAuditReader) Recent(_ context.Context, limit int, action models.AuditAction) ([]storage.AuditRecord, error) {
	f.limit, f.action = limit, action
	return f.recs, f.err
}

func serve(h gin.HandlerFunc, method, path, target string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, path, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestAuditList(t *testing.T) {
	id := "0d0f7c6e-0000-4000-8000-000000000001"
	reader := &fakeAuditReader{recs: []storage.AuditRecord{{
		VerificationID: "v-1",
		Action:         string(models.ActionAccessGranted),
		IdentityID:     &id,
		MatchedName:    "Ana",
		Confidence:     97.5,
		Threshold:      85,
		Provider:       "Local",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}
	h := NewAuditHandler(reader)

	rec := serve(h.List, http.MethodGet, "/audit", "/audit?action=access_granted&limit=900")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, reader.limit)
	assert.Equal(t, models.ActionAccessGranted, reader.action)

	var body struct {
		Records []map[string]any `json:"records"`
		Total   int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "Ana", body.Records[0]["matched_name"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body.Records[0]["created_at"])

	rec = serve(h.List, http.MethodGet, "/audit", "/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, reader.limit)
	assert.Empty(t, reader.action)
}

func TestAuditListRejectsBadQuery(t *testing.T) {
	h := NewAuditHandler(&fakeAuditReader{})
	for _, q := range []string{"?limit=0", "?limit=abc", "?action=maybe"} {
		rec := serve(h.List, http.MethodGet, "/audit", "/audit"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	failing := NewAuditHandler(&fakeAuditReader{err: errors.New("db down")})
	rec := serve(failing.List, http.MethodGet, "/audit", "/audit")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReadyz(t *testing.T) {
	h := NewSystemHandler(map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"nats":     func(context.Context) error { return errors.New("no servers available") },
	})
	rec := serve(h.Readyz, http.MethodGet, "/readyz", "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "no servers available", body.Checks["nats"])

	rec = serve(NewSystemHandler(nil).Readyz, http.MethodGet, "/readyz", "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("verify: %w", biometric.ErrInvalidImage), http.StatusBadRequest},
		{biometric.ErrImageBounds, http.StatusBadRequest},
		{engine.ErrTooManyImages, http.StatusBadRequest},
		{engine.ErrInvalidThreshold, http.StatusBadRequest},
		{fmt.Errorf("%w: x", engine.ErrIdentityNotFound), http.StatusNotFound},
		{fmt.Errorf("verify: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
