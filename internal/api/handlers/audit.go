package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type AuditReader interface {
	Recent(ctx context.Context, limit int, action models.AuditAction) ([]storage.AuditRecord, error)
}

type AuditHandler struct {
	log AuditReader
}

func NewAuditHandler(log AuditReader) *AuditHandler {
	return &AuditHandler{log: log}
}

// List returns recent access decisions. ?action=access_granted|access_denied,
// ?limit=N (max 500).
func (h *AuditHandler) List(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, 500)
	}

	var action models.AuditAction
	switch strings.ToUpper(c.Query("action")) {
	case "":
	case string(models.ActionAccessGranted):
		action = models.ActionAccessGranted
	case string(models.ActionAccessDenied):
		action = models.ActionAccessDenied
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}

	recs, err := h.log.Recent(c.Request.Context(), limit, action)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AuditRecordResponse, 0, len(recs))
	for _, r := range recs {
		resp = append(resp, dto.AuditRecordResponse{
			VerificationID: r.VerificationID,
			Action:         r.Action,
			IdentityID:     r.IdentityID,
			MatchedName:    r.MatchedName,
			Confidence:     r.Confidence,
			Threshold:      r.Threshold,
			Provider:       r.Provider,
			Reason:         r.Reason,
			CreatedAt:      r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": resp, "total": len(resp)})
}
