package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/engine"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type VerifyHandler struct {
	engine FaceEngine
}

func NewVerifyHandler(engine FaceEngine) *VerifyHandler {
	return &VerifyHandler{engine: engine}
}

// Verify takes a multipart "image" probe with optional "filter"
// (all|owner|tenant|staff) and "threshold" (0-100) fields.
func (h *VerifyHandler) Verify(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	probe, err := readUpload(fh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter, err := models.ParseGalleryFilter(c.PostForm("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := engine.VerifyRequest{Probe: probe, Filter: filter}
	if v := c.PostForm("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
			return
		}
		req.Threshold = &threshold
	}

	out, err := h.engine.Verify(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewVerifyResponse(out))
}

// Provider reports the active matching provider.
func (h *VerifyHandler) Provider(c *gin.Context) {
	p := h.engine.Provider()
	c.JSON(http.StatusOK, dto.ProviderResponse{
		Name:      p.Name(),
		Kind:      string(p.Kind()),
		Threshold: h.engine.Threshold(),
	})
}
