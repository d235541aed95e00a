package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type FaceHandler struct {
	engine FaceEngine
}

func NewFaceHandler(engine FaceEngine) *FaceHandler {
	return &FaceHandler{engine: engine}
}

// Enroll accepts one or more multipart "images" files for an identity.
func (h *FaceHandler) Enroll(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		files = form.File["image"]
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		images = append(images, data)
	}

	report, err := h.engine.Enroll(c.Request.Context(), identityID, images)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	status := http.StatusCreated
	if report.Enrolled == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, dto.NewEnrollResponse(report))
}

func (h *FaceHandler) List(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	rows, err := h.engine.Enrollments(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := dto.EnrollmentListResponse{
		IdentityID:  identityID,
		Enrollments: make([]dto.EnrollmentResponse, 0, len(rows)),
		Total:       len(rows),
	}
	for _, r := range rows {
		if r.Active {
			resp.Active++
		}
		resp.Enrollments = append(resp.Enrollments, dto.NewEnrollmentResponse(r))
	}
	if profile := models.ProfileSample(rows); profile != nil {
		resp.ProfileImageURL = profile.ReferenceImageURL
	}
	c.JSON(http.StatusOK, resp)
}

// Revoke deactivates every enrollment of the identity.
func (h *FaceHandler) Revoke(c *gin.Context) {
	identityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	if err := h.engine.Revoke(c.Request.Context(), identityID); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.RevokeResponse{IdentityID: identityID, Revoked: true})
}
