package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"photoshare/internal/domain"
	"photoshare/internal/repository"
	"photoshare/internal/service"
)

const degradedNote = "Profile updated in fallback mode (MongoDB unavailable)"

type Handler struct {
	service       service.ProfileService
	images        repository.ImageStore
	maxUploadSize int64
	log           *zap.Logger
}

func NewHandler(service service.ProfileService, images repository.ImageStore, maxUploadSize int64, log *zap.Logger) *Handler {
	return &Handler{
		service:       service,
		images:        images,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

type updateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (h *Handler) GetProfile(c *gin.Context) {
	res, err := h.service.ReadProfile(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load profile data",
			"profile": h.service.FallbackProfile(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": res.Profile})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON in request body"})
		return
	}

	res, err := h.service.UpdateProfile(c.Request.Context(), req.FirstName, req.LastName)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ve.Msg})
			return
		}
		h.log.Error("Failed to update profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to update profile"})
		return
	}

	body := gin.H{"success": true, "profile": res.Profile}
	if res.Degraded {
		body["note"] = degradedNote
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.log.Warn("Failed to get file from form", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No image file provided"})
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(filepath.Ext(file.Filename))
	}

	upload := domain.ImageUpload{
		MimeType:     contentType,
		OriginalName: file.Filename,
		Size:         file.Size,
	}

	if err := domain.ValidateImageHeader(contentType, file.Size, h.maxUploadSize); err != nil {
		h.respondUploadError(c, err)
		return
	}

	f, err := file.Open()
	if err != nil {
		h.log.Error("Failed to open file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to upload image"})
		return
	}
	defer f.Close()

	upload.Data, err = io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		h.log.Error("Failed to read file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to upload image"})
		return
	}

	res, err := h.service.UpdateProfileImage(c.Request.Context(), upload)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}

	body := gin.H{
		"success":  true,
		"imageUrl": res.ImageURL,
		"message":  "Image uploaded successfully",
	}
	if res.Degraded {
		body["note"] = degradedNote
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) respondUploadError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ve.Msg})
		return
	}
	if domain.IsImageProcessing(err) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid image file"})
		return
	}

	h.log.Error("Failed to upload image", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to upload image"})
}

// ServeImage streams a stored profile image.
func (h *Handler) ServeImage(c *gin.Context) {
	rc, err := h.images.Open(c.Request.Context(), c.Param("file"))
	if err != nil {
		if errors.Is(err, domain.ErrImageNotFound) || errors.Is(err, domain.ErrInvalidImageName) {
			c.Status(http.StatusNotFound)
			return
		}
		h.log.Error("Failed to open image", zap.String("file", c.Param("file")), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, domain.MimeJPEG, rc, map[string]string{
		"Cache-Control": "public, max-age=86400",
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "ok"})
}

func (h *Handler) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "API not found"})
}

// Recover answers panics with the JSON 500 body.
func (h *Handler) Recover(c *gin.Context, recovered any) {
	h.log.Error("Recovered from panic",
		zap.Any("panic", recovered),
		zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Server internal error"})
}
