package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/config"
	"github.com/mediatrack-api/internal/models"
	"github.com/mediatrack-api/internal/ratelimit"
	"github.com/mediatrack-api/internal/service"
	"github.com/mediatrack-api/internal/validation"
)

// ImportHandler handles import endpoints
type ImportHandler struct {
	services *service.Services
	limiter  *ratelimit.Limiter
	cfg      *config.Config
	log      zerolog.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(services *service.Services, limiter *ratelimit.Limiter, cfg *config.Config, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services: services,
		limiter:  limiter,
		cfg:      cfg,
		log:      log.With().Str("handler", "import").Logger(),
	}
}

// CreateImport handles POST /v1/imports (multipart CSV upload)
func (h *ImportHandler) CreateImport(c *gin.Context) {
	identity := identityFrom(c)

	if !h.limiter.Allow(identity.UserID, ratelimit.ActionUpload) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "upload rate limit exceeded",
			"code":  "RateLimited",
		})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required", "code": "MalformedRequest"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are accepted", "code": "UnrecognizedFormat"})
		return
	}

	// Declared size is checked before any read so an oversize body never
	// gets buffered
	if header.Size > h.cfg.Import.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file too large",
			"code":  string(validation.CodeFileTooLarge),
		})
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, h.cfg.Import.MaxFileSize+1))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	job, err := h.services.Import.CreateImportJob(c.Request.Context(), identity.UserID, header.Filename, content)
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.UploadResponse{
		JobID:         job.ID,
		Status:        job.Status,
		EstimatedRows: job.TotalRows,
		Message:       "CSV upload accepted for processing",
	})
}

func (h *ImportHandler) writeCreateError(c *gin.Context, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "code": string(verr.Code)})
	case errors.Is(err, service.ErrDuplicateFile):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "DuplicateFile"})
	default:
		h.log.Error().Err(err).Msg("Failed to create import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create import job"})
	}
}

// GetImportStatus handles GET /v1/imports/:job_id
func (h *ImportHandler) GetImportStatus(c *gin.Context) {
	identity := identityFrom(c)

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id", "code": "MalformedRequest"})
		return
	}

	resp, err := h.services.Job.GetJob(c.Request.Context(), jobID, identity.UserID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "import job not found"})
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job status"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelImport handles DELETE /v1/imports/:job_id
func (h *ImportHandler) CancelImport(c *gin.Context) {
	identity := identityFrom(c)

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id", "code": "MalformedRequest"})
		return
	}

	err = h.services.Job.CancelJob(c.Request.Context(), jobID, identity.UserID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "import job not found"})
	case errors.Is(err, service.ErrJobTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished", "code": "JobTerminal"})
	default:
		h.log.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to cancel job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
	}
}

// GetHistory handles GET /v1/imports
func (h *ImportHandler) GetHistory(c *gin.Context) {
	identity := identityFrom(c)

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	resp, err := h.services.Job.GetHistory(c.Request.Context(), identity.UserID, page, pageSize)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get import history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get import history"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ManualAdd handles POST /v1/imports/manual
func (h *ImportHandler) ManualAdd(c *gin.Context) {
	identity := identityFrom(c)

	if !h.limiter.Allow(identity.UserID, ratelimit.ActionManual) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "manual addition rate limit exceeded",
			"code":  "RateLimited",
		})
		return
	}

	var req models.ManualAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "MalformedRequest"})
		return
	}

	resp, err := h.services.Import.ManualAdd(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "MalformedRequest"})
			return
		}
		h.log.Error().Err(err).Msg("Failed to record manual addition")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record manual addition"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
