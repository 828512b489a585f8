package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/service"
	"github.com/stemforge/api/pkg/response"
)

const maxUploadSize = 100 * 1024 * 1024 // 100MB

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
	dev       bool
}

func NewJobHandler(svc *service.JobService, v *validator.Validate, dev bool) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
		dev:       dev,
	}
}

// Submit handles POST /api/jobs
// @Summary      Submit deconstruction job
// @Description  Upload an audio file and queue the deconstruction pipeline for it
// @Tags         Jobs
// @Accept       multipart/form-data
// @Produce      json
// @Param        file            formData file   true  "Audio file (WAV; max 100MB)"
// @Param        separationModel formData string false "Separation model (demucs or umx)"
// @Param        jobId           formData string false "Job ID to reuse; resubmitting retries the job in place"
// @Success      202 {object} model.SubmitJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs [post]
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Audio file is required", nil)
	}
	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 100MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	req := model.SubmitJobRequest{
		JobID:           c.FormValue("jobId"),
		SeparationModel: c.FormValue("separationModel"),
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Submit(c.Context(), &req, f)
	if err != nil {
		return respondServiceError(c, err, h.dev)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId/status
// @Summary      Get job status
// @Description  Get the current status snapshot of a deconstruction job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Snapshot
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId}/status [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	snap, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		return respondServiceError(c, err, h.dev)
	}
	if snap.Error != nil {
		return response.JobFailed(c, snap.Message, snap)
	}

	return response.OK(c, snap)
}

// Midi handles GET /api/jobs/:jobId/midi
// @Summary      List MIDI files
// @Description  List the MIDI files transcribed for a job; unknown jobs yield an empty list
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.MidiListResponse
// @Failure      400 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId}/midi [get]
func (h *JobHandler) Midi(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	return response.OK(c, h.service.MidiFiles(c.Context(), jobID))
}

// Analysis handles GET /api/jobs/:jobId/analysis
// @Summary      Get analysis advice
// @Description  Get the persisted analysis advice of a job as plain text
// @Tags         Jobs
// @Produce      plain
// @Param        jobId path string true "Job ID"
// @Success      200 {string} string
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId}/analysis [get]
func (h *JobHandler) Analysis(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	advice, err := h.service.Analysis(c.Context(), jobID)
	if err != nil {
		return respondServiceError(c, err, h.dev)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(advice)
}
