package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/service"
	"github.com/stemforge/api/pkg/response"
)

const defaultTemperature = 0.2

type AnalysisHandler struct {
	service   *service.AnalysisService
	chat      *service.ChatService
	validator *validator.Validate
	dev       bool
}

func NewAnalysisHandler(svc *service.AnalysisService, chat *service.ChatService, v *validator.Validate, dev bool) *AnalysisHandler {
	return &AnalysisHandler{
		service:   svc,
		chat:      chat,
		validator: v,
		dev:       dev,
	}
}

// Spectrogram handles POST /api/spectrogram
// @Summary      Render region spectrogram
// @Description  Render a spectrogram preview for a region of the uploaded audio
// @Tags         Analysis
// @Accept       multipart/form-data
// @Produce      json
// @Param        file     formData file   true "Audio file (WAV)"
// @Param        startSec formData number true "Region start in seconds"
// @Param        endSec   formData number true "Region end in seconds"
// @Success      200 {object} model.SpectrogramResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/spectrogram [post]
func (h *AnalysisHandler) Spectrogram(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Audio file is required", nil)
	}

	req := model.SpectrogramRequest{}
	if req.StartSec, err = formFloat(c, "startSec", 0); err != nil {
		return response.ValidationError(c, "startSec must be a number", nil)
	}
	if req.EndSec, err = formFloat(c, "endSec", 0); err != nil {
		return response.ValidationError(c, "endSec must be a number", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Spectrogram(c.Context(), f, &req)
	if err != nil {
		return respondServiceError(c, err, h.dev)
	}

	return response.OK(c, result)
}

// Analyze handles POST /api/analyze
// @Summary      Analyze audio region
// @Description  Render a spectrogram for the region, open an AI analysis session and return the opening advice
// @Tags         Analysis
// @Accept       multipart/form-data
// @Produce      json
// @Param        file           formData file   true  "Audio file (WAV)"
// @Param        startSec       formData number true  "Region start in seconds"
// @Param        endSec         formData number true  "Region end in seconds"
// @Param        prompt         formData string true  "Question about the region"
// @Param        modelId        formData string true  "Chat model id; gemini* routes to Gemini, anything else to Groq"
// @Param        mode           formData string false "Persona (engineer or producer)"
// @Param        temperature    formData number false "Sampling temperature (default 0.2)"
// @Param        thinkingBudget formData int    false "Gemini thinking budget in tokens"
// @Param        jobId          formData string false "Job to attach the advice to"
// @Success      200 {object} model.AnalyzeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/analyze [post]
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Audio file is required", nil)
	}

	req := model.AnalyzeRequest{
		Prompt:  c.FormValue("prompt"),
		ModelID: c.FormValue("modelId"),
		Mode:    model.ChatMode(c.FormValue("mode")),
		JobID:   c.FormValue("jobId"),
	}
	if req.StartSec, err = formFloat(c, "startSec", 0); err != nil {
		return response.ValidationError(c, "startSec must be a number", nil)
	}
	if req.EndSec, err = formFloat(c, "endSec", 0); err != nil {
		return response.ValidationError(c, "endSec must be a number", nil)
	}
	if req.Temperature, err = formFloat(c, "temperature", defaultTemperature); err != nil {
		return response.ValidationError(c, "temperature must be a number", nil)
	}
	if req.ThinkingBudget, err = formInt(c, "thinkingBudget", 0); err != nil {
		return response.ValidationError(c, "thinkingBudget must be an integer", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Analyze(c.Context(), f, &req)
	if err != nil {
		return respondServiceError(c, err, h.dev)
	}

	return response.OK(c, result)
}

// Chat handles POST /api/chat
// @Summary      Continue analysis session
// @Description  Send a follow-up message to an existing analysis session
// @Tags         Analysis
// @Accept       json
// @Produce      json
// @Param        request body model.ChatRequest true "Follow-up message"
// @Success      200 {object} model.ChatResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/chat [post]
func (h *AnalysisHandler) Chat(c *fiber.Ctx) error {
	var req model.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	reply, err := h.chat.FollowUp(c.Context(), &req)
	if err != nil {
		return respondServiceError(c, err, h.dev)
	}

	return response.OK(c, model.ChatResponse{Reply: reply})
}

// formFloat parses an optional numeric form field, returning def when the
// field is absent.
func formFloat(c *fiber.Ctx, key string, def float64) (float64, error) {
	raw := c.FormValue(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func formInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.FormValue(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
