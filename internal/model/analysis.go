package model

import "time"

// ChatMode selects the system prompt persona for an analysis session.
type ChatMode string

const (
	ModeEngineer ChatMode = "engineer"
	ModeProducer ChatMode = "producer"
)

// ProviderTag identifies which chat backend owns a session.
type ProviderTag string

const (
	ProviderGemini ProviderTag = "gemini"
	ProviderGroq   ProviderTag = "groq"
)

// Chat turn roles, provider neutral. Each transport maps them to its own
// wire vocabulary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one text exchange in a session's conversation history.
// Binary context (audio, spectrogram) is sent only on the opening turn and
// is not replayed.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session ties a chat session to the provider that started it and,
// optionally, to the job whose audio it discusses. The record carries the
// full conversation so follow-ups can replay it against a stateless
// completion API, and so a Redis-backed registry survives restarts.
type Session struct {
	ID             string      `json:"id"`
	Provider       ProviderTag `json:"provider"`
	JobID          string      `json:"jobId,omitempty"`
	ModelID        string      `json:"modelId"`
	Mode           ChatMode    `json:"mode"`
	Temperature    float64     `json:"temperature"`
	ThinkingBudget int         `json:"thinkingBudget"`
	History        []ChatTurn  `json:"history"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// SpectrogramRequest carries the region selection of a preview request.
type SpectrogramRequest struct {
	StartSec float64 `validate:"gte=0"`
	EndSec   float64 `validate:"gtfield=StartSec"`
}

// SpectrogramResponse returns the rendered preview image.
type SpectrogramResponse struct {
	SpectrogramPngBase64 string `json:"spectrogramPngBase64"`
}

// AnalyzeRequest carries the non-file multipart fields of an analysis
// request.
type AnalyzeRequest struct {
	StartSec       float64  `validate:"gte=0"`
	EndSec         float64  `validate:"gtfield=StartSec"`
	Prompt         string   `validate:"required"`
	ModelID        string   `validate:"required"`
	Mode           ChatMode `validate:"omitempty,oneof=engineer producer"`
	Temperature    float64  `validate:"gte=0,lte=2"`
	ThinkingBudget int      `validate:"gte=0"`
	JobID          string   `validate:"omitempty,max=64"`
}

// AnalyzeResponse returns the opening advice of a new chat session.
type AnalyzeResponse struct {
	SessionID            string `json:"sessionId"`
	JobID                string `json:"jobId"`
	Advice               string `json:"advice"`
	SpectrogramPngBase64 string `json:"spectrogramPngBase64"`
}

// ChatRequest is a follow-up message to an existing session. Accepted as
// JSON or form encoded.
type ChatRequest struct {
	SessionID string `json:"sessionId" form:"sessionId" validate:"required"`
	Message   string `json:"message" form:"message" validate:"required"`
	JobID     string `json:"jobId" form:"jobId" validate:"omitempty,max=64"`
}

// ChatResponse returns the provider's reply to a follow-up.
type ChatResponse struct {
	Reply string `json:"reply"`
}
