package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stemforge/api/internal/config"
)

// GeminiClient handles communication with the Google Gemini API
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// GeminiChatInput is one stateless generate call: prior text turns plus the
// current user message. Binary attachments ride on the current turn only.
type GeminiChatInput struct {
	Model          string // empty uses the configured default
	System         string
	History        []ChatMessage
	Message        string
	AudioWav       []byte
	SpectrogramPNG []byte
	Temperature    float64
	ThinkingBudget int
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerationConfig struct {
	Temperature    float64               `json:"temperature,omitempty"`
	ThinkingConfig *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(cfg *config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// GenerateChat replays the conversation and returns the model's next reply.
func (c *GeminiClient) GenerateChat(ctx context.Context, in *GeminiChatInput) (string, error) {
	contents := make([]geminiContent, 0, len(in.History)+1)
	for _, turn := range in.History {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Content}}})
	}

	parts := make([]geminiPart, 0, 3)
	if len(in.AudioWav) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "audio/wav",
			Data:     base64.StdEncoding.EncodeToString(in.AudioWav),
		}})
	}
	if len(in.SpectrogramPNG) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(in.SpectrogramPNG),
		}})
	}
	parts = append(parts, geminiPart{Text: in.Message})
	contents = append(contents, geminiContent{Role: "user", Parts: parts})

	genConfig := &geminiGenerationConfig{Temperature: in.Temperature}
	if in.ThinkingBudget > 0 {
		genConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: in.ThinkingBudget}
	}

	reqBody := geminiGenerateRequest{
		Contents:         contents,
		GenerationConfig: genConfig,
	}
	if in.System != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: in.System}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	modelID := in.Model
	if modelID == "" {
		modelID = c.model
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, modelID, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var genResp geminiGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}
