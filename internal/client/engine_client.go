package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stemforge/api/internal/config"
)

// EngineClient talks to the Python DSP engine sidecar. The engine mounts the
// same jobs volume as this service, so requests and responses carry
// filesystem paths instead of payload bytes.
type EngineClient struct {
	httpClient *http.Client
	baseURL    string
}

// SeparateRequest asks the engine to run a separation model against an input
// file. The engine writes stems into OutputDir in the model's native layout.
type SeparateRequest struct {
	InputPath string `json:"input_path"`
	OutputDir string `json:"output_dir"`
	Model     string `json:"model"`
}

// SeparateResponse reports the files the engine wrote, relative to OutputDir.
type SeparateResponse struct {
	Model string   `json:"model"`
	Files []string `json:"files"`
}

// SplitRequest asks the engine to split one coarse stem into named parts.
type SplitRequest struct {
	InputPath string   `json:"input_path"`
	OutputDir string   `json:"output_dir"`
	Parts     []string `json:"parts"`
}

// SplitResponse reports the part files written into OutputDir.
type SplitResponse struct {
	Files []string `json:"files"`
}

// TranscribeRequest asks the engine to extract MIDI from a stem.
type TranscribeRequest struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
}

// TranscribeResponse acknowledges the written MIDI file.
type TranscribeResponse struct {
	File string `json:"file"`
}

// SummarizeRequest asks the engine for a text summary of a MIDI file.
type SummarizeRequest struct {
	MidiPath string `json:"midi_path"`
}

// SummarizeResponse carries the summary text.
type SummarizeResponse struct {
	Summary string `json:"summary"`
}

// ProjectRequest asks the engine to emit a DAW project file referencing the
// final stems and MIDI files of a job.
type ProjectRequest struct {
	JobID      string   `json:"job_id"`
	Stems      []string `json:"stems"`
	Midi       []string `json:"midi"`
	OutputPath string   `json:"output_path"`
}

// ProjectResponse acknowledges the written project file.
type ProjectResponse struct {
	File string `json:"file"`
}

// TrimRequest asks the engine to cut a region out of an audio file.
type TrimRequest struct {
	InputPath  string  `json:"input_path"`
	OutputPath string  `json:"output_path"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
}

// TrimResponse acknowledges the written region file.
type TrimResponse struct {
	File string `json:"file"`
}

// SpectrogramRequest asks the engine for a Mel spectrogram preview.
type SpectrogramRequest struct {
	InputPath string `json:"input_path"`
}

// SpectrogramResponse carries the rendered PNG, base64 encoded.
type SpectrogramResponse struct {
	PngBase64 string `json:"png_base64"`
}

// NewEngineClient creates a client for the DSP engine sidecar.
func NewEngineClient(cfg *config.EngineConfig) *EngineClient {
	return &EngineClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Separate runs a separation model over the input file.
func (c *EngineClient) Separate(ctx context.Context, model, inputPath, outputDir string) error {
	var result SeparateResponse
	return c.post(ctx, "/separate", &SeparateRequest{
		InputPath: inputPath,
		OutputDir: outputDir,
		Model:     model,
	}, &result)
}

// SplitStem splits a coarse stem into the named part files.
func (c *EngineClient) SplitStem(ctx context.Context, inputPath, outputDir string, parts []string) error {
	var result SplitResponse
	return c.post(ctx, "/split", &SplitRequest{
		InputPath: inputPath,
		OutputDir: outputDir,
		Parts:     parts,
	}, &result)
}

// Transcribe extracts MIDI from a stem into outputPath.
func (c *EngineClient) Transcribe(ctx context.Context, stemPath, midiPath string) error {
	var result TranscribeResponse
	return c.post(ctx, "/transcribe", &TranscribeRequest{
		InputPath:  stemPath,
		OutputPath: midiPath,
	}, &result)
}

// SummarizeMidi returns a structured text summary of a MIDI file.
func (c *EngineClient) SummarizeMidi(ctx context.Context, midiPath string) (string, error) {
	var result SummarizeResponse
	if err := c.post(ctx, "/summarize", &SummarizeRequest{MidiPath: midiPath}, &result); err != nil {
		return "", err
	}
	return result.Summary, nil
}

// WriteProject emits a REAPER project file for the job's final artifacts.
func (c *EngineClient) WriteProject(ctx context.Context, jobID string, stems, midi []string, outputPath string) error {
	var result ProjectResponse
	return c.post(ctx, "/project", &ProjectRequest{
		JobID:      jobID,
		Stems:      stems,
		Midi:       midi,
		OutputPath: outputPath,
	}, &result)
}

// Trim cuts the [startSec, endSec] region out of the input file.
func (c *EngineClient) Trim(ctx context.Context, inputPath, outputPath string, startSec, endSec float64) error {
	var result TrimResponse
	return c.post(ctx, "/trim", &TrimRequest{
		InputPath:  inputPath,
		OutputPath: outputPath,
		StartSec:   startSec,
		EndSec:     endSec,
	}, &result)
}

// RenderSpectrogram returns a Mel spectrogram PNG for the input file.
func (c *EngineClient) RenderSpectrogram(ctx context.Context, inputPath string) ([]byte, error) {
	var result SpectrogramResponse
	if err := c.post(ctx, "/spectrogram", &SpectrogramRequest{InputPath: inputPath}, &result); err != nil {
		return nil, err
	}
	png, err := base64.StdEncoding.DecodeString(result.PngBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode spectrogram: %w", err)
	}
	return png, nil
}

// HealthCheck checks if the engine sidecar is available.
func (c *EngineClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *EngineClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *EngineClient) IsConfigured() bool {
	return c.baseURL != ""
}
