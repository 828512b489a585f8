package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
)

// AudioPreviewer covers the engine operations the analysis flow needs.
type AudioPreviewer interface {
	Trim(ctx context.Context, inputPath, outputPath string, startSec, endSec float64) error
	RenderSpectrogram(ctx context.Context, inputPath string) ([]byte, error)
}

// AnalysisService implements the region analysis flow: trim the selected
// region, render its spectrogram, open a provider chat session and persist
// the advice when the request names a job.
type AnalysisService struct {
	engine   AudioPreviewer
	chat     *ChatService
	jobStore *store.JobStore
}

func NewAnalysisService(engine AudioPreviewer, chat *ChatService, jobStore *store.JobStore) *AnalysisService {
	return &AnalysisService{
		engine:   engine,
		chat:     chat,
		jobStore: jobStore,
	}
}

// Spectrogram renders a preview image for the selected region. Stateless:
// nothing is persisted and no provider is involved.
func (s *AnalysisService) Spectrogram(ctx context.Context, audio io.Reader, req *model.SpectrogramRequest) (*model.SpectrogramResponse, error) {
	trimmedPath, cleanup, err := s.trimRegion(ctx, audio, req.StartSec, req.EndSec)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	png, err := s.engine.RenderSpectrogram(ctx, trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("spectrogram failed: %w", err)
	}
	return &model.SpectrogramResponse{
		SpectrogramPngBase64: base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Analyze opens an analysis session over the selected region and returns
// the opening advice together with the preview image.
func (s *AnalysisService) Analyze(ctx context.Context, audio io.Reader, req *model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
	trimmedPath, cleanup, err := s.trimRegion(ctx, audio, req.StartSec, req.EndSec)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	png, err := s.engine.RenderSpectrogram(ctx, trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("spectrogram failed: %w", err)
	}
	wav, err := os.ReadFile(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read trimmed region: %w", err)
	}

	jobID := req.JobID
	if jobID != "" {
		// advice needs a namespace to live in
		if jobID, err = s.jobStore.CreateNamespace(jobID); err != nil {
			return nil, err
		}
	}

	session, advice, err := s.chat.StartSession(ctx, &StartSessionInput{
		JobID:          jobID,
		Prompt:         req.Prompt,
		ModelID:        req.ModelID,
		Mode:           req.Mode,
		Temperature:    req.Temperature,
		ThinkingBudget: req.ThinkingBudget,
		AudioWav:       wav,
		SpectrogramPNG: png,
	})
	if err != nil {
		return nil, err
	}

	if jobID != "" {
		if err := s.jobStore.SaveAnalysis(jobID, advice); err != nil {
			return nil, fmt.Errorf("failed to save analysis: %w", err)
		}
	}

	return &model.AnalyzeResponse{
		SessionID:            session.ID,
		JobID:                jobID,
		Advice:               advice,
		SpectrogramPngBase64: base64.StdEncoding.EncodeToString(png),
	}, nil
}

// trimRegion lands the upload in the shared scratch area and cuts the
// selected region. The cleanup func removes both files.
func (s *AnalysisService) trimRegion(ctx context.Context, audio io.Reader, startSec, endSec float64) (string, func(), error) {
	originalPath, err := s.saveScratch(audio)
	if err != nil {
		return "", nil, err
	}
	trimmedPath, err := s.jobStore.ScratchPath(".wav")
	if err != nil {
		os.Remove(originalPath)
		return "", nil, err
	}
	cleanup := func() {
		os.Remove(originalPath)
		os.Remove(trimmedPath)
	}
	if err := s.engine.Trim(ctx, originalPath, trimmedPath, startSec, endSec); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("trim failed: %w", err)
	}
	return trimmedPath, cleanup, nil
}

func (s *AnalysisService) saveScratch(audio io.Reader) (string, error) {
	path, err := s.jobStore.ScratchPath(".wav")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, audio); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}
