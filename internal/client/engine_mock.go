package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MockEngine is the local fallback used when no engine sidecar is
// configured. It performs real file operations so the whole pipeline,
// including stem-layout normalization and artifact scanning, runs
// end-to-end without the Python service.
type MockEngine struct{}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Minimal valid placeholder payloads.
var (
	placeholderWav = []byte("RIFF$\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00data\x00\x00\x00\x00")

	placeholderMidi = []byte("MThd\x00\x00\x00\x06\x00\x00\x00\x01\x00\x60MTrk\x00\x00\x00\x04\x00\xff\x2f\x00")

	// 1x1 transparent PNG.
	placeholderPng = []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
		0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
		0x42, 0x60, 0x82,
	}
)

var coarseStemNames = []string{"vocals.wav", "drums.wav", "bass.wav", "other.wav"}

// Separate writes placeholder coarse stems in the model's native layout:
// demucs nests them under htdemucs/<input-base>/, umx writes them flat
// into the output dir.
func (m *MockEngine) Separate(ctx context.Context, model, inputPath, outputDir string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file missing: %w", err)
	}

	dir := outputDir
	if model == "demucs" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		dir = filepath.Join(outputDir, "htdemucs", base)
	} else if model != "umx" {
		return fmt.Errorf("unknown separation model %q", model)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create separation output dir: %w", err)
	}
	for _, name := range coarseStemNames {
		if err := os.WriteFile(filepath.Join(dir, name), placeholderWav, 0o644); err != nil {
			return fmt.Errorf("write stem %s: %w", name, err)
		}
	}
	return nil
}

// SplitStem writes one placeholder part file per requested name.
func (m *MockEngine) SplitStem(ctx context.Context, inputPath, outputDir string, parts []string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("stem missing: %w", err)
	}
	for _, name := range parts {
		if err := os.WriteFile(filepath.Join(outputDir, name), placeholderWav, 0o644); err != nil {
			return fmt.Errorf("write part %s: %w", name, err)
		}
	}
	return nil
}

// Transcribe writes a placeholder MIDI file for an existing stem.
func (m *MockEngine) Transcribe(ctx context.Context, stemPath, midiPath string) error {
	if _, err := os.Stat(stemPath); err != nil {
		return fmt.Errorf("stem missing: %w", err)
	}
	if err := os.WriteFile(midiPath, placeholderMidi, 0o644); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// SummarizeMidi returns a deterministic summary for an existing MIDI file.
func (m *MockEngine) SummarizeMidi(ctx context.Context, midiPath string) (string, error) {
	if _, err := os.Stat(midiPath); err != nil {
		return "", fmt.Errorf("midi missing: %w", err)
	}
	return fmt.Sprintf("%s: 1 track, 120 BPM, 4/4, 8 bars, notes C3-C5", filepath.Base(midiPath)), nil
}

// WriteProject writes a minimal REAPER project referencing the artifacts.
func (m *MockEngine) WriteProject(ctx context.Context, jobID string, stems, midi []string, outputPath string) error {
	var b strings.Builder
	b.WriteString("<REAPER_PROJECT 0.1 \"7.0\"\n")
	fmt.Fprintf(&b, "  NOTES \"StemForge job %s\"\n", jobID)
	for _, name := range stems {
		fmt.Fprintf(&b, "  <TRACK\n    NAME \"%s\"\n    <ITEM\n      <SOURCE WAVE\n        FILE \"stems/%s\"\n      >\n    >\n  >\n", strings.TrimSuffix(name, filepath.Ext(name)), name)
	}
	for _, name := range midi {
		fmt.Fprintf(&b, "  <TRACK\n    NAME \"%s\"\n    <ITEM\n      <SOURCE MIDI\n        FILE \"midi/%s\"\n      >\n    >\n  >\n", strings.TrimSuffix(name, filepath.Ext(name)), name)
	}
	b.WriteString(">\n")
	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}

// Trim copies the input bytes to the output path, ignoring the region.
func (m *MockEngine) Trim(ctx context.Context, inputPath, outputPath string, startSec, endSec float64) error {
	src, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()
	dst, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create trimmed file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy region: %w", err)
	}
	return nil
}

// RenderSpectrogram returns a placeholder PNG.
func (m *MockEngine) RenderSpectrogram(ctx context.Context, inputPath string) ([]byte, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("input file missing: %w", err)
	}
	return placeholderPng, nil
}

// HealthCheck always succeeds.
func (m *MockEngine) HealthCheck(ctx context.Context) error {
	return nil
}
