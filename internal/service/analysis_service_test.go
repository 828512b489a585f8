package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
)

func newAnalysisService(t *testing.T) (*AnalysisService, *ChatService, *store.JobStore, string) {
	t.Helper()
	baseDir := t.TempDir()
	jobStore, err := store.NewJobStore(baseDir)
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}
	gemini := client.NewGeminiClient(&config.GeminiConfig{})
	groq := client.NewGroqClient(&config.GroqConfig{})
	chat := NewChatService(NewMemorySessionRegistry(), gemini, groq, jobStore, model.ProviderGemini)
	svc := NewAnalysisService(client.NewMockEngine(), chat, jobStore)
	return svc, chat, jobStore, baseDir
}

func scratchEntries(t *testing.T, baseDir string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(baseDir, ".tmp"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("reading scratch dir: %v", err)
	}
	return len(entries)
}

func TestSpectrogramRendersRegion(t *testing.T) {
	svc, _, _, baseDir := newAnalysisService(t)

	resp, err := svc.Spectrogram(context.Background(), strings.NewReader("RIFFaudio"), &model.SpectrogramRequest{
		StartSec: 0,
		EndSec:   4,
	})
	if err != nil {
		t.Fatalf("Spectrogram: %v", err)
	}
	png, err := base64.StdEncoding.DecodeString(resp.SpectrogramPngBase64)
	if err != nil {
		t.Fatalf("response is not valid base64: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("decoded payload is not a PNG, starts with %q", png[:4])
	}
	if n := scratchEntries(t, baseDir); n != 0 {
		t.Errorf("scratch dir has %d leftover files, want 0", n)
	}
}

func TestAnalyzePersistsAdvice(t *testing.T) {
	svc, _, jobStore, baseDir := newAnalysisService(t)

	resp, err := svc.Analyze(context.Background(), strings.NewReader("RIFFaudio"), &model.AnalyzeRequest{
		StartSec: 2,
		EndSec:   10,
		Prompt:   "What should I fix in this section?",
		ModelID:  "gemini-2.5-flash",
		JobID:    "an1",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if resp.JobID != "an1" {
		t.Errorf("job id = %q, want an1", resp.JobID)
	}
	if resp.Advice == "" {
		t.Fatal("expected non-empty advice")
	}
	if resp.SpectrogramPngBase64 == "" {
		t.Fatal("expected a spectrogram preview")
	}

	advice, err := jobStore.ReadAnalysis("an1")
	if err != nil {
		t.Fatalf("ReadAnalysis: %v", err)
	}
	if advice != resp.Advice {
		t.Error("persisted advice does not match response")
	}
	if n := scratchEntries(t, baseDir); n != 0 {
		t.Errorf("scratch dir has %d leftover files, want 0", n)
	}
}

func TestAnalyzeWithoutJobIsStateless(t *testing.T) {
	svc, _, jobStore, _ := newAnalysisService(t)

	resp, err := svc.Analyze(context.Background(), strings.NewReader("RIFFaudio"), &model.AnalyzeRequest{
		StartSec: 0,
		EndSec:   5,
		Prompt:   "quick look",
		ModelID:  "llama-3.3-70b-versatile",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.JobID != "" {
		t.Errorf("job id = %q, want empty", resp.JobID)
	}
	if _, err := jobStore.ReadAnalysis(resp.SessionID); err == nil {
		t.Error("no advice should be persisted without a job id")
	}
}

func TestAnalyzeThenFollowUp(t *testing.T) {
	svc, chat, jobStore, _ := newAnalysisService(t)

	resp, err := svc.Analyze(context.Background(), strings.NewReader("RIFFaudio"), &model.AnalyzeRequest{
		StartSec: 0,
		EndSec:   8,
		Prompt:   "How is the balance?",
		ModelID:  "gemini-2.5-flash",
		JobID:    "an2",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	reply, err := chat.FollowUp(context.Background(), &model.ChatRequest{
		SessionID: resp.SessionID,
		Message:   "And after the drop?",
	})
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a follow-up reply")
	}

	advice, err := jobStore.ReadAnalysis("an2")
	if err != nil {
		t.Fatalf("ReadAnalysis: %v", err)
	}
	if !strings.Contains(advice, "And after the drop?") {
		t.Error("advice record missing follow-up exchange")
	}
}
