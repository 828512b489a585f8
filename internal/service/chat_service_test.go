package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
)

// newTestChatService builds a chat service with unconfigured providers so
// every reply comes from the mock path.
func newTestChatService(t *testing.T) (*ChatService, *MemorySessionRegistry, *store.JobStore) {
	t.Helper()
	jobStore, err := store.NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}
	registry := NewMemorySessionRegistry()
	gemini := client.NewGeminiClient(&config.GeminiConfig{})
	groq := client.NewGroqClient(&config.GroqConfig{})
	svc := NewChatService(registry, gemini, groq, jobStore, model.ProviderGemini)
	return svc, registry, jobStore
}

func TestProviderForModel(t *testing.T) {
	cases := []struct {
		modelID string
		want    model.ProviderTag
	}{
		{"gemini-2.5-flash", model.ProviderGemini},
		{"Gemini-1.5-Pro", model.ProviderGemini},
		{"  gemini-2.0  ", model.ProviderGemini},
		{"llama-3.3-70b-versatile", model.ProviderGroq},
		{"mixtral-8x7b", model.ProviderGroq},
		{"", model.ProviderGroq},
	}
	for _, tc := range cases {
		if got := providerForModel(tc.modelID); got != tc.want {
			t.Errorf("providerForModel(%q) = %s, want %s", tc.modelID, got, tc.want)
		}
	}
}

func TestStartSessionRegistersHistory(t *testing.T) {
	svc, registry, _ := newTestChatService(t)

	session, advice, err := svc.StartSession(context.Background(), &StartSessionInput{
		JobID:       "job1",
		Prompt:      "How does the low end sound?",
		ModelID:     "gemini-2.5-flash",
		Mode:        model.ModeEngineer,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a generated session id")
	}
	if session.Provider != model.ProviderGemini {
		t.Errorf("provider = %s, want %s", session.Provider, model.ProviderGemini)
	}
	if advice == "" {
		t.Fatal("expected non-empty advice")
	}

	stored, err := registry.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(stored.History))
	}
	if stored.History[0].Role != model.RoleUser || stored.History[1].Role != model.RoleAssistant {
		t.Errorf("history roles = %s/%s, want user/assistant", stored.History[0].Role, stored.History[1].Role)
	}
	if stored.History[1].Content != advice {
		t.Error("stored assistant turn does not match returned advice")
	}
}

func TestStartSessionModeSelectsPersona(t *testing.T) {
	svc, _, _ := newTestChatService(t)

	_, engineer, err := svc.StartSession(context.Background(), &StartSessionInput{
		Prompt:  "thoughts?",
		ModelID: "gemini-2.5-flash",
		Mode:    model.ModeEngineer,
	})
	if err != nil {
		t.Fatalf("StartSession engineer: %v", err)
	}
	_, producer, err := svc.StartSession(context.Background(), &StartSessionInput{
		Prompt:  "thoughts?",
		ModelID: "gemini-2.5-flash",
		Mode:    model.ModeProducer,
	})
	if err != nil {
		t.Fatalf("StartSession producer: %v", err)
	}
	if engineer == producer {
		t.Error("expected engineer and producer advice to differ")
	}
	if !strings.Contains(producer, "counter-melody") {
		t.Errorf("producer advice missing arrangement language: %q", producer)
	}
}

func TestFollowUpAppendsHistoryAndAdvice(t *testing.T) {
	svc, registry, jobStore := newTestChatService(t)

	jobID, err := jobStore.CreateNamespace("chatjob")
	if err != nil {
		t.Fatalf("CreateNamespace: %v", err)
	}
	if err := jobStore.SaveAnalysis(jobID, "Initial advice."); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	session, _, err := svc.StartSession(context.Background(), &StartSessionInput{
		JobID:   jobID,
		Prompt:  "What about the snare?",
		ModelID: "gemini-2.5-flash",
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	reply, err := svc.FollowUp(context.Background(), &model.ChatRequest{
		SessionID: session.ID,
		Message:   "And the hats?",
	})
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if reply == "" {
		t.Fatal("expected non-empty reply")
	}

	stored, err := registry.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(stored.History))
	}
	if stored.History[2].Content != "And the hats?" {
		t.Errorf("third turn = %q, want the follow-up question", stored.History[2].Content)
	}

	advice, err := jobStore.ReadAnalysis(jobID)
	if err != nil {
		t.Fatalf("ReadAnalysis: %v", err)
	}
	if !strings.Contains(advice, "Initial advice.") {
		t.Error("original advice missing from record")
	}
	if !strings.Contains(advice, "And the hats?") || !strings.Contains(advice, reply) {
		t.Error("follow-up exchange missing from advice record")
	}
}

func TestFollowUpUnknownSessionFallsBack(t *testing.T) {
	svc, registry, _ := newTestChatService(t)

	reply, err := svc.FollowUp(context.Background(), &model.ChatRequest{
		SessionID: "stale-session-id",
		Message:   "Are you still there?",
	})
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a reply from the default provider")
	}

	// the recovered session is registered so the next follow-up has context
	stored, err := registry.Get(context.Background(), "stale-session-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Provider != model.ProviderGemini {
		t.Errorf("provider = %s, want default %s", stored.Provider, model.ProviderGemini)
	}
	if len(stored.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(stored.History))
	}
}

func TestUnknownDefaultProviderNormalized(t *testing.T) {
	jobStore, err := store.NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJobStore: %v", err)
	}
	registry := NewMemorySessionRegistry()
	gemini := client.NewGeminiClient(&config.GeminiConfig{})
	groq := client.NewGroqClient(&config.GroqConfig{})
	svc := NewChatService(registry, gemini, groq, jobStore, model.ProviderTag("banana"))

	if _, err := svc.FollowUp(context.Background(), &model.ChatRequest{
		SessionID: "missing",
		Message:   "hello",
	}); err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	stored, err := registry.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Provider != model.ProviderGemini {
		t.Errorf("provider = %s, want normalized default %s", stored.Provider, model.ProviderGemini)
	}
}

func TestMemoryRegistryCopiesHistory(t *testing.T) {
	registry := NewMemorySessionRegistry()
	session := &model.Session{
		ID:       "s1",
		Provider: model.ProviderGroq,
		History: []model.ChatTurn{
			{Role: model.RoleUser, Content: "hi"},
		},
	}
	if err := registry.Save(context.Background(), session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, err := registry.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first.History = append(first.History, model.ChatTurn{Role: model.RoleAssistant, Content: "mutated"})

	second, err := registry.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(second.History) != 1 {
		t.Fatalf("stored history length = %d, want 1 after caller mutation", len(second.History))
	}
}

func TestMemoryRegistryUnknownSession(t *testing.T) {
	registry := NewMemorySessionRegistry()
	if _, err := registry.Get(context.Background(), "nope"); err != ErrSessionNotFound {
		t.Fatalf("Get error = %v, want ErrSessionNotFound", err)
	}
}
