package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/store"
)

// ProviderError wraps a chat backend failure so the HTTP boundary can map
// it to the AI error code.
type ProviderError struct {
	Provider model.ProviderTag
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StartSessionInput carries everything needed to open an analysis session.
type StartSessionInput struct {
	JobID          string
	Prompt         string
	ModelID        string
	Mode           model.ChatMode
	Temperature    float64
	ThinkingBudget int
	AudioWav       []byte
	SpectrogramPNG []byte
}

// ChatService routes analysis sessions to the provider hosting the
// requested model and keeps the conversation record in the session
// registry. Follow-up replies are appended to the job's advice record.
type ChatService struct {
	registry        SessionRegistry
	gemini          *client.GeminiClient
	groq            *client.GroqClient
	jobStore        *store.JobStore
	defaultProvider model.ProviderTag
}

func NewChatService(registry SessionRegistry, gemini *client.GeminiClient, groq *client.GroqClient, jobStore *store.JobStore, defaultProvider model.ProviderTag) *ChatService {
	if defaultProvider != model.ProviderGemini && defaultProvider != model.ProviderGroq {
		if defaultProvider != "" {
			log.Printf("Unknown default chat provider %q, using %s", defaultProvider, model.ProviderGemini)
		}
		defaultProvider = model.ProviderGemini
	}
	return &ChatService{
		registry:        registry,
		gemini:          gemini,
		groq:            groq,
		jobStore:        jobStore,
		defaultProvider: defaultProvider,
	}
}

// providerForModel maps a model id to the provider hosting it: the gemini
// family routes to Gemini, everything else to the OpenAI-compatible Groq
// transport.
func providerForModel(modelID string) model.ProviderTag {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(modelID)), "gemini") {
		return model.ProviderGemini
	}
	return model.ProviderGroq
}

// StartSession opens a session with the provider owning the requested
// model, registers it, and returns the opening advice.
func (s *ChatService) StartSession(ctx context.Context, in *StartSessionInput) (*model.Session, string, error) {
	tag := providerForModel(in.ModelID)
	mode := in.Mode
	if mode != model.ModeProducer {
		mode = model.ModeEngineer
	}

	advice, err := s.openingReply(ctx, tag, mode, in)
	if err != nil {
		return nil, "", err
	}

	session := &model.Session{
		ID:             uuid.New().String(),
		Provider:       tag,
		JobID:          in.JobID,
		ModelID:        in.ModelID,
		Mode:           mode,
		Temperature:    in.Temperature,
		ThinkingBudget: in.ThinkingBudget,
		History: []model.ChatTurn{
			{Role: model.RoleUser, Content: in.Prompt},
			{Role: model.RoleAssistant, Content: advice},
		},
		CreatedAt: time.Now(),
	}
	if err := s.registry.Save(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to register session: %w", err)
	}
	return session, advice, nil
}

// FollowUp sends a message to an existing session. A session id with no
// registry record falls back to the default provider with a fresh context
// instead of failing; the misroute is logged.
func (s *ChatService) FollowUp(ctx context.Context, req *model.ChatRequest) (string, error) {
	session, err := s.registry.Get(ctx, req.SessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return "", fmt.Errorf("failed to look up session: %w", err)
		}
		log.Printf("Session %s not found, routing to default provider %s", req.SessionID, s.defaultProvider)
		session = &model.Session{
			ID:          req.SessionID,
			Provider:    s.defaultProvider,
			JobID:       req.JobID,
			Mode:        model.ModeEngineer,
			Temperature: 0.2,
			CreatedAt:   time.Now(),
		}
	}

	reply, err := s.reply(ctx, session, req.Message)
	if err != nil {
		return "", err
	}

	session.History = append(session.History,
		model.ChatTurn{Role: model.RoleUser, Content: req.Message},
		model.ChatTurn{Role: model.RoleAssistant, Content: reply},
	)
	if err := s.registry.Save(ctx, session); err != nil {
		return "", fmt.Errorf("failed to update session: %w", err)
	}

	// keep the job's advice record current; the reply wins over a failed write
	jobID := session.JobID
	if jobID == "" {
		jobID = req.JobID
	}
	if jobID != "" {
		if err := s.jobStore.AppendAnalysis(jobID, fmt.Sprintf("User: %s\n\n%s", req.Message, reply)); err != nil {
			log.Printf("Failed to append analysis for job %s: %v", jobID, err)
		}
	}
	return reply, nil
}

func (s *ChatService) openingReply(ctx context.Context, tag model.ProviderTag, mode model.ChatMode, in *StartSessionInput) (string, error) {
	system := SystemPromptFor(mode)
	switch tag {
	case model.ProviderGemini:
		if !s.gemini.IsConfigured() {
			return mockAdvice(mode), nil
		}
		reply, err := s.gemini.GenerateChat(ctx, &client.GeminiChatInput{
			Model:          in.ModelID,
			System:         system,
			Message:        in.Prompt,
			AudioWav:       in.AudioWav,
			SpectrogramPNG: in.SpectrogramPNG,
			Temperature:    in.Temperature,
			ThinkingBudget: in.ThinkingBudget,
		})
		if err != nil {
			return "", &ProviderError{Provider: tag, Err: err}
		}
		return reply, nil
	default:
		if !s.groq.IsConfigured() {
			return mockAdvice(mode), nil
		}
		messages := []client.ChatMessage{
			{Role: "system", Content: system},
			{Role: model.RoleUser, Content: in.Prompt},
		}
		reply, err := s.groq.ChatCompletion(ctx, in.ModelID, messages, in.Temperature)
		if err != nil {
			return "", &ProviderError{Provider: tag, Err: err}
		}
		return reply, nil
	}
}

func (s *ChatService) reply(ctx context.Context, session *model.Session, message string) (string, error) {
	system := SystemPromptFor(session.Mode)
	switch session.Provider {
	case model.ProviderGemini:
		if !s.gemini.IsConfigured() {
			return mockFollowUpReply, nil
		}
		reply, err := s.gemini.GenerateChat(ctx, &client.GeminiChatInput{
			Model:          session.ModelID,
			System:         system,
			History:        historyMessages(session.History),
			Message:        message,
			Temperature:    session.Temperature,
			ThinkingBudget: session.ThinkingBudget,
		})
		if err != nil {
			return "", &ProviderError{Provider: session.Provider, Err: err}
		}
		return reply, nil
	case model.ProviderGroq:
		if !s.groq.IsConfigured() {
			return mockFollowUpReply, nil
		}
		messages := make([]client.ChatMessage, 0, len(session.History)+2)
		messages = append(messages, client.ChatMessage{Role: "system", Content: system})
		messages = append(messages, historyMessages(session.History)...)
		messages = append(messages, client.ChatMessage{Role: model.RoleUser, Content: message})
		reply, err := s.groq.ChatCompletion(ctx, session.ModelID, messages, session.Temperature)
		if err != nil {
			return "", &ProviderError{Provider: session.Provider, Err: err}
		}
		return reply, nil
	default:
		return "", fmt.Errorf("unknown provider %q for session %s", session.Provider, session.ID)
	}
}

func historyMessages(history []model.ChatTurn) []client.ChatMessage {
	messages := make([]client.ChatMessage, 0, len(history))
	for _, turn := range history {
		messages = append(messages, client.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

// Mock replies for development without API keys

func mockAdvice(mode model.ChatMode) string {
	if mode == model.ModeProducer {
		return "The section already carries a solid groove. Layer a counter-melody an octave above the lead, " +
			"for example G4 (quarter), A4 (eighth), B4 (eighth), D5 (half), and double it with a soft pad. " +
			"Around the 2-4 kHz region there is space for a plucked synth; keep it panned 30% right to balance the hats."
	}
	return "The low end around 80-120 Hz is crowding the mix and masking the kick. Cut 2-3 dB there with a wide Q, " +
		"then add a gentle high-shelf above 10 kHz for air. The snare sits slightly late against the grid; " +
		"nudging it 5-10 ms earlier will tighten the groove."
}

const mockFollowUpReply = "Apply that change only in the chorus sections first and compare against the verse level. " +
	"If the vocal still fights the guitars, automate a 1 dB dip on the guitar bus while the vocal is active."
