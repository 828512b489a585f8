package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/handler"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/pipeline"
	"github.com/stemforge/api/internal/service"
	"github.com/stemforge/api/internal/store"
	"github.com/stemforge/api/internal/worker"
)

// engineBackend is the full engine surface wired into the test app.
type engineBackend interface {
	pipeline.Engine
	service.AudioPreviewer
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	jobStore *store.JobStore
}

// setupApp creates a Fiber app identical to main.go but with the mock
// engine, unconfigured chat providers and the in-memory driver, so the
// whole surface works without Redis or external services.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithEngine(t, client.NewMockEngine())
}

func setupAppWithEngine(t *testing.T, engine engineBackend) *testApp {
	t.Helper()

	jobStore, err := store.NewJobStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create job store: %v", err)
	}

	validate := validator.New()

	// Chat providers without API keys → mock replies
	geminiClient := client.NewGeminiClient(&config.GeminiConfig{})
	groqClient := client.NewGroqClient(&config.GroqConfig{})

	registry := service.NewMemorySessionRegistry()
	chatService := service.NewChatService(registry, geminiClient, groqClient, jobStore, model.ProviderGemini)
	midiValidator := service.NewMidiValidator(geminiClient)
	analysisService := service.NewAnalysisService(engine, chatService, jobStore)

	orch := pipeline.NewOrchestrator(jobStore, engine, midiValidator, "demucs", nil)

	pool := worker.NewPool(2, orch)
	t.Cleanup(pool.Shutdown)

	jobService := service.NewJobService(jobStore, pool, "demucs")

	jobHandler := handler.NewJobHandler(jobService, validate, true)
	analysisHandler := handler.NewAnalysisHandler(analysisService, chatService, validate, true)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine": false,
				"gemini": false,
				"groq":   false,
				"redis":  false,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	jobs := api.Group("/jobs")
	jobs.Post("/", jobHandler.Submit)
	jobs.Get("/:jobId/status", jobHandler.Status)
	jobs.Get("/:jobId/midi", jobHandler.Midi)
	jobs.Get("/:jobId/analysis", jobHandler.Analysis)

	api.Post("/spectrogram", analysisHandler.Spectrogram)
	api.Post("/analyze", analysisHandler.Analyze)
	api.Post("/chat", analysisHandler.Chat)

	return &testApp{app: app, jobStore: jobStore}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doMultipart performs a multipart/form-data request with an optional file
// part named "file".
func doMultipart(t *testing.T, app *fiber.App, path string, fields map[string]string, fileName string, fileContent []byte) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return app.Test(req, -1)
}

// pollStatus polls the status endpoint until the wanted state shows up or
// the deadline passes, returning the final snapshot body.
func pollStatus(t *testing.T, app *fiber.App, jobID, wantState string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	var last map[string]interface{}
	for time.Now().Before(deadline) {
		resp, err := doRequest(app, http.MethodGet, "/api/jobs/"+jobID+"/status", "", nil)
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		body := parseJSON(t, resp)
		last = body
		if body["state"] == wantState {
			return body
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %q, last body: %v", jobID, wantState, last)
	return nil
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
