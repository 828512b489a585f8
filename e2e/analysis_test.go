package e2e

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestSpectrogram(t *testing.T) {
	ta := setupApp(t)

	resp, err := doMultipart(t, ta.app, "/api/spectrogram", map[string]string{
		"startSec": "0",
		"endSec":   "4.5",
	}, "clip.wav", wavBytes)
	if err != nil {
		t.Fatalf("spectrogram request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	encoded, _ := body["spectrogramPngBase64"].(string)
	if encoded == "" {
		t.Fatal("expected a base64 spectrogram")
	}
	png, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("spectrogram is not valid base64: %v", err)
	}
	if !strings.HasPrefix(string(png), "\x89PNG") {
		t.Error("decoded spectrogram is not a PNG")
	}
}

func TestSpectrogramRejectsInvalidRegion(t *testing.T) {
	ta := setupApp(t)

	resp, err := doMultipart(t, ta.app, "/api/spectrogram", map[string]string{
		"startSec": "5",
		"endSec":   "2",
	}, "clip.wav", wavBytes)
	if err != nil {
		t.Fatalf("spectrogram request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("error code = %v, want VALIDATION_ERROR", errObj["code"])
	}
}

func TestAnalyzeOpensSessionAndPersistsAdvice(t *testing.T) {
	ta := setupApp(t)

	resp, err := doMultipart(t, ta.app, "/api/analyze", map[string]string{
		"startSec": "0",
		"endSec":   "8",
		"prompt":   "How does the low end sit?",
		"modelId":  "gemini-2.5-flash",
		"jobId":    "mixjob",
	}, "clip.wav", wavBytes)
	if err != nil {
		t.Fatalf("analyze request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["sessionId"] == "" || body["sessionId"] == nil {
		t.Fatal("expected a session id")
	}
	if body["jobId"] != "mixjob" {
		t.Errorf("jobId = %v, want mixjob", body["jobId"])
	}
	advice, _ := body["advice"].(string)
	if advice == "" {
		t.Fatal("expected opening advice")
	}
	if body["spectrogramPngBase64"] == "" {
		t.Error("expected a spectrogram preview")
	}

	// advice is persisted and served as plain text
	resp, err = doRequest(ta.app, http.MethodGet, "/api/jobs/mixjob/analysis", "", nil)
	if err != nil {
		t.Fatalf("analysis request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q, want text/plain", ct)
	}
	if got := readBody(t, resp); got != advice {
		t.Errorf("persisted advice = %q, want %q", got, advice)
	}
}

func TestAnalyzeRequiresPrompt(t *testing.T) {
	ta := setupApp(t)

	resp, err := doMultipart(t, ta.app, "/api/analyze", map[string]string{
		"startSec": "0",
		"endSec":   "8",
		"modelId":  "gemini-2.5-flash",
	}, "clip.wav", wavBytes)
	if err != nil {
		t.Fatalf("analyze request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, _ := body["error"].(map[string]interface{})
	details, _ := errObj["details"].(map[string]interface{})
	if _, ok := details["Prompt"]; !ok {
		t.Errorf("expected Prompt in validation details, got %v", details)
	}
}

func TestChatFollowUpAppendsToAdvice(t *testing.T) {
	ta := setupApp(t)

	resp, err := doMultipart(t, ta.app, "/api/analyze", map[string]string{
		"startSec": "0",
		"endSec":   "8",
		"prompt":   "Anything clashing in the mids?",
		"modelId":  "gemini-2.5-flash",
		"jobId":    "chatjob",
	}, "clip.wav", wavBytes)
	if err != nil {
		t.Fatalf("analyze request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	sessionID, _ := parseJSON(t, resp)["sessionId"].(string)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/chat",
		`{"sessionId":"`+sessionID+`","message":"What about the verses?"}`, nil)
	if err != nil {
		t.Fatalf("chat request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["reply"] == "" || body["reply"] == nil {
		t.Fatal("expected a chat reply")
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/jobs/chatjob/analysis", "", nil)
	if err != nil {
		t.Fatalf("analysis request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	advice := readBody(t, resp)
	if !strings.Contains(advice, "--- Follow-up ---") {
		t.Error("advice record missing the follow-up block")
	}
	if !strings.Contains(advice, "What about the verses?") {
		t.Error("advice record missing the follow-up question")
	}
}

func TestChatUnknownSessionStillReplies(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/chat",
		`{"sessionId":"never-registered","message":"hello?"}`, nil)
	if err != nil {
		t.Fatalf("chat request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	reply, _ := body["reply"].(string)
	if reply == "" {
		t.Fatal("expected a reply from the default provider")
	}
}

func TestChatAcceptsFormEncoding(t *testing.T) {
	ta := setupApp(t)

	form := url.Values{}
	form.Set("sessionId", "form-session")
	form.Set("message", "still there?")

	req, err := http.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("chat request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["reply"] == "" || body["reply"] == nil {
		t.Fatal("expected a reply")
	}
}

func TestChatRequiresMessage(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/chat", `{"sessionId":"s1"}`, nil)
	if err != nil {
		t.Fatalf("chat request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, _ := body["error"].(map[string]interface{})
	details, _ := errObj["details"].(map[string]interface{})
	if _, ok := details["Message"]; !ok {
		t.Errorf("expected Message in validation details, got %v", details)
	}
}
