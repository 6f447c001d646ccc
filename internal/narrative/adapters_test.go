package narrative

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeAPI serves a fixed status and body for every request and records the
// last request path and body.
type fakeAPI struct {
	status   int
	body     string
	hits     int
	lastPath string
	lastBody string
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits++
		f.lastPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		f.lastBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openAIChatBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 11, "completion_tokens": 22, "total_tokens": 33},
	})
	return string(b)
}

func claudeBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-haiku-4-5",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"usage":       map[string]any{"input_tokens": 5, "output_tokens": 7},
	})
	return string(b)
}

func geminiBody(parts ...map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": parts},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 4},
	})
	return string(b)
}

func newTestOpenAI(t *testing.T, api *fakeAPI) *OpenAILLM {
	t.Helper()
	cfg := DefaultLLMConfig(ProviderOpenAI)
	cfg.APIKey = "sk-test"
	cfg.BaseURL = api.server(t).URL
	llm, err := NewOpenAILLM(cfg)
	if err != nil {
		t.Fatalf("NewOpenAILLM() error = %v", err)
	}
	return llm
}

func newTestClaude(t *testing.T, api *fakeAPI) *ClaudeLLM {
	t.Helper()
	cfg := DefaultLLMConfig(ProviderClaude)
	cfg.APIKey = "sk-ant-test"
	cfg.BaseURL = api.server(t).URL
	llm, err := NewClaudeLLM(cfg)
	if err != nil {
		t.Fatalf("NewClaudeLLM() error = %v", err)
	}
	return llm
}

func newTestGemini(t *testing.T, api *fakeAPI) *GeminiLLM {
	t.Helper()
	cfg := DefaultLLMConfig(ProviderGemini)
	cfg.APIKey = "gm-test"
	cfg.BaseURL = api.server(t).URL + "/"
	llm, err := NewGeminiLLM(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewGeminiLLM() error = %v", err)
	}
	return llm
}

func assertDefaults(t *testing.T, s State) {
	t.Helper()
	if s.StoryText != DefaultStoryText {
		t.Errorf("StoryText = %q, want %q", s.StoryText, DefaultStoryText)
	}
	if len(s.Choices) != 1 || s.Choices[0] != DefaultChoice {
		t.Errorf("Choices = %v, want [%s]", s.Choices, DefaultChoice)
	}
	if s.Inventory == nil || len(s.Inventory) != 0 {
		t.Errorf("Inventory = %#v, want empty non-nil slice", s.Inventory)
	}
	if s.CurrentQuest != DefaultQuest {
		t.Errorf("CurrentQuest = %q, want %q", s.CurrentQuest, DefaultQuest)
	}
	if s.VisualPrompt != DefaultVisualPrompt {
		t.Errorf("VisualPrompt = %q, want %q", s.VisualPrompt, DefaultVisualPrompt)
	}
	if s.WorldStyle != DefaultWorldStyle {
		t.Errorf("WorldStyle = %q, want %q", s.WorldStyle, DefaultWorldStyle)
	}
	if s.Genre != DefaultGenre {
		t.Errorf("Genre = %q, want %q", s.Genre, DefaultGenre)
	}
}

func TestOpenAILLM_GenerateStory_Success(t *testing.T) {
	content := `{"storyText":"You wake in a cave.","choices":["Light a torch","Listen"],"inventory":["flint"],"currentQuest":"Escape","visualPrompt":"A dark cave","worldStyle":"gritty","genre":"Horror"}`
	api := &fakeAPI{status: http.StatusOK, body: openAIChatBody(content)}
	llm := newTestOpenAI(t, api)

	env, err := llm.GenerateStory(context.Background(), "begin")
	if err != nil {
		t.Fatalf("GenerateStory() error = %v", err)
	}

	if env.Data.StoryText != "You wake in a cave." {
		t.Errorf("StoryText = %q", env.Data.StoryText)
	}
	if len(env.Data.Choices) != 2 || env.Data.Inventory[0] != "flint" || env.Data.Genre != "Horror" {
		t.Errorf("unexpected state: %+v", env.Data)
	}
	if env.Usage.InputTokens != 11 || env.Usage.OutputTokens != 22 || env.Usage.Provider != ProviderOpenAI {
		t.Errorf("Usage = %+v", env.Usage)
	}
	if !strings.HasSuffix(api.lastPath, "/chat/completions") {
		t.Errorf("path = %q, want chat/completions", api.lastPath)
	}
	if !strings.Contains(api.lastBody, `"json_object"`) {
		t.Errorf("request did not ask for JSON mode: %s", api.lastBody)
	}
}

func TestOpenAILLM_GenerateStory_PartialFieldsGetDefaults(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: openAIChatBody(`{"storyText":"X","choices":["Continue"]}`)}
	llm := newTestOpenAI(t, api)

	env, err := llm.GenerateStory(context.Background(), "begin")
	if err != nil {
		t.Fatalf("GenerateStory() error = %v", err)
	}

	s := env.Data
	if s.StoryText != "X" {
		t.Errorf("StoryText = %q, want X", s.StoryText)
	}
	if s.Inventory == nil || len(s.Inventory) != 0 {
		t.Errorf("Inventory = %#v, want []", s.Inventory)
	}
	if s.CurrentQuest != "Unknown quest" {
		t.Errorf("CurrentQuest = %q", s.CurrentQuest)
	}
	if s.Genre != "Fantasy" {
		t.Errorf("Genre = %q", s.Genre)
	}
}

func TestAdapters_GenerateStory_EmptyObjectGetsAllDefaults(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		llm := newTestOpenAI(t, &fakeAPI{status: http.StatusOK, body: openAIChatBody(`{}`)})
		env, err := llm.GenerateStory(context.Background(), "p")
		if err != nil {
			t.Fatalf("GenerateStory() error = %v", err)
		}
		assertDefaults(t, env.Data)
	})

	t.Run("claude", func(t *testing.T) {
		llm := newTestClaude(t, &fakeAPI{status: http.StatusOK, body: claudeBody("```json\n{}\n```")})
		env, err := llm.GenerateStory(context.Background(), "p")
		if err != nil {
			t.Fatalf("GenerateStory() error = %v", err)
		}
		assertDefaults(t, env.Data)
	})

	t.Run("gemini", func(t *testing.T) {
		llm := newTestGemini(t, &fakeAPI{status: http.StatusOK, body: geminiBody(map[string]any{"text": "{}"})})
		env, err := llm.GenerateStory(context.Background(), "p")
		if err != nil {
			t.Fatalf("GenerateStory() error = %v", err)
		}
		assertDefaults(t, env.Data)
	})
}

func TestAdapters_GenerateStory_WrongFieldTypesGetDefaults(t *testing.T) {
	llm := newTestOpenAI(t, &fakeAPI{status: http.StatusOK, body: openAIChatBody(`{"storyText":42,"choices":"north","inventory":{"a":1},"genre":null}`)})

	env, err := llm.GenerateStory(context.Background(), "p")
	if err != nil {
		t.Fatalf("GenerateStory() error = %v", err)
	}
	assertDefaults(t, env.Data)
}

func TestAdapters_GenerateStory_NotJSON(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		llm := newTestOpenAI(t, &fakeAPI{status: http.StatusOK, body: openAIChatBody("once upon a time")})
		_, err := llm.GenerateStory(context.Background(), "p")
		if !errors.Is(err, ErrParse) {
			t.Errorf("error = %v, want ErrParse", err)
		}
	})

	t.Run("claude", func(t *testing.T) {
		llm := newTestClaude(t, &fakeAPI{status: http.StatusOK, body: claudeBody("I cannot do that.")})
		_, err := llm.GenerateStory(context.Background(), "p")
		if !errors.Is(err, ErrParse) {
			t.Errorf("error = %v, want ErrParse", err)
		}
	})

	t.Run("gemini", func(t *testing.T) {
		llm := newTestGemini(t, &fakeAPI{status: http.StatusOK, body: geminiBody(map[string]any{"text": "[1,2]"})})
		_, err := llm.GenerateStory(context.Background(), "p")
		if !errors.Is(err, ErrParse) {
			t.Errorf("error = %v, want ErrParse", err)
		}
	})
}

func TestClaudeLLM_GenerateStory_ExtractsFromProse(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: claudeBody("Here you go:\n```json\n{\"storyText\":\"The bell tolls.\",\"genre\":\"Horror\"}\n```\nEnjoy!")}
	llm := newTestClaude(t, api)

	env, err := llm.GenerateStory(context.Background(), "p")
	if err != nil {
		t.Fatalf("GenerateStory() error = %v", err)
	}
	if env.Data.StoryText != "The bell tolls." || env.Data.Genre != "Horror" {
		t.Errorf("unexpected state: %+v", env.Data)
	}
	if env.Usage.InputTokens != 5 || env.Usage.OutputTokens != 7 || env.Usage.Provider != ProviderClaude {
		t.Errorf("Usage = %+v", env.Usage)
	}
	if !strings.HasSuffix(api.lastPath, "/v1/messages") {
		t.Errorf("path = %q, want /v1/messages", api.lastPath)
	}
}

func TestClaudeLLM_GenerateImage_NoNetwork(t *testing.T) {
	api := &fakeAPI{status: http.StatusInternalServerError, body: `{}`}
	llm := newTestClaude(t, api)

	env, err := llm.GenerateImage(context.Background(), "a castle", "fantasy", QualityStandard)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if env.Data != "" {
		t.Errorf("Data = %q, want empty", env.Data)
	}
	if env.Usage.InputTokens != 0 || env.Usage.OutputTokens != 0 || env.Usage.IsPremium {
		t.Errorf("Usage = %+v, want zero", env.Usage)
	}
	if api.hits != 0 {
		t.Errorf("server was hit %d times, want 0", api.hits)
	}
}

func TestGeminiLLM_GenerateStory_UsesSchema(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: geminiBody(map[string]any{"text": `{"storyText":"Stars wheel overhead.","genre":"Sci-Fi"}`})}
	llm := newTestGemini(t, api)

	env, err := llm.GenerateStory(context.Background(), "p")
	if err != nil {
		t.Fatalf("GenerateStory() error = %v", err)
	}
	if env.Data.StoryText != "Stars wheel overhead." || env.Data.Genre != "Sci-Fi" {
		t.Errorf("unexpected state: %+v", env.Data)
	}
	if env.Usage.InputTokens != 3 || env.Usage.OutputTokens != 4 || env.Usage.Provider != ProviderGemini {
		t.Errorf("Usage = %+v", env.Usage)
	}
	if !strings.Contains(api.lastPath, "gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q", api.lastPath)
	}
	if !strings.Contains(api.lastBody, "responseSchema") || !strings.Contains(api.lastBody, "application/json") {
		t.Errorf("request missing schema: %s", api.lastBody)
	}
}

func TestGeminiLLM_GenerateImage_DataURI(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	api := &fakeAPI{status: http.StatusOK, body: geminiBody(
		map[string]any{"text": "here is your image"},
		map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(png)}},
	)}
	llm := newTestGemini(t, api)

	env, err := llm.GenerateImage(context.Background(), "a moonlit tower", "gothic", QualityFast)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	if env.Data != want {
		t.Errorf("Data = %q, want %q", env.Data, want)
	}
	if !strings.Contains(api.lastPath, "gemini-2.5-flash-image:generateContent") {
		t.Errorf("path = %q", api.lastPath)
	}
	if !strings.Contains(api.lastBody, "Simple gothic sketch") {
		t.Errorf("request missing fast prompt: %s", api.lastBody)
	}
}

func TestGeminiLLM_GenerateImage_NoImage(t *testing.T) {
	llm := newTestGemini(t, &fakeAPI{status: http.StatusOK, body: geminiBody(map[string]any{"text": "sorry"})})

	_, err := llm.GenerateImage(context.Background(), "p", "s", QualityStandard)
	if !errors.Is(err, ErrLLMFailed) {
		t.Errorf("error = %v, want ErrLLMFailed", err)
	}
}

func TestOpenAILLM_GenerateImage_Quality(t *testing.T) {
	body := `{"created":0,"data":[{"url":"https://img.example/1.png"}]}`

	tests := []struct {
		name        string
		quality     ImageQuality
		wantPremium bool
		wantQuality string
	}{
		{"standard is hd", QualityStandard, true, `"quality":"hd"`},
		{"fast is standard", QualityFast, false, `"quality":"standard"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{status: http.StatusOK, body: body}
			llm := newTestOpenAI(t, api)

			env, err := llm.GenerateImage(context.Background(), "a ship", "sci-fi", tt.quality)
			if err != nil {
				t.Fatalf("GenerateImage() error = %v", err)
			}
			if env.Data != "https://img.example/1.png" {
				t.Errorf("Data = %q", env.Data)
			}
			if env.Usage.IsPremium != tt.wantPremium {
				t.Errorf("IsPremium = %v, want %v", env.Usage.IsPremium, tt.wantPremium)
			}
			if !strings.Contains(api.lastBody, tt.wantQuality) {
				t.Errorf("request body %s missing %s", api.lastBody, tt.wantQuality)
			}
			if !strings.HasSuffix(api.lastPath, "/images/generations") {
				t.Errorf("path = %q", api.lastPath)
			}
		})
	}
}

func TestAdapters_GetChatResponse(t *testing.T) {
	state := State{Genre: "Noir", CurrentQuest: "Find the dame"}

	t.Run("openai", func(t *testing.T) {
		api := &fakeAPI{status: http.StatusOK, body: openAIChatBody("Keep your eyes peeled, see.")}
		llm := newTestOpenAI(t, api)
		env, err := llm.GetChatResponse(context.Background(), "Any leads?", state)
		if err != nil {
			t.Fatalf("GetChatResponse() error = %v", err)
		}
		if env.Data != "Keep your eyes peeled, see." {
			t.Errorf("Data = %q", env.Data)
		}
		if !strings.Contains(api.lastBody, "gumshoe") {
			t.Errorf("persona not sent: %s", api.lastBody)
		}
	})

	t.Run("claude empty reply falls back", func(t *testing.T) {
		llm := newTestClaude(t, &fakeAPI{status: http.StatusOK, body: claudeBody("  ")})
		env, err := llm.GetChatResponse(context.Background(), "Hello?", state)
		if err != nil {
			t.Fatalf("GetChatResponse() error = %v", err)
		}
		if env.Data != ChatFallback {
			t.Errorf("Data = %q, want fallback", env.Data)
		}
	})

	t.Run("gemini", func(t *testing.T) {
		api := &fakeAPI{status: http.StatusOK, body: geminiBody(map[string]any{"text": "Try the docks."})}
		llm := newTestGemini(t, api)
		env, err := llm.GetChatResponse(context.Background(), "Where now?", state)
		if err != nil {
			t.Fatalf("GetChatResponse() error = %v", err)
		}
		if env.Data != "Try the docks." {
			t.Errorf("Data = %q", env.Data)
		}
		if !strings.Contains(api.lastBody, "systemInstruction") {
			t.Errorf("persona not sent: %s", api.lastBody)
		}
	})
}

func TestAdapters_DescribeError(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		llm := newTestOpenAI(t, &fakeAPI{status: http.StatusUnauthorized, body: `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`})
		_, err := llm.GenerateStory(context.Background(), "p")
		if err == nil {
			t.Fatal("expected error")
		}
		desc, ok := llm.DescribeError(err)
		if !ok {
			t.Fatalf("DescribeError(%v) not ok", err)
		}
		if desc.StatusCode != 401 || desc.Status != "invalid_api_key" || !strings.Contains(desc.Message, "Incorrect API key") {
			t.Errorf("desc = %+v", desc)
		}
	})

	t.Run("claude", func(t *testing.T) {
		llm := newTestClaude(t, &fakeAPI{status: http.StatusUnauthorized, body: `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`})
		_, err := llm.GenerateStory(context.Background(), "p")
		if err == nil {
			t.Fatal("expected error")
		}
		desc, ok := llm.DescribeError(err)
		if !ok {
			t.Fatalf("DescribeError(%v) not ok", err)
		}
		if desc.StatusCode != 401 || desc.Status != "authentication_error" || desc.Message != "invalid x-api-key" {
			t.Errorf("desc = %+v", desc)
		}
	})

	t.Run("gemini", func(t *testing.T) {
		llm := newTestGemini(t, &fakeAPI{status: http.StatusBadRequest, body: `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"API_KEY_INVALID"}]}}`})
		_, err := llm.GenerateStory(context.Background(), "p")
		if err == nil {
			t.Fatal("expected error")
		}
		desc, ok := llm.DescribeError(err)
		if !ok {
			t.Fatalf("DescribeError(%v) not ok", err)
		}
		if desc.StatusCode != 400 || desc.Status != "INVALID_ARGUMENT" || !strings.Contains(desc.Message, "API_KEY_INVALID") {
			t.Errorf("desc = %+v", desc)
		}
	})

	t.Run("foreign error", func(t *testing.T) {
		llm := newTestOpenAI(t, &fakeAPI{status: http.StatusOK, body: `{}`})
		if _, ok := llm.DescribeError(errors.New("boom")); ok {
			t.Error("DescribeError(plain error) ok = true, want false")
		}
	})
}

func TestNewAdapters_InvalidConfig(t *testing.T) {
	if _, err := NewOpenAILLM(LLMConfig{Model: "gpt-4o-mini"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewOpenAILLM() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewClaudeLLM(LLMConfig{APIKey: "k"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClaudeLLM() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewGeminiLLM(context.Background(), LLMConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewGeminiLLM() error = %v, want ErrInvalidConfig", err)
	}
}
