package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func newTestServer(t *testing.T, content string, captured *map[string]any, auth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(content))
	}))
}

func TestGenerateSuccess(t *testing.T) {
	var body map[string]any
	var auth string
	srv := newTestServer(t, `{"thought":"weather lookup","reply":"Mild and cloudy"}`, &body, &auth)
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "Summarize 18°C in Paris in exactly 3 words", MaxWords: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply != "Mild and cloudy" || resp.Thought != "weather lookup" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("authorization header missing: %q", auth)
	}
	if body["model"] != defaultModelName {
		t.Fatalf("model field missing in request: %v", body["model"])
	}
}

func TestGenerateRepairsMalformedJSON(t *testing.T) {
	srv := newTestServer(t, "```json\n{\"thought\": \"ok\", \"reply\": \"Warm sunny afternoon\",}\n```", nil, nil)
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "describe", MaxWords: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply != "Warm sunny" {
		t.Fatalf("expected word-limited repaired reply, got %q", resp.Reply)
	}
}

func TestGeneratePlainTextReply(t *testing.T) {
	srv := newTestServer(t, "Ada Lovelace wrote the first program.", nil, nil)
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "who is ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply != "Ada Lovelace wrote the first program." {
		t.Fatalf("unexpected reply: %q", resp.Reply)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "hi"}); err == nil {
		t.Fatalf("expected error for http failure")
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`{"thought":"","reply":"Recovered"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, MaxRetries: 1, RetryWait: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := client.Generate(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply != "Recovered" || calls.Load() != 2 {
		t.Fatalf("expected recovery on second call, reply=%q calls=%d", resp.Reply, calls.Load())
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, MaxRetries: 3, RetryWait: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Generate(context.Background(), llm.Request{Prompt: "hi"})
	if !xerrors.HasCode(err, CodeProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if status, _ := xerrors.MetadataOf(err, "status"); status != "400" || calls.Load() != 1 {
		t.Fatalf("unexpected retry behaviour: status=%s calls=%d", status, calls.Load())
	}
}

func TestGenerateSendsHistoryAsTurns(t *testing.T) {
	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`{"reply":"ok"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Generate(context.Background(), llm.Request{
		Prompt:    "and in Tokyo?",
		MaxWords:  4,
		History:   []llm.HistoryEntry{{Query: "Weather in Paris", Answer: "18°C"}},
		Knowledge: []llm.KnowledgeCard{{Title: "Paris", Content: "Capital of France."}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Messages) != 4 {
		t.Fatalf("expected system, history pair and prompt, got %+v", body.Messages)
	}
	if !strings.Contains(body.Messages[0].Content, "[1] Paris: Capital of France.") {
		t.Fatalf("knowledge missing from system message: %q", body.Messages[0].Content)
	}
	if body.Messages[1].Role != "user" || body.Messages[2].Role != "assistant" || body.Messages[2].Content != "18°C" {
		t.Fatalf("unexpected history turns: %+v", body.Messages[1:3])
	}
	if !strings.HasSuffix(body.Messages[3].Content, "Answer in at most 4 words.") {
		t.Fatalf("unexpected prompt: %q", body.Messages[3].Content)
	}
	if body.ResponseFormat == nil || body.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json response format, got %+v", body.ResponseFormat)
	}
}
