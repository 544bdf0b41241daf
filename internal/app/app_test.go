package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"QueryChain/internal/config"
	"QueryChain/internal/fallback"
	"QueryChain/internal/observability/alerting"
	"QueryChain/pkg/logger"
)

func TestBuildAnswersWithDefaults(t *testing.T) {
	cfg := config.Default(t.TempDir())

	stack, err := Build(context.Background(), cfg, Options{Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer stack.Close()

	if got := stack.Agent.Answer(context.Background(), "What is 15 + 25?"); got != "40.0" {
		t.Fatalf("unexpected answer: %q", got)
	}
	if got := stack.Agent.Answer(context.Background(), "Convert 100 USD to EUR"); got != "85.0" {
		t.Fatalf("unexpected conversion: %q", got)
	}

	records, err := stack.Agent.ListHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(records))
	}
	if _, err := os.Stat(filepath.Join(cfg.Runtime.DataDir, "history.log")); err != nil {
		t.Fatalf("expected history file: %v", err)
	}
}

func TestBuildUsesConfiguredToolData(t *testing.T) {
	dir := t.TempDir()
	toolsPath := filepath.Join(dir, "tools.yaml")
	if err := os.WriteFile(toolsPath, []byte("cities:\n  Reykjavik: 4\n  Paris: 18\n"), 0o600); err != nil {
		t.Fatalf("write tools: %v", err)
	}
	kbPath := filepath.Join(dir, "knowledge.json")
	if err := os.WriteFile(kbPath, []byte(`[{"name":"Grace Hopper","summary":"Grace Hopper was a pioneer of computer programming."}]`), 0o600); err != nil {
		t.Fatalf("write knowledge: %v", err)
	}

	cfg := config.Default(dir)
	cfg.Tools.DataPath = toolsPath
	cfg.Tools.KnowledgePath = kbPath

	stack, err := Build(context.Background(), cfg, Options{WithoutHistory: true, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if stack.History != nil {
		t.Fatalf("history should be skipped")
	}
	if got := stack.Agent.Answer(context.Background(), "What is the weather in Reykjavik?"); got != "4°C" {
		t.Fatalf("unexpected weather answer: %q", got)
	}
	outcome, _ := stack.Agent.Resolve(context.Background(), "Who is Grace Hopper?")
	if !strings.HasPrefix(outcome.Answer, "Grace Hopper was a pioneer") {
		t.Fatalf("unexpected knowledge answer: %+v", outcome)
	}
}

func TestNewLLMClient(t *testing.T) {
	client, err := NewLLMClient(config.LLMConfig{Provider: "none"})
	if err != nil || client != nil {
		t.Fatalf("expected no client for provider none, got %v %v", client, err)
	}

	t.Setenv("QUERYCHAIN_TEST_KEY", "")
	if _, err := NewLLMClient(config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKeyEnv: "QUERYCHAIN_TEST_KEY"}}); err == nil {
		t.Fatalf("expected missing key error")
	}
	t.Setenv("QUERYCHAIN_TEST_KEY", "sk-test")
	client, err = NewLLMClient(config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKeyEnv: "QUERYCHAIN_TEST_KEY"}})
	if err != nil || client == nil {
		t.Fatalf("expected openai client, got %v %v", client, err)
	}

	if _, err := NewLLMClient(config.LLMConfig{Provider: "llama"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestOpenAIClientServesFallbackWithoutCustomHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"thought\":\"greet\",\"reply\":\"Hello there\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	t.Setenv("QUERYCHAIN_TEST_KEY", "sk-test")
	client, err := NewLLMClient(config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{
		APIKeyEnv:      "QUERYCHAIN_TEST_KEY",
		BaseURL:        srv.URL,
		TimeoutSeconds: 2,
	}})
	if err != nil {
		t.Fatalf("new llm client: %v", err)
	}

	if got := fallback.NewLLM(client).Respond(context.Background(), "hello"); got != "Hello there" {
		t.Fatalf("unexpected fallback answer: %q", got)
	}
}

func TestNewAlerterChannels(t *testing.T) {
	dispatcher := NewAlerter(config.AlertingConfig{
		WebhookURL:   "http://127.0.0.1:1/hook",
		SlackWebhook: "http://127.0.0.1:1/slack",
		SlackChannel: "#ops",
	})
	got := dispatcher.Channels()
	want := []alerting.Channel{alerting.ChannelLog, alerting.ChannelSlack, alerting.ChannelWebhook}
	if len(got) != len(want) {
		t.Fatalf("unexpected channels: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected channels: %v", got)
		}
	}
}
