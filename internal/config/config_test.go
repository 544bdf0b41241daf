package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "querychain.json", `{"tools": {"data_path": "tools.yaml"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Server.RequestTimeoutSeconds != 30 {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Storage.History.Driver != "memory" || cfg.Storage.TaskStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Storage, cfg.Queue)
	}
	if cfg.Queue.MaxRetries != 3 || cfg.Queue.Workers != 4 || cfg.Queue.RetryBackoffMillis != 0 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.LLM.Provider != "none" || cfg.LLM.OpenAI.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
	if cfg.Tools.DataPath != filepath.Join(dir, "tools.yaml") {
		t.Fatalf("expected relative tool path to resolve, got %s", cfg.Tools.DataPath)
	}
	if cfg.Runtime.QueryTimeout().Seconds() != 10 {
		t.Fatalf("unexpected query timeout: %s", cfg.Runtime.QueryTimeout())
	}
}

func TestLoadRejectsInvalidDrivers(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"history":    `{"storage": {"history": {"driver": "sqlite"}}}`,
		"mysql dsn":  `{"storage": {"task_store": {"driver": "mysql"}}}`,
		"queue":      `{"queue": {"driver": "kafka"}}`,
		"redis addr": `{"queue": {"driver": "redis"}}`,
		"llm":        `{"llm": {"provider": "llama"}}`,
		"preset":     `{"normalizer": {"preset": "aggressive"}}`,
		"severity":   `{"alerting": {"min_severity": "fatal"}}`,
		"malformed":  `{"server": `,
	}
	for name, content := range cases {
		path := writeFile(t, dir, "bad.json", content)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadRetryBackoffCap(t *testing.T) {
	path := writeFile(t, t.TempDir(), "querychain.json", `{"queue": {"retry_backoff_ms": 100}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Queue.RetryBackoffMaxMillis != 3000 {
		t.Fatalf("expected derived backoff cap, got %d", cfg.Queue.RetryBackoffMaxMillis)
	}
}

func TestNormalizerConfigBuild(t *testing.T) {
	cfg := NormalizerConfig{
		Corrections: map[string]string{"pariss": "Paris"},
		Stages:      map[string]bool{"capitalize": false},
	}
	n, err := cfg.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := n.Apply("weather in pariss").Text; got != "weather in Paris" {
		t.Fatalf("unexpected normalised text: %q", got)
	}

	if _, err := (NormalizerConfig{Stages: map[string]bool{"emoji": true}}).Build(); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if PathFromEnv() != DefaultConfigPath {
		t.Fatalf("expected default path")
	}
	t.Setenv(EnvConfigPath, "/etc/querychain.json")
	if PathFromEnv() != "/etc/querychain.json" {
		t.Fatalf("expected env override")
	}
}

func TestLoadToolData(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tools.yaml", `
rates:
  USD: 1.0
  EUR: 0.5
cities:
  Reykjavik: 4
  "New York": 21
live_rates:
  enabled: true
`)

	data, err := LoadToolData(path)
	if err != nil {
		t.Fatalf("load tool data: %v", err)
	}
	if rate, ok := data.RateTable().Rate("eur"); !ok || rate != 0.5 {
		t.Fatalf("unexpected EUR rate: %v %v", rate, ok)
	}
	if _, ok := data.RateTable().Rate("GBP"); ok {
		t.Fatalf("configured table should replace the built-in one")
	}
	if temp, ok := data.CityTable().Temperature("new york"); !ok || temp != 21 {
		t.Fatalf("unexpected New York temperature: %v %v", temp, ok)
	}

	t.Setenv("EXCHANGE_RATE_API_KEY", "")
	if data.LiveSource() != nil {
		t.Fatalf("live source requires an api key")
	}
	t.Setenv("EXCHANGE_RATE_API_KEY", "secret")
	if data.LiveSource() == nil {
		t.Fatalf("expected live source when key is present")
	}
}

func TestLoadToolDataDefaults(t *testing.T) {
	data, err := LoadToolData("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if rate, ok := data.RateTable().Rate("JPY"); !ok || rate != 110 {
		t.Fatalf("expected built-in JPY rate, got %v %v", rate, ok)
	}
	if temp, ok := data.CityTable().Temperature("Paris"); !ok || temp != 18 {
		t.Fatalf("expected built-in Paris temperature, got %v %v", temp, ok)
	}

	bad := writeFile(t, t.TempDir(), "tools.yaml", "rates:\n  EURO: 1\n")
	if _, err := LoadToolData(bad); err == nil {
		t.Fatalf("expected invalid currency code error")
	}
}
