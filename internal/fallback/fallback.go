// Package fallback produces the answer returned when no rule matches or a plan
// cannot be completed. Responders never fail.
package fallback

import (
	"context"
	"log/slog"
	"strings"

	"QueryChain/internal/llm"
	"QueryChain/pkg/logger"
)

const (
	placeholderPrefix = "Generated Answer for: "
	previewRunes      = 60
)

// Responder turns the original request into a best-effort answer.
type Responder interface {
	Respond(ctx context.Context, text string) string
}

// Placeholder returns the deterministic fallback text: the prefix followed by
// the first 60 characters of text, with "..." appended when it was longer.
func Placeholder(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return placeholderPrefix + "[Empty prompt]"
	}
	runes := []rune(text)
	if len(runes) > previewRunes {
		return placeholderPrefix + string(runes[:previewRunes]) + "..."
	}
	return placeholderPrefix + text
}

// Static answers with Placeholder.
type Static struct{}

// Respond implements Responder.
func (Static) Respond(_ context.Context, text string) string {
	return Placeholder(text)
}

// LLM asks a language model and degrades to Placeholder on any failure.
type LLM struct {
	client llm.Client
	logger *slog.Logger
}

// NewLLM creates an LLM responder. A nil client behaves like Static.
func NewLLM(client llm.Client) *LLM {
	return &LLM{client: client, logger: logger.Named("fallback")}
}

// Respond implements Responder. A panicking client is treated as a failure.
func (r *LLM) Respond(ctx context.Context, text string) (answer string) {
	if r == nil || r.client == nil || strings.TrimSpace(text) == "" {
		return Placeholder(text)
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("llm fallback panicked", "panic", rec)
			answer = Placeholder(text)
		}
	}()
	resp, err := r.client.Generate(ctx, llm.Request{Prompt: text})
	if err != nil {
		r.logger.Warn("llm fallback failed", "error", err)
		return Placeholder(text)
	}
	if resp == nil || strings.TrimSpace(resp.Reply) == "" {
		return Placeholder(text)
	}
	return strings.TrimSpace(resp.Reply)
}

var (
	_ Responder = Static{}
	_ Responder = (*LLM)(nil)
)
