package tools

import (
	"context"
	"log/slog"

	"QueryChain/internal/fallback"
	"QueryChain/internal/llm"
	"QueryChain/internal/value"
	"QueryChain/pkg/logger"
)

// TextGenName is the registry name of the text generation tool.
const TextGenName = "llm"

// TextGen runs prompts through an LLM client. Without a client, or when the
// client fails, it answers with the placeholder text.
type TextGen struct {
	*Tool
	client llm.Client
	logger *slog.Logger
}

// NewTextGen builds the llm tool. client may be nil.
func NewTextGen(client llm.Client) *TextGen {
	g := &TextGen{client: client, logger: logger.Named("llm")}
	g.Tool = NewTool(TextGenName, map[string]Operation{
		"generate": g.generate,
	})
	return g
}

func (g *TextGen) generate(ctx context.Context, args Args) (value.Value, error) {
	prompt, err := args.Text("prompt")
	if err != nil {
		return value.Value{}, err
	}
	limit, _, err := args.OptionalNumber("max_words")
	if err != nil {
		return value.Value{}, err
	}
	if g.client == nil {
		return value.Text(fallback.Placeholder(prompt)), nil
	}

	resp, err := g.client.Generate(ctx, llm.Request{Prompt: prompt, MaxWords: int(limit)})
	if err != nil || resp == nil || resp.Reply == "" {
		g.logger.Warn("llm generation failed, using placeholder", "error", err)
		return value.Text(fallback.Placeholder(prompt)), nil
	}
	return value.Text(llm.LimitWords(resp.Reply, int(limit))), nil
}
