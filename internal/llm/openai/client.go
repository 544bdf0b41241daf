// Package openai 通过 go-openai 接入 OpenAI 兼容的 Chat Completions 接口。
package openai

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	goopenai "github.com/sashabaranov/go-openai"

	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/llm"
)

const (
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 10 * time.Second
	defaultMaxTokens = 150
	defaultRetryWait = 500 * time.Millisecond

	// 最多带入的历史问答与知识条目数。
	maxContextItems = 5
	maxSnippetRunes = 80
)

// CodeProviderFailure 表示大模型接口调用失败。
const CodeProviderFailure xerrors.Code = "LLM_PROVIDER_FAILURE"

func init() {
	xerrors.Register(CodeProviderFailure, xerrors.Attributes{
		Message:  "llm provider failure",
		Severity: xerrors.SeverityWarning,
	})
}

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	// MaxRetries 为限流或服务端错误时的额外重试次数。
	MaxRetries int
	RetryWait  time.Duration
	// JSONMode 要求服务端返回 JSON 对象，部分兼容接口不支持。
	JSONMode   bool
	HTTPClient *http.Client
}

// Client 实现 llm.Client。
type Client struct {
	api        *goopenai.Client
	model      string
	maxTokens  int
	maxRetries int
	retryWait  time.Duration
	jsonMode   bool
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未提供 OpenAI API Key")
	}

	clientConfig := goopenai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: cmp.Or(max(cfg.Timeout, 0), defaultTimeout)}
	}

	return &Client{
		api:        goopenai.NewClientWithConfig(clientConfig),
		model:      cmp.Or(strings.TrimSpace(cfg.Model), defaultModelName),
		maxTokens:  cmp.Or(max(cfg.MaxTokens, 0), defaultMaxTokens),
		maxRetries: max(cfg.MaxRetries, 0),
		retryWait:  cmp.Or(max(cfg.RetryWait, 0), defaultRetryWait),
		jsonMode:   cfg.JSONMode,
	}, nil
}

// Generate 调用 OpenAI 生成结构化回复，回复按 MaxWords 截断。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "提示词不能为空")
	}

	completion := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(req),
		Temperature: 0.2,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		completion.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	content, err := c.complete(ctx, completion)
	if err != nil {
		return nil, err
	}
	out := parseStructured(content)
	out.Reply = llm.LimitWords(out.Reply, req.MaxWords)
	return out, nil
}

// complete 发送请求，对 429 与 5xx 按线性间隔重试。
func (c *Client) complete(ctx context.Context, req goopenai.ChatCompletionRequest) (string, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", xerrors.New(CodeProviderFailure, "OpenAI 响应中没有有效的 choices")
			}
			content := strings.TrimSpace(resp.Choices[0].Message.Content)
			if content == "" {
				return "", xerrors.New(CodeProviderFailure, "OpenAI 响应内容为空")
			}
			return content, nil
		}

		status := statusCode(err)
		if attempt >= c.maxRetries || !transient(status) {
			return "", xerrors.Wrap(CodeProviderFailure, err, "请求 OpenAI 失败",
				xerrors.WithMetadata("model", c.model),
				xerrors.WithMetadata("status", fmt.Sprint(status)),
			)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.retryWait):
		}
	}
}

func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func transient(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

const systemPrompt = "" +
	"You are a helpful assistant. Provide concise, accurate answers. " +
	"If asked to summarize in a specific number of words, follow that constraint exactly. " +
	"Always respond with a compact JSON object: {\"thought\": string, \"reply\": string}."

// buildMessages 把知识条目放进系统消息，把历史问答还原成对话轮次。
func buildMessages(req llm.Request) []goopenai.ChatCompletionMessage {
	system := systemPrompt
	if len(req.Knowledge) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n\nReference notes:")
		for i, card := range req.Knowledge[:min(len(req.Knowledge), maxContextItems)] {
			fmt.Fprintf(&b, "\n[%d] %s: %s", i+1, strings.TrimSpace(card.Title), truncate(card.Content))
		}
		system = b.String()
	}

	messages := []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleSystem, Content: system}}
	history := req.History
	if len(history) > maxContextItems {
		history = history[len(history)-maxContextItems:]
	}
	for _, entry := range history {
		messages = append(messages,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: truncate(entry.Query)},
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: truncate(entry.Answer)},
		)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if req.MaxWords > 0 {
		prompt += fmt.Sprintf("\nAnswer in at most %d words.", req.MaxWords)
	}
	return append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})
}

// parseStructured 解析 {"thought","reply"} 结构，必要时修复 JSON；失败则将全文视为回复。
func parseStructured(content string) *llm.Response {
	var structured struct {
		Thought string `json:"thought"`
		Reply   string `json:"reply"`
	}
	raw := stripFence(content)
	if !decodeLenient(raw, &structured) || strings.TrimSpace(structured.Reply) == "" {
		return &llm.Response{Reply: content}
	}
	return &llm.Response{
		Thought: strings.TrimSpace(structured.Thought),
		Reply:   strings.TrimSpace(structured.Reply),
	}
}

func decodeLenient(raw string, out any) bool {
	if !strings.HasPrefix(raw, "{") {
		return false
	}
	if json.Unmarshal([]byte(raw), out) == nil {
		return true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	return err == nil && json.Unmarshal([]byte(repaired), out) == nil
}

func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(content, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		content = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	}
	return strings.TrimSpace(content)
}

func truncate(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > maxSnippetRunes {
		return string(runes[:maxSnippetRunes]) + "..."
	}
	return string(runes)
}
