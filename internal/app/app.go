// Package app assembles the answering stack from configuration. Both the
// daemon and the CLI build their agent here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"QueryChain/internal/agent"
	"QueryChain/internal/config"
	"QueryChain/internal/engine"
	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/fallback"
	"QueryChain/internal/knowledge"
	"QueryChain/internal/llm"
	"QueryChain/internal/llm/openai"
	"QueryChain/internal/observability/alerting"
	"QueryChain/internal/pattern"
	"QueryChain/internal/storage/mysql"
	"QueryChain/internal/tools"
	"QueryChain/pkg/logger"
)

// Options 控制组装过程中的可选部分。
type Options struct {
	// WithoutHistory 跳过历史仓库，CLI 单次问答使用。
	WithoutHistory bool
	Alerter        alerting.Dispatcher
	Logger         *slog.Logger
}

// Stack 是组装完成的问答栈。
type Stack struct {
	Agent   *agent.Agent
	History mysql.HistoryRepository
	LLM     llm.Client
}

// Close 释放历史仓库。
func (s *Stack) Close() error {
	if s == nil || s.History == nil {
		return nil
	}
	return s.History.Close()
}

// Build 根据配置创建 Agent 及其依赖。
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("配置不能为空")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("app")
	}

	llmClient, err := NewLLMClient(cfg.LLM)
	if err != nil {
		return nil, err
	}

	data, err := config.LoadToolData(cfg.Tools.DataPath)
	if err != nil {
		return nil, err
	}
	cities := data.CityTable()

	var currencyOpts []tools.CurrencyOption
	if live := data.LiveSource(); live != nil {
		currencyOpts = append(currencyOpts, tools.WithLiveRates(live))
		log.Info("已启用实时汇率")
	}

	kb := knowledge.NewStaticProvider(nil, cfg.Tools.KnowledgeMaxResults)
	if cfg.Tools.KnowledgePath != "" {
		kb, err = knowledge.LoadStaticProvider(cfg.Tools.KnowledgePath, cfg.Tools.KnowledgeMaxResults)
		if err != nil {
			return nil, err
		}
	}

	registry, err := tools.NewRegistry(
		tools.NewCalculator(),
		tools.NewWeather(cities),
		tools.NewCurrency(data.RateTable(), currencyOpts...),
		tools.NewKnowledge(kb),
		tools.NewTextGen(llmClient),
	)
	if err != nil {
		return nil, err
	}
	registry.Seal()
	patterns, err := pattern.Default(cities)
	if err != nil {
		return nil, err
	}
	normalizer, err := cfg.Normalizer.Build()
	if err != nil {
		return nil, err
	}

	var responder fallback.Responder = fallback.Static{}
	if llmClient != nil {
		responder = fallback.NewLLM(llmClient)
	}

	stack := &Stack{LLM: llmClient}
	agentOpts := []agent.Option{
		agent.WithNormalizer(normalizer),
		agent.WithFallback(responder),
		agent.WithTimeout(cfg.Runtime.QueryTimeout()),
	}
	if opts.Alerter != nil {
		agentOpts = append(agentOpts, agent.WithAlertDispatcher(opts.Alerter))
	}
	if !opts.WithoutHistory {
		history, err := NewHistory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		stack.History = history
		agentOpts = append(agentOpts, agent.WithHistory(history))
	}

	ag, err := agent.New(patterns, engine.New(registry), agentOpts...)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}
	stack.Agent = ag
	log.Info("问答栈已就绪",
		slog.Int("patterns", len(patterns.Patterns())),
		slog.Int("cities", cities.Len()),
		slog.Int("knowledge_entries", kb.Len()),
		slog.Bool("llm", llmClient != nil),
	)
	return stack, nil
}

// NewLLMClient 根据配置创建大模型客户端，provider 为 none 时返回 nil。
func NewLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		apiKey := cfg.OpenAI.APIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI provider 需要在环境变量 %s 中提供 API Key", cfg.OpenAI.APIKeyEnv)
		}
		return openai.NewClient(openai.Config{
			APIKey:     apiKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			Timeout:    cfg.OpenAI.Timeout(),
			MaxTokens:  cfg.OpenAI.MaxTokens,
			MaxRetries: cfg.OpenAI.MaxRetries,
			JSONMode:   cfg.OpenAI.JSONMode,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.Provider)
	}
}

// NewHistory 根据配置创建问答历史仓库。
func NewHistory(ctx context.Context, cfg *config.Config) (mysql.HistoryRepository, error) {
	switch cfg.Storage.History.Driver {
	case "", "memory":
		if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
			return nil, err
		}
		return mysql.NewMemoryHistoryRepository(cfg.Runtime.DataDir)
	case "mysql":
		return mysql.NewSQLHistoryRepository(ctx, mysql.Config{
			DSN:          cfg.Storage.History.DSN,
			MaxOpenConns: cfg.Storage.History.MaxOpenConns,
			MaxIdleConns: cfg.Storage.History.MaxIdleConns,
		})
	default:
		return nil, fmt.Errorf("未知的历史存储驱动: %s", cfg.Storage.History.Driver)
	}
}

// NewAlerter 根据配置组装告警渠道并套上级别过滤与去重。审计日志渠道总是启用。
func NewAlerter(cfg config.AlertingConfig) *alerting.FilterDispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout()))
	}
	if cfg.DingTalkWebhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{Sender: alerting.NewWebhookNotifier(cfg.DingTalkWebhook, cfg.Timeout())})
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhook(cfg.SlackWebhook, cfg.Timeout()),
			ChannelID: cfg.SlackChannel,
		})
	}
	return alerting.NewFilter(alerting.NewFanout(notifiers...), xerrors.Severity(cfg.MinSeverity), cfg.SuppressWindow())
}
