package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"QueryChain/internal/normalize"
	"QueryChain/pkg/logger"
)

// EnvConfigPath 指定主配置文件路径的环境变量。
const EnvConfigPath = "QUERYCHAIN_CONFIG"

// DefaultConfigPath 是未设置环境变量时使用的配置文件。
const DefaultConfigPath = "configs/querychain.json"

// Config 描述了 QueryChain 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Queue      QueueConfig      `json:"queue"`
	LLM        LLMConfig        `json:"llm"`
	Normalizer NormalizerConfig `json:"normalizer"`
	Logging    logger.Config    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Alerting   AlertingConfig   `json:"alerting"`
	Tools      ToolsConfig      `json:"tools"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address               string `json:"address"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// RequestTimeout 返回单个 HTTP 请求的处理超时。
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// StorageConfig 描述问答历史与任务状态的存储后端。
type StorageConfig struct {
	History   HistoryConfig   `json:"history"`
	TaskStore TaskStoreConfig `json:"task_store"`
}

// HistoryConfig 选择问答历史仓库，driver 取值 memory 或 mysql。
type HistoryConfig struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// TaskStoreConfig 选择任务状态存储，driver 取值 memory 或 mysql。
type TaskStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述异步任务队列与消费者参数。
type QueueConfig struct {
	Driver     string `json:"driver"`
	Size       int    `json:"size"`
	Workers    int    `json:"workers"`
	MaxRetries int    `json:"max_retries"`
	// RetryBackoffMillis 为首次重投前的等待，之后按倍数增长，上限 RetryBackoffMaxMillis。
	RetryBackoffMillis    int            `json:"retry_backoff_ms"`
	RetryBackoffMaxMillis int            `json:"retry_backoff_max_ms"`
	Redis                 RedisConfig    `json:"redis"`
	RabbitMQ              RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis list 队列。
type RedisConfig struct {
	Address          string `json:"address"`
	PasswordEnv      string `json:"password_env"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// Password 从环境变量读取 Redis 密码。
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// RabbitMQConfig 描述 RabbitMQ 队列。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// LLMConfig 用于配置文本生成工具与兜底回答使用的大模型。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口。API Key 只从环境变量读取。
type OpenAIConfig struct {
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxTokens      int    `json:"max_tokens"`
	MaxRetries     int    `json:"max_retries"`
	JSONMode       bool   `json:"json_mode"`
}

// APIKey 返回环境变量中的 API Key。
func (o OpenAIConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(o.APIKeyEnv))
}

// Timeout 返回单次调用超时。
func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// NormalizerConfig 选择规范化预设并允许覆盖规则。
type NormalizerConfig struct {
	Preset        string            `json:"preset"`
	Corrections   map[string]string `json:"corrections"`
	Abbreviations map[string]string `json:"abbreviations"`
	Stages        map[string]bool   `json:"stages"`
}

// Build 根据配置构造规范化器。
func (n NormalizerConfig) Build() (*normalize.Normalizer, error) {
	preset, err := normalize.ParsePreset(n.Preset)
	if err != nil {
		return nil, err
	}
	opts := []normalize.Option{
		normalize.WithCorrections(n.Corrections),
		normalize.WithAbbreviations(n.Abbreviations),
	}
	for stage, on := range n.Stages {
		opts = append(opts, normalize.WithStage(normalize.Stage(stage), on))
	}
	return normalize.New(preset, opts...)
}

// MetricsConfig 控制 Prometheus 指标的暴露方式。Address 为空时指标挂在 API 的 /metrics 上。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// AlertingConfig 描述告警渠道，未配置的渠道不会启用。
type AlertingConfig struct {
	WebhookURL      string `json:"webhook_url"`
	DingTalkWebhook string `json:"dingtalk_webhook"`
	SlackWebhook    string `json:"slack_webhook"`
	SlackChannel    string `json:"slack_channel"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	// MinSeverity 取 info、warning 或 critical，低于该级别的事件不发送。
	MinSeverity           string `json:"min_severity"`
	SuppressWindowSeconds int    `json:"suppress_window_seconds"`
}

// SuppressWindow 返回重复告警的压制窗口。
func (a AlertingConfig) SuppressWindow() time.Duration {
	return time.Duration(a.SuppressWindowSeconds) * time.Second
}

// Timeout 返回告警请求超时。
func (a AlertingConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ToolsConfig 指向工具数据与知识库文件。
type ToolsConfig struct {
	DataPath            string `json:"data_path"`
	KnowledgePath       string `json:"knowledge_path"`
	KnowledgeMaxResults int    `json:"knowledge_max_results"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir             string `json:"data_dir"`
	QueryTimeoutSeconds int    `json:"query_timeout_seconds"`
}

// QueryTimeout 返回单次问答的执行超时。
func (r RuntimeConfig) QueryTimeout() time.Duration {
	return time.Duration(r.QueryTimeoutSeconds) * time.Second
}

// PathFromEnv 返回环境变量指定的配置路径，未设置时返回默认值。
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultConfigPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置，相对路径以 baseDir 为准。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = 30
	}

	if c.Storage.History.Driver == "" {
		c.Storage.History.Driver = "memory"
	}
	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 256
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = 3
	}
	if c.Queue.RetryBackoffMillis > 0 && c.Queue.RetryBackoffMaxMillis <= 0 {
		c.Queue.RetryBackoffMaxMillis = 30 * c.Queue.RetryBackoffMillis
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "none"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Runtime.QueryTimeoutSeconds <= 0 {
		c.Runtime.QueryTimeoutSeconds = 10
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	c.Tools.DataPath = resolve(baseDir, c.Tools.DataPath)
	c.Tools.KnowledgePath = resolve(baseDir, c.Tools.KnowledgePath)
	if c.Tools.KnowledgeMaxResults <= 0 {
		c.Tools.KnowledgeMaxResults = 3
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func (c *Config) validate() error {
	switch c.Storage.History.Driver {
	case "memory":
	case "mysql":
		if c.Storage.History.DSN == "" {
			return errors.New("storage.history 使用 mysql 时必须配置 dsn")
		}
	default:
		return fmt.Errorf("未知的历史存储驱动: %s", c.Storage.History.Driver)
	}
	switch c.Storage.TaskStore.Driver {
	case "memory":
	case "mysql":
		if c.Storage.TaskStore.DSN == "" {
			return errors.New("storage.task_store 使用 mysql 时必须配置 dsn")
		}
	default:
		return fmt.Errorf("未知的任务存储驱动: %s", c.Storage.TaskStore.Driver)
	}
	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.Redis.Address == "" {
			return errors.New("queue.redis.address 不能为空")
		}
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			return errors.New("queue.rabbitmq.url 不能为空")
		}
	default:
		return fmt.Errorf("未知的任务队列驱动: %s", c.Queue.Driver)
	}
	switch c.LLM.Provider {
	case "none", "openai":
	default:
		return fmt.Errorf("未知的大模型提供方: %s", c.LLM.Provider)
	}
	switch c.Alerting.MinSeverity {
	case "", "info", "warning", "critical":
	default:
		return fmt.Errorf("未知的告警级别: %s", c.Alerting.MinSeverity)
	}
	if _, err := normalize.ParsePreset(c.Normalizer.Preset); err != nil {
		return err
	}
	return nil
}
