package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier 将告警事件以 JSON 形式 POST 到指定地址。
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier 创建 WebhookNotifier，timeout 非正时使用 5 秒。
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{URL: strings.TrimSpace(url), Client: &http.Client{Timeout: timeout}}
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送告警事件。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	return n.post(ctx, event)
}

// Send 实现 DingTalkSender，以 {"msgtype":"text"} 格式发送。
func (n *WebhookNotifier) Send(ctx context.Context, content string) error {
	return n.post(ctx, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

// SlackWebhook 通过 Slack incoming webhook 发送消息，实现 SlackSender。
type SlackWebhook struct {
	*WebhookNotifier
}

// NewSlackWebhook 创建 Slack webhook 发送器。
func NewSlackWebhook(url string, timeout time.Duration) *SlackWebhook {
	return &SlackWebhook{WebhookNotifier: NewWebhookNotifier(url, timeout)}
}

// Send 以 {"channel","text"} 格式发送，channel 为空时使用 webhook 默认频道。
func (s *SlackWebhook) Send(ctx context.Context, channel, content string) error {
	payload := map[string]string{"text": content}
	if channel != "" {
		payload["channel"] = channel
	}
	return s.post(ctx, payload)
}

func (n *WebhookNotifier) post(ctx context.Context, payload any) error {
	if n == nil || n.URL == "" {
		return fmt.Errorf("webhook 地址未配置")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化告警失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造告警请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送告警失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("告警接收方返回状态码 %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier       = (*WebhookNotifier)(nil)
	_ DingTalkSender = (*WebhookNotifier)(nil)
	_ SlackSender    = (*SlackWebhook)(nil)
)
