package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	xerrors "QueryChain/internal/errors"
	"QueryChain/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog      Channel = "log"
	ChannelWebhook  Channel = "webhook"
	ChannelDingTalk Channel = "dingtalk"
	ChannelSlack    Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code      `json:"code"`
	Message    string            `json:"message"`
	Severity   xerrors.Severity  `json:"severity"`
	QueryID    string            `json:"query_id,omitempty"`
	TaskID     string            `json:"task_id,omitempty"`
	Attempts   int               `json:"attempts,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// EventFromError 根据统一错误构造告警事件。
func EventFromError(err error) Event {
	event := Event{
		Code:       xerrors.CodeOf(err),
		Severity:   xerrors.SeverityOf(err),
		OccurredAt: time.Now(),
	}
	if err != nil {
		event.Message = err.Error()
	}
	if e, ok := xerrors.From(err); ok {
		event.Metadata = e.Metadata()
	}
	return event
}

// key 标识同一类告警：同一错误码、同一任务、同一阶段。
func (e Event) key() string {
	return string(e.Code) + "|" + e.TaskID + "|" + e.Metadata["stage"]
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 是处理器与 Agent 依赖的告警出口。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 把事件并发投递到每个渠道。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建 FanoutDispatcher，同一渠道后注册的通知器覆盖先注册的。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			set[n.Channel()] = n
		}
	}
	return &FanoutDispatcher{notifiers: set}
}

// Channels 返回已注册的渠道，按字典序排列。
func (d *FanoutDispatcher) Channels() []Channel {
	if d == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(d.notifiers))
}

// Notify 等待所有渠道返回，失败的渠道按名称顺序合并为一个错误。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil || len(d.notifiers) == 0 {
		return nil
	}
	channels := d.Channels()
	errs := make([]error, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.notifiers[ch].Notify(ctx, event); err != nil {
				errs[i] = fmt.Errorf("channel %s: %w", ch, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// FilterDispatcher 丢弃低于阈值的事件，并在窗口期内压制重复告警。
type FilterDispatcher struct {
	next        Dispatcher
	minSeverity xerrors.Severity
	window      time.Duration
	now         func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewFilter 包装 next。minSeverity 为空表示不过滤级别，window 非正表示不去重。
func NewFilter(next Dispatcher, minSeverity xerrors.Severity, window time.Duration) *FilterDispatcher {
	return &FilterDispatcher{
		next:        next,
		minSeverity: minSeverity,
		window:      window,
		now:         time.Now,
		seen:        make(map[string]time.Time),
	}
}

// Channels 返回被包装派发器的渠道。
func (f *FilterDispatcher) Channels() []Channel {
	if lister, ok := f.next.(interface{ Channels() []Channel }); ok {
		return lister.Channels()
	}
	return nil
}

// Notify 实现 Dispatcher。
func (f *FilterDispatcher) Notify(ctx context.Context, event Event) error {
	if f == nil || f.next == nil {
		return nil
	}
	if rank(event.Severity) < rank(f.minSeverity) {
		return nil
	}
	if f.window > 0 && f.suppressed(event) {
		logger.L().Debug("重复告警已压制", slog.String("code", string(event.Code)), slog.String("task_id", event.TaskID))
		return nil
	}
	return f.next.Notify(ctx, event)
}

func (f *FilterDispatcher) suppressed(event Event) bool {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, at := range f.seen {
		if now.Sub(at) >= f.window {
			delete(f.seen, k)
		}
	}
	key := event.key()
	if _, dup := f.seen[key]; dup {
		return true
	}
	f.seen[key] = now
	return false
}

func rank(sev xerrors.Severity) int {
	switch sev {
	case xerrors.SeverityCritical:
		return 2
	case xerrors.SeverityWarning:
		return 1
	}
	return 0
}

// LogNotifier 将告警写入审计日志。
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel 返回日志渠道。
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify 写入一条审计日志。
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	log := logger.Audit()
	if n != nil && n.Logger != nil {
		log = n.Logger
	}
	attrs := []slog.Attr{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("message", event.Message),
	}
	if event.QueryID != "" {
		attrs = append(attrs, slog.String("query_id", event.QueryID))
	}
	if event.TaskID != "" {
		attrs = append(attrs, slog.String("task_id", event.TaskID), slog.Int("attempts", event.Attempts))
	}
	for _, k := range slices.Sorted(maps.Keys(event.Metadata)) {
		attrs = append(attrs, slog.String(k, event.Metadata[k]))
	}
	log.LogAttrs(ctx, slog.LevelWarn, "alert", attrs...)
	return nil
}

// DingTalkSender 负责向钉钉机器人发送消息。
type DingTalkSender interface {
	Send(ctx context.Context, content string) error
}

// DingTalkNotifier 通过钉钉机器人发送告警。
type DingTalkNotifier struct {
	Sender DingTalkSender
}

// Channel 返回钉钉渠道。
func (n *DingTalkNotifier) Channel() Channel { return ChannelDingTalk }

// Notify 发送钉钉消息，未配置发送器时跳过。
func (n *DingTalkNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil {
		skip(ChannelDingTalk, event)
		return nil
	}
	return n.Sender.Send(ctx, describe(event))
}

// SlackSender 负责向 Slack 渠道发送消息。
type SlackSender interface {
	Send(ctx context.Context, channel, content string) error
}

// SlackNotifier 通过 Slack 发送告警。
type SlackNotifier struct {
	Sender    SlackSender
	ChannelID string
}

// Channel 返回 Slack 渠道。
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify 发送 Slack 消息，首行加粗。
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChannelID == "" {
		skip(ChannelSlack, event)
		return nil
	}
	text := describe(event)
	head, rest, _ := strings.Cut(text, "\n")
	text = "*" + head + "*"
	if rest != "" {
		text += "\n" + rest
	}
	return n.Sender.Send(ctx, n.ChannelID, text)
}

func skip(ch Channel, event Event) {
	logger.L().Warn("告警渠道未正确配置，跳过发送", slog.String("channel", string(ch)), slog.String("code", string(event.Code)))
}

// describe 生成适合聊天渠道的多行文本。
func describe(event Event) string {
	lines := []string{fmt.Sprintf("[%s] %s: %s", event.Severity, event.Code, event.Message)}
	if event.QueryID != "" {
		lines = append(lines, "查询: "+event.QueryID)
	}
	if event.TaskID != "" {
		lines = append(lines, fmt.Sprintf("任务: %s 重试: %d/%d", event.TaskID, event.Attempts, event.MaxRetries))
	}
	for _, k := range slices.Sorted(maps.Keys(event.Metadata)) {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, event.Metadata[k]))
	}
	return strings.Join(lines, "\n")
}
