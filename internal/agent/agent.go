package agent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"QueryChain/internal/engine"
	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/fallback"
	"QueryChain/internal/normalize"
	"QueryChain/internal/observability/alerting"
	"QueryChain/internal/observability/metrics"
	"QueryChain/internal/pattern"
	"QueryChain/internal/storage/mysql"
	"QueryChain/internal/tools"
	"QueryChain/pkg/logger"
)

// Reason 描述一次问答的结果类别。
type Reason string

const (
	ReasonAnswered            Reason = "answered"
	ReasonNoMatch             Reason = "no_match"
	ReasonParameterExtraction Reason = "parameter_extraction"
	ReasonToolFailure         Reason = "tool_failure"
	ReasonInternalError       Reason = "internal_error"
	ReasonEmptyInput          Reason = "empty_input"
)

// Outcome 汇总一次问答的完整过程。
type Outcome struct {
	QueryID    string             `json:"id"`
	Query      string             `json:"query"`
	Normalized string             `json:"normalized"`
	Answer     string             `json:"answer"`
	Reason     Reason             `json:"outcome"`
	Pattern    string             `json:"pattern,omitempty"`
	PlanKind   string             `json:"plan_kind,omitempty"`
	Plan       string             `json:"plan,omitempty"`
	Steps      []engine.StepTrace `json:"steps,omitempty"`
	ErrorCode  string             `json:"error_code,omitempty"`
	ErrorKind  string             `json:"error_kind,omitempty"`
	Duration   time.Duration      `json:"duration"`
	CreatedAt  int64              `json:"created_at"`
}

// Fallback 判断结果是否来自兜底回答。
func (o *Outcome) Fallback() bool {
	return o != nil && o.Reason != ReasonAnswered
}

// Agent 串联规范化、规则匹配、计划执行与兜底回答，是系统的业务核心。
type Agent struct {
	patterns   *pattern.Registry
	engine     *engine.Engine
	normalizer *normalize.Normalizer
	fallback   fallback.Responder
	history    mysql.HistoryRepository
	alerter    alerting.Dispatcher
	logger     *slog.Logger
	timeout    time.Duration
	newID      func() string
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithNormalizer 替换默认的文本规范化器。
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(a *Agent) {
		if n != nil {
			a.normalizer = n
		}
	}
}

// WithFallback 设置兜底回答的生成方式。
func WithFallback(r fallback.Responder) Option {
	return func(a *Agent) {
		if r != nil {
			a.fallback = r
		}
	}
}

// WithHistory 配置问答历史仓库。
func WithHistory(repo mysql.HistoryRepository) Option {
	return func(a *Agent) {
		a.history = repo
	}
}

// WithAlertDispatcher 配置告警分发器，用于上报编程错误与存储失败。
func WithAlertDispatcher(d alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerter = d
	}
}

// WithLogger 覆盖默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTimeout 限制单次问答的执行时间，非正值表示不限制。
func WithTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.timeout = timeout
	}
}

// WithIDGenerator 替换查询 ID 的生成方式。
func WithIDGenerator(fn func() string) Option {
	return func(a *Agent) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// New 创建一个 Agent。规则表与执行引擎是必需的。
func New(patterns *pattern.Registry, eng *engine.Engine, opts ...Option) (*Agent, error) {
	// 验证必要的组件是否已配置。
	if patterns == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置规则表")
	}
	if eng == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置执行引擎")
	}

	// 初始化 Agent 实例。
	ag := &Agent{
		patterns:   patterns,
		engine:     eng,
		normalizer: normalize.Default(),
		fallback:   fallback.Static{},
		logger:     logger.Named("agent"),
		newID:      uuid.NewString,
	}
	// 应用可选配置。
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag, nil
}

// Answer 返回问题的最终回答，永远不会失败。
func (a *Agent) Answer(ctx context.Context, raw string) string {
	outcome, _ := a.Resolve(ctx, raw)
	return outcome.Answer
}

// Resolve 执行完整的问答流程。返回的 Outcome 总是非空；error 为导致兜底的原因，
// 成功时为 nil。
func (a *Agent) Resolve(ctx context.Context, raw string) (*Outcome, error) {
	started := time.Now()
	outcome := &Outcome{
		QueryID:   a.newID(),
		Query:     raw,
		CreatedAt: started.Unix(),
	}
	log := logger.WithQuery(a.logger, outcome.QueryID)

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// 规范化输入文本。
	normalized := a.normalizer.Apply(raw)
	outcome.Normalized = normalized.Text
	log.Info("query received", slog.String("query", raw), slog.Int("normalizer_changes", len(normalized.Changes)))
	for _, change := range normalized.Changes {
		log.Debug("text normalized", slog.String("stage", string(change.Stage)), slog.String("from", change.From), slog.String("to", change.To))
	}

	err := a.run(ctx, log, outcome)
	if err != nil {
		a.degrade(ctx, log, outcome, err)
	}

	outcome.Duration = time.Since(started)
	log.Info("query complete",
		slog.String("outcome", string(outcome.Reason)),
		slog.String("pattern", outcome.Pattern),
		slog.Duration("duration", outcome.Duration),
	)
	metrics.ObserveQuery(string(outcome.Reason), outcome.Pattern, outcome.PlanKind, outcome.Duration)
	a.record(ctx, log, outcome)
	return outcome, err
}

// run 负责规则匹配、编译与执行，成功时写入回答。
func (a *Agent) run(ctx context.Context, log *slog.Logger, outcome *Outcome) error {
	if outcome.Normalized == "" {
		outcome.Reason = ReasonEmptyInput
		return xerrors.New(xerrors.CodeInvalidArgument, "问题不能为空")
	}

	// 选择规则并编译执行计划。
	p, pat, err := a.patterns.Compile(outcome.Normalized)
	if pat != nil {
		outcome.Pattern = pat.Name()
	}
	if err != nil {
		switch {
		case xerrors.HasCode(err, pattern.CodeNoPatternMatched):
			outcome.Reason = ReasonNoMatch
		case xerrors.HasCode(err, pattern.CodeParameterExtraction):
			outcome.Reason = ReasonParameterExtraction
		default:
			outcome.Reason = ReasonInternalError
		}
		return err
	}
	outcome.PlanKind = string(p.Kind())
	outcome.Plan = p.String()
	log.Info("query parsed", slog.String("pattern", outcome.Pattern), slog.String("plan_kind", outcome.PlanKind), slog.Int("steps", p.Len()))

	// 执行计划。
	result, err := a.engine.Execute(ctx, p)
	if err != nil {
		if xerrors.HasCode(err, tools.CodeToolExecutionFailed) {
			outcome.Reason = ReasonToolFailure
		} else {
			outcome.Reason = ReasonInternalError
		}
		return err
	}

	outcome.Steps = result.Trace
	for _, step := range result.Trace {
		metrics.ObserveStep(step.Tool, step.Operation, step.Duration)
	}
	outcome.Answer = result.Answer
	outcome.Reason = ReasonAnswered
	return nil
}

// degrade 记录失败原因并以兜底回答替代。
func (a *Agent) degrade(ctx context.Context, log *slog.Logger, outcome *Outcome, err error) {
	if outcome.Reason == "" {
		outcome.Reason = ReasonInternalError
	}
	outcome.ErrorCode = string(xerrors.CodeOf(err))
	if kind, ok := tools.KindOf(err); ok {
		outcome.ErrorKind = string(kind)
	}
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
		outcome.ErrorCode = string(xerrors.CodeTimeout)
	}

	attrs := []any{
		slog.String("outcome", string(outcome.Reason)),
		slog.String("code", outcome.ErrorCode),
		slog.Any("error", err),
	}
	switch {
	case xerrors.ShouldAlert(err):
		log.Error("query failed", attrs...)
		a.alert(ctx, outcome, err)
	case outcome.Reason == ReasonToolFailure:
		log.Warn("tool failed, using fallback", attrs...)
	default:
		log.Info("no plan, using fallback", attrs...)
	}

	outcome.Answer = a.fallback.Respond(ctx, outcome.Query)
}

// record 保存问答历史，存储失败只记录日志与告警，不影响回答。
func (a *Agent) record(ctx context.Context, log *slog.Logger, outcome *Outcome) {
	if a.history == nil {
		return
	}
	record := &mysql.HistoryRecord{
		QueryID:    outcome.QueryID,
		Query:      outcome.Query,
		Normalized: outcome.Normalized,
		Answer:     outcome.Answer,
		Outcome:    string(outcome.Reason),
		Pattern:    outcome.Pattern,
		PlanKind:   outcome.PlanKind,
		ErrorCode:  outcome.ErrorCode,
		Steps:      len(outcome.Steps),
		DurationMS: outcome.Duration.Milliseconds(),
		CreatedAt:  outcome.CreatedAt,
	}
	if err := a.history.Save(context.WithoutCancel(ctx), record); err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存问答历史失败")
		log.Error("history save failed", slog.Any("error", wrapped))
		a.alert(ctx, outcome, wrapped)
	}
}

func (a *Agent) alert(ctx context.Context, outcome *Outcome, err error) {
	if a.alerter == nil {
		return
	}
	event := alerting.EventFromError(err)
	event.QueryID = outcome.QueryID
	if notifyErr := a.alerter.Notify(context.WithoutCancel(ctx), event); notifyErr != nil {
		a.logger.Warn("alert dispatch failed", slog.Any("error", notifyErr))
	}
}

// ListHistory 获取最近的问答记录。
func (a *Agent) ListHistory(ctx context.Context, limit int) ([]mysql.HistoryRecord, error) {
	if a.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置历史仓库")
	}
	records, err := a.history.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询问答历史失败")
	}
	return records, nil
}

// OutcomeCounts 按结果类别统计历史问答数量。
func (a *Agent) OutcomeCounts(ctx context.Context) (map[string]int64, error) {
	if a.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置历史仓库")
	}
	counts, err := a.history.CountByOutcome(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计问答历史失败")
	}
	return counts, nil
}
