package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"QueryChain/internal/agent"
	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/observability/alerting"
	"QueryChain/internal/observability/metrics"
	"QueryChain/pkg/logger"
)

// Executor 是处理器依赖的问答能力，由 agent.Agent 实现。
type Executor interface {
	Resolve(ctx context.Context, query string) (*agent.Outcome, error)
}

// 告警事件的 stage 取值。
const (
	StageClaim      = "claim"
	StageRetry      = "retry"
	StageTerminal   = "terminal"
	StageDegraded   = "degraded"
	StageCompensate = "compensate"
)

// Processor 从队列消费任务 ID，领取任务后交给 Executor 回答并写回结果。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	backoff     Backoff
}

// Backoff 计算第 attempt 次失败后重新入队前的等待时间。
type Backoff func(attempt int) time.Duration

// ExponentialBackoff 返回 base * 2^(attempt-1)，不超过 max。
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if base <= 0 || attempt <= 0 {
			return 0
		}
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if max > 0 && delay >= max {
				return max
			}
		}
		if max > 0 && delay > max {
			return max
		}
		return delay
	}
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithWorkerCount 设置并发消费者数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置重试耗尽后的补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) { p.recovery = handler }
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) { p.alerter = dispatcher }
}

// WithRetryBackoff 配置失败重投前的等待策略，默认立即重投。
func WithRetryBackoff(backoff Backoff) ProcessorOption {
	return func(p *Processor) { p.backoff = backoff }
}

// NewProcessor 构造 Processor。consumer 与 producer 通常是同一个队列。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 阻塞消费队列直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func resultFromOutcome(outcome *agent.Outcome) ExecutionResult {
	if outcome == nil {
		return ExecutionResult{}
	}
	return ExecutionResult{
		QueryID:    outcome.QueryID,
		Answer:     outcome.Answer,
		Outcome:    string(outcome.Reason),
		Pattern:    outcome.Pattern,
		PlanKind:   outcome.PlanKind,
		Normalized: outcome.Normalized,
	}
}

// retryable 判断失败是否值得重新排队。规则未命中等确定性结果重试也不会改变答案。
func retryable(err error) bool {
	return stdErrors.Is(err, context.DeadlineExceeded) || xerrors.RetryableError(err)
}

// failureCode 把执行错误归到一个错误码上，便于存储与告警。
func failureCode(err error) xerrors.Code {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.CodeTimeout
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeUnknown {
		return code
	}
	return CodeTaskProcessing
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	switch {
	case stdErrors.Is(err, ErrTaskNotFound), stdErrors.Is(err, ErrTaskCompleted), stdErrors.Is(err, ErrTaskExhausted):
		p.debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
		return nil
	case err != nil:
		logger.L().Error("领取任务失败", slog.String("task_id", taskID), slog.Any("error", err))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, StageClaim)
		return err
	}

	outcome, execErr := p.executor.Resolve(ctx, task.Query)
	result := resultFromOutcome(outcome)
	if execErr != nil && retryable(execErr) {
		task.Result = &result
		return p.fail(ctx, task, execErr)
	}
	return p.succeed(ctx, task, result)
}

// succeed 写回答案。确定性兜底（如 no_match）同样视为成功，答案即兜底文本。
func (p *Processor) succeed(ctx context.Context, task *Task, result ExecutionResult) error {
	if err := p.store.MarkSucceeded(ctx, task.ID, result); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.String("task_id", task.ID), slog.Any("error", err))
		if storeErr := p.store.MarkFailed(ctx, task.ID, CodeTaskProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.String("task_id", task.ID), slog.Any("error", storeErr))
			return storeErr
		}
		return p.requeue(ctx, task)
	}
	metrics.ObserveTask(string(StatusSucceeded))
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", task.ID),
		slog.String("query", task.Query),
		slog.String("outcome", result.Outcome),
		slog.String("query_id", result.QueryID),
		slog.Int("attempts", task.Attempts),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, task *Task, execErr error) error {
	code := failureCode(execErr)
	terminal := task.Attempts >= task.MaxRetries

	if terminal {
		if done, err := p.degrade(ctx, task, code, execErr); done || err != nil {
			return err
		}
	}

	if err := p.store.MarkFailed(ctx, task.ID, code, execErr.Error(), terminal); err != nil {
		logger.L().Error("标记任务失败状态出错", slog.String("task_id", task.ID), slog.Any("error", err))
		return err
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("query", task.Query),
		slog.Bool("terminal", terminal),
		slog.String("error_code", string(code)),
		slog.String("error", execErr.Error()),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	if terminal {
		metrics.ObserveTask(string(StatusFailed))
		p.emitAlert(ctx, task, code, execErr, StageTerminal)
		return nil
	}
	p.emitAlert(ctx, task, code, execErr, StageRetry)
	return p.requeue(ctx, task)
}

// degrade 在重试耗尽时尝试用补偿结果完成任务，done 表示任务已经落定。
func (p *Processor) degrade(ctx context.Context, task *Task, code xerrors.Code, execErr error) (done bool, err error) {
	if p.recovery == nil {
		return false, nil
	}
	fallback, recErr := p.recovery.Recover(ctx, task, execErr)
	if recErr != nil {
		wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "任务补偿失败")
		logger.L().Error("执行补偿逻辑失败", slog.String("task_id", task.ID), slog.Any("error", wrapped))
		p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, StageCompensate)
		return false, nil
	}
	if fallback == nil {
		return false, nil
	}
	if err := p.store.MarkSucceeded(ctx, task.ID, *fallback); err != nil {
		logger.L().Error("记录降级结果失败", slog.String("task_id", task.ID), slog.Any("error", err))
		if storeErr := p.store.MarkFailed(ctx, task.ID, code, err.Error(), true); storeErr != nil {
			return true, storeErr
		}
		metrics.ObserveTask(string(StatusFailed))
		return true, nil
	}
	metrics.ObserveTask(string(StatusSucceeded))
	logger.Audit().Warn("任务降级完成",
		slog.String("task_id", task.ID),
		slog.String("query", task.Query),
		slog.String("outcome", fallback.Outcome),
		slog.String("error", execErr.Error()),
	)
	p.emitAlert(ctx, task, code, execErr, StageDegraded)
	return true, nil
}

// requeue 按退避策略等待后重新投递任务。等待期间 ctx 取消时返回 ctx.Err()，
// 任务保持 failed 状态，由队列决定是否重新投递。
func (p *Processor) requeue(ctx context.Context, task *Task) error {
	if p.backoff != nil {
		if delay := p.backoff(task.Attempts); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	if err := p.producer.Publish(ctx, task.ID); err != nil {
		return xerrors.Wrap(CodeTaskPublish, err, fmt.Sprintf("任务 %s 重投失败", task.ID))
	}
	metrics.ObserveTaskRetry()
	p.debug("任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	return nil
}

func (p *Processor) debug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:       code,
		Message:    attrs.Message,
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: time.Now(),
	}
	if cause != nil {
		event.Message = cause.Error()
		event.Metadata["cause"] = cause.Error()
	}
	if task.Result != nil {
		event.QueryID = task.Result.QueryID
		if task.Result.Outcome != "" {
			event.Metadata["outcome"] = task.Result.Outcome
		}
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
			slog.Any("error", err),
		)
	}
}
