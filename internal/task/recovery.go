package task

import "context"

// RecoveryHandler 定义了在任务重试耗尽时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 ExecutionResult 将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)
}

// RecoverFunc 让普通函数实现 RecoveryHandler。
type RecoverFunc func(ctx context.Context, task *Task, cause error) (*ExecutionResult, error)

// Recover 实现 RecoveryHandler。
func (f RecoverFunc) Recover(ctx context.Context, task *Task, cause error) (*ExecutionResult, error) {
	return f(ctx, task, cause)
}

// FallbackRecovery 在重试耗尽时保留最后一次的兜底回答，使任务仍能交付结果。
type FallbackRecovery struct{}

// Recover 实现 RecoveryHandler。
func (FallbackRecovery) Recover(_ context.Context, task *Task, _ error) (*ExecutionResult, error) {
	if task == nil || task.Result.Empty() {
		return nil, nil
	}
	degraded := *task.Result
	return &degraded, nil
}
