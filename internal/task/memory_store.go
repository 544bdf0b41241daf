package task

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	xerrors "QueryChain/internal/errors"
)

// MemoryStore 以内存方式保存任务状态，主要用于测试与单机部署。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() int64
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*Task),
		now:   func() int64 { return time.Now().Unix() },
	}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	switch {
	case task == nil:
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	case task.ID == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.ID]; exists {
		return ErrTaskConflict
	}
	task.UpdatedAt = m.now()
	if task.CreatedAt == 0 {
		task.CreatedAt = task.UpdatedAt
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get 返回任务副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if task, ok := m.tasks[id]; ok {
		return cloneTask(task), nil
	}
	return nil, ErrTaskNotFound
}

// mutate 在写锁内修改任务并刷新更新时间。fn 返回错误时不刷新。
func (m *MemoryStore) mutate(id string, fn func(*Task) error) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if err := fn(task); err != nil {
		return cloneTask(task), err
	}
	task.UpdatedAt = m.now()
	return cloneTask(task), nil
}

// Claim 将任务置为运行中并累加尝试次数。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Task, error) {
	return m.mutate(id, func(task *Task) error {
		if err := claimable(task); err != nil {
			return err
		}
		task.Status = StatusRunning
		task.Attempts++
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
}

// claimable 判断任务能否被再次领取。
func claimable(task *Task) error {
	switch {
	case task.Status == StatusSucceeded:
		return ErrTaskCompleted
	case task.Status == StatusRunning:
		return ErrTaskConflict
	case task.Attempts >= task.MaxRetries:
		return ErrTaskExhausted
	}
	return nil
}

// MarkSucceeded 记录回答结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result ExecutionResult) error {
	_, err := m.mutate(id, func(task *Task) error {
		task.Status = StatusSucceeded
		task.Result = &result
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
	return err
}

// MarkFailed 标记任务失败。terminal 为 true 时把 MaxRetries 收紧到当前尝试次数，任务不再被领取。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	_, err := m.mutate(id, func(task *Task) error {
		task.Status = StatusFailed
		task.LastError = lastError
		task.ErrorCode = string(code)
		if terminal {
			task.MaxRetries = min(task.MaxRetries, task.Attempts)
		}
		return nil
	})
	return err
}

// List 返回符合过滤条件的任务，默认按更新时间倒序。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	m.mu.RLock()
	results := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if opts.matches(task) {
			results = append(results, cloneTask(task))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b *Task) int {
		order := cmp.Or(
			cmp.Compare(b.UpdatedAt, a.UpdatedAt),
			cmp.Compare(b.CreatedAt, a.CreatedAt),
			strings.Compare(b.ID, a.ID),
		)
		if opts.Order == SortByUpdatedAsc {
			return -order
		}
		return order
	})

	if opts.Offset >= len(results) {
		return []*Task{}, nil
	}
	results = results[opts.Offset:]
	return results[:min(len(results), opts.Limit)], nil
}

// Stats 统计符合过滤条件的任务。Limit 与 Offset 不参与统计。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats TaskStats
	for _, task := range m.tasks {
		if opts.matches(task) {
			stats.add(task)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneTask(task *Task) *Task {
	clone := *task
	if task.Result != nil {
		result := *task.Result
		clone.Result = &result
	}
	clone.Metadata = cloneMetadata(task.Metadata)
	return &clone
}

// matches 在内存中复现 MySQL 过滤子句的语义。
func (o ListOptions) matches(task *Task) bool {
	switch {
	case len(o.Statuses) > 0 && !slices.Contains(o.Statuses, task.Status):
		return false
	case o.UpdatedGTE > 0 && task.UpdatedAt < o.UpdatedGTE:
		return false
	case o.UpdatedLTE > 0 && task.UpdatedAt > o.UpdatedLTE:
		return false
	case o.HasResult != nil && task.Result.Empty() == *o.HasResult:
		return false
	}
	if len(o.Outcomes) > 0 || o.Pattern != "" {
		if task.Result == nil {
			return false
		}
		if len(o.Outcomes) > 0 && !slices.ContainsFunc(o.Outcomes, equalFold(task.Result.Outcome)) {
			return false
		}
		if o.Pattern != "" && !strings.EqualFold(task.Result.Pattern, o.Pattern) {
			return false
		}
	}
	return o.Query == "" || matchesQuery(task, o.Query)
}

func equalFold(target string) func(string) bool {
	return func(v string) bool { return strings.EqualFold(v, target) }
}

func matchesQuery(task *Task, query string) bool {
	query = strings.ToLower(query)
	fields := []string{task.ID, task.Query, task.LastError}
	if task.Result != nil {
		fields = append(fields, task.Result.Answer, task.Result.Pattern)
	}
	return slices.ContainsFunc(fields, func(field string) bool {
		return strings.Contains(strings.ToLower(field), query)
	})
}

var _ Store = (*MemoryStore)(nil)
