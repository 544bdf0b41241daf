package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	xerrors "QueryChain/internal/errors"
	"QueryChain/internal/observability/metrics"
	"QueryChain/pkg/logger"
)

// DefaultMaxQueryLength 是单个问题允许的最大字符数。
const DefaultMaxQueryLength = 2000

// Service 负责提交问答任务与查询任务状态。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
	maxQuery   int
	newID      func() string
}

// ServiceOption 调整 Service 的行为。
type ServiceOption func(*Service)

// WithMaxQueryLength 覆盖问题长度上限，n <= 0 时不限制。
func WithMaxQueryLength(n int) ServiceOption {
	return func(s *Service) { s.maxQuery = n }
}

// WithIDGenerator 替换任务 ID 生成器，默认使用 UUIDv4。
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService 构造任务服务，maxRetries 为每个任务允许的最大执行次数。
func NewService(store Store, producer Producer, maxRetries int, opts ...ServiceOption) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	s := &Service{
		store:      store,
		producer:   producer,
		maxRetries: maxRetries,
		maxQuery:   DefaultMaxQueryLength,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) validate(req Request) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return xerrors.New(CodeTaskValidation, "问题不能为空")
	}
	if s.maxQuery > 0 && utf8.RuneCountInString(query) > s.maxQuery {
		return xerrors.New(CodeTaskValidation, fmt.Sprintf("问题长度超过 %d 个字符", s.maxQuery))
	}
	return nil
}

// Submit 创建问答任务并投递到队列。带 ID 的重复提交直接返回已有任务，不会重复入队。
func (s *Service) Submit(ctx context.Context, req Request) (*Task, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	taskID := strings.TrimSpace(req.ID)
	if taskID == "" {
		taskID = s.newID()
	} else if existing, err := s.existing(ctx, taskID); err != nil || existing != nil {
		return existing, err
	}

	task := &Task{
		ID:         taskID,
		Query:      req.Query,
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if !stdErrors.Is(err, ErrTaskConflict) {
			return nil, err
		}
		// 并发提交同一 ID 时以先写入的一方为准。
		if existing, getErr := s.existing(ctx, taskID); getErr != nil || existing != nil {
			return existing, getErr
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, taskID); err != nil {
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		logger.L().Error("任务入队失败", slog.String("task_id", taskID), slog.Any("error", err))
		if markErr := s.store.MarkFailed(ctx, taskID, CodeTaskPublish, wrapped.Error(), true); markErr != nil {
			logger.L().Warn("记录入队失败状态出错", slog.String("task_id", taskID), slog.Any("error", markErr))
		}
		metrics.ObserveTask(string(StatusFailed))
		return nil, wrapped
	}
	metrics.ObserveTask(string(StatusPending))
	logger.Audit().Info("任务入队成功",
		slog.String("task_id", taskID),
		slog.String("query", task.Query),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// existing 返回已存在的任务；任务不存在时返回 (nil, nil)。
func (s *Service) existing(ctx context.Context, id string) (*Task, error) {
	task, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return task, nil
	case stdErrors.Is(err, ErrTaskNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 关闭存储与队列，返回遇到的第一个错误。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询任务直到其不再变化或 ctx 取消。失败后仍有重试次数的任务不算结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
