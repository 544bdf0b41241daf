package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"QueryChain/internal/api"
	"QueryChain/internal/app"
	"QueryChain/internal/config"
	"QueryChain/internal/observability/metrics"
	"QueryChain/internal/storage/mysql"
	"QueryChain/internal/task"
	"QueryChain/pkg/logger"
)

// main 是 QueryChain 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("querychaind 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("加载 .env 失败: %v", err)
	}

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	alerter := app.NewAlerter(cfg.Alerting)
	stack, err := app.Build(ctx, cfg, app.Options{Alerter: alerter})
	if err != nil {
		return err
	}
	defer stack.Close()

	taskStore, err := newTaskStore(ctx, cfg.Storage.TaskStore)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskStore.Close(); err != nil {
			logger.L().Warn("关闭任务存储失败", slog.Any("error", err))
		}
	}()

	taskQueue, err := newTaskQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			logger.L().Warn("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	taskService := task.NewService(taskStore, taskQueue, cfg.Queue.MaxRetries)
	processor := task.NewProcessor(stack.Agent, taskStore, taskQueue, taskQueue,
		task.WithWorkerCount(cfg.Queue.Workers),
		task.WithProcessorLogger(logger.Named("task")),
		task.WithRecoveryHandler(task.FallbackRecovery{}),
		task.WithAlertDispatcher(alerter),
		task.WithRetryBackoff(task.ExponentialBackoff(
			time.Duration(cfg.Queue.RetryBackoffMillis)*time.Millisecond,
			time.Duration(cfg.Queue.RetryBackoffMaxMillis)*time.Millisecond,
		)),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Metrics.Enabled && cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	opts := []api.Option{
		api.WithRequestTimeout(cfg.Server.RequestTimeout()),
		api.WithMetricsEndpoint(cfg.Metrics.Enabled && cfg.Metrics.Address == ""),
	}
	if depth, ok := taskQueue.(task.DepthReporter); ok {
		opts = append(opts, api.WithQueueDepth(depth))
	}
	server := api.NewServer(cfg.Server.Address, stack.Agent, taskService, opts...)

	logger.L().Info("querychaind 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("history", cfg.Storage.History.Driver),
		slog.String("task_store", cfg.Storage.TaskStore.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("llm", cfg.LLM.Provider),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newTaskStore(ctx context.Context, cfg config.TaskStoreConfig) (task.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryStore(), nil
	case "mysql":
		return task.NewMySQLStore(ctx, mysql.Config{DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Driver)
	}
}

func newTaskQueue(ctx context.Context, cfg config.QueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(cfg.Size), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password(),
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的任务队列驱动: %s", cfg.Driver)
	}
}
