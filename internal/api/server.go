package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"QueryChain/internal/agent"
	"QueryChain/internal/observability/metrics"
	"QueryChain/internal/storage/mysql"
	"QueryChain/internal/task"
	"QueryChain/pkg/logger"
)

// Answerer 定义了 API 所需的问答能力，由 agent.Agent 实现。
type Answerer interface {
	Resolve(ctx context.Context, query string) (*agent.Outcome, error)
	ListHistory(ctx context.Context, limit int) ([]mysql.HistoryRecord, error)
}

// Server 负责暴露 REST 接口，供外部提交问题与查询任务。
type Server struct {
	addr           string
	answerer       Answerer
	tasks          *task.Service
	requestTimeout time.Duration
	exposeMetrics  bool
	queueDepth     task.DepthReporter
	logger         *slog.Logger
}

// Option 定义可选的服务配置。
type Option func(*Server)

// WithRequestTimeout 限制单个请求的处理时间。
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = timeout
	}
}

// WithMetricsEndpoint 在 /metrics 暴露 Prometheus 指标。
func WithMetricsEndpoint(enabled bool) Option {
	return func(s *Server) {
		s.exposeMetrics = enabled
	}
}

// WithQueueDepth 让健康检查报告队列积压。
func WithQueueDepth(reporter task.DepthReporter) Option {
	return func(s *Server) {
		s.queueDepth = reporter
	}
}

// WithLogger 指定请求日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。answerer 与 tasks 均可为空，对应接口返回 503。
func NewServer(addr string, answerer Answerer, tasks *task.Service, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		answerer: answerer,
		tasks:    tasks,
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "/api/v1/answer", s.handleAnswer)
	s.route(mux, "/api/v1/tasks", s.handleTasks)
	s.route(mux, "/api/v1/tasks/", s.handleTaskDetail)
	s.route(mux, "/api/v1/history", s.handleHistory)
	s.route(mux, "/healthz", s.handleHealth)
	if s.exposeMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// route 以统一的超时与指标包装处理函数。
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, handler))
}

func (s *Server) instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		if s.requestTimeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		elapsed := time.Since(started)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, elapsed)
		s.logger.Debug("请求完成",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", elapsed),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
