package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"QueryChain/internal/storage/mysql"
	"QueryChain/internal/task"
)

type answerRequest struct {
	Query string `json:"query"`
}

// handleAnswer 同步回答一个问题。兜底回答同样返回 200，由 outcome 字段区分。
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 POST")
		return
	}
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "问答服务未初始化")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "请求体解析失败")
		return
	}

	outcome, _ := s.answerer.Resolve(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r)
	case http.MethodGet:
		s.handleListTasks(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET/POST")
	}
}

// handleCreateTask 创建异步问答任务。
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "任务服务未初始化")
		return
	}

	var req task.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "请求体解析失败")
		return
	}

	created, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

type taskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "任务服务未初始化")
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	tasks, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: tasks})
}

// handleTaskDetail 处理 /api/v1/tasks/{id} 与 /api/v1/tasks/stats。
func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET")
		return
	}
	if s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "任务服务未初始化")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "缺少任务 ID")
		return
	}
	if id == "stats" {
		s.handleTaskStats(w, r)
		return
	}

	found, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type historyResponse struct {
	Records []mysql.HistoryRecord `json:"records"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "仅支持 GET")
		return
	}
	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "问答服务未初始化")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.answerer.ListHistory(r.Context(), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: records})
}

type healthResponse struct {
	Status     string `json:"status"`
	Time       int64  `json:"time"`
	QueueDepth *int   `json:"queue_depth,omitempty"`
	QueueError string `json:"queue_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Time: time.Now().Unix()}
	if s.queueDepth != nil {
		depth, err := s.queueDepth.Depth(r.Context())
		if err != nil {
			resp.Status = "degraded"
			resp.QueueError = err.Error()
		} else {
			resp.QueueDepth = &depth
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseListOptions 解析列表查询参数：limit、offset、status、outcome、pattern、has_result、order 与 q。
func parseListOptions(r *http.Request) ([]task.ListOption, error) {
	values := r.URL.Query()
	opts := make([]task.ListOption, 0, 8)

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, errInvalidParam("limit")
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return nil, errInvalidParam("offset")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := values.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.TrimSpace(part))
			if !task.IsValidStatus(status) {
				return nil, errInvalidParam("status")
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := values.Get("has_result"); raw != "" {
		hasResult, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errInvalidParam("has_result")
		}
		opts = append(opts, task.WithResultPresence(hasResult))
	}
	order, ok := task.ParseSortOrder(values.Get("order"))
	if !ok {
		return nil, errInvalidParam("order")
	}
	opts = append(opts, task.WithSortOrder(order))
	if raw := values.Get("outcome"); raw != "" {
		opts = append(opts, task.WithOutcomes(strings.Split(raw, ",")...))
	}
	if pattern := values.Get("pattern"); pattern != "" {
		opts = append(opts, task.WithPattern(pattern))
	}
	if q := values.Get("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}
	return opts, nil
}

type paramError string

func (e paramError) Error() string { return "无效的查询参数: " + string(e) }

func errInvalidParam(name string) error { return paramError(name) }
