package task

import (
	"strings"
	"time"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SortOrder 决定列表按更新时间的排序方向。
type SortOrder int

const (
	// SortByUpdatedDesc returns the most recently updated tasks first.
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc returns the oldest tasks first.
	SortByUpdatedAsc
)

// ParseSortOrder 解析 "asc"/"desc"，其他取值返回 false。
func ParseSortOrder(raw string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "desc":
		return SortByUpdatedDesc, true
	case "asc":
		return SortByUpdatedAsc, true
	default:
		return SortByUpdatedDesc, false
	}
}

// ListOptions 是任务列表与统计共用的过滤条件。
//
// Outcomes 与 Pattern 作用于已写入的回答结果；未完成的任务不会命中这两个条件。
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Outcomes   []string
	Pattern    string
	UpdatedGTE int64
	UpdatedLTE int64
	HasResult  *bool
	Order      SortOrder
	Query      string
}

func (opts *ListOptions) applyDefaults() {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Statuses = normalizeStatuses(opts.Statuses)
	opts.Outcomes = normalizeOutcomes(opts.Outcomes)
	opts.Pattern = strings.ToLower(strings.TrimSpace(opts.Pattern))
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回条数，超过上限时截断为 100。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset 跳过前 offset 条结果，用于分页。
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses 只保留指定状态的任务。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append([]Status(nil), statuses...)
	}
}

// WithOutcomes 只保留回答结果为指定原因（answered、no_match 等）的任务。
func WithOutcomes(outcomes ...string) ListOption {
	return func(opts *ListOptions) {
		opts.Outcomes = append([]string(nil), outcomes...)
	}
}

// WithPattern 只保留由指定规则回答的任务。
func WithPattern(name string) ListOption {
	return func(opts *ListOptions) { opts.Pattern = name }
}

// WithUpdatedSince 只保留在 ts 之后（含）更新过的任务。
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedGTE = unixOrZero(ts) }
}

// WithUpdatedUntil 只保留在 ts 之前（含）更新过的任务。
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedLTE = unixOrZero(ts) }
}

// WithResultPresence 按是否已有回答结果过滤。
func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) {
		opts.HasResult = &hasResult
	}
}

// WithSortOrder 修改排序方向。
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// WithQuery 在任务 ID、问题文本、错误信息与回答中做模糊匹配。
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}

func normalizeStatuses(input []Status) []Status {
	var result []Status
	seen := make(map[Status]bool, len(input))
	for _, status := range input {
		if !IsValidStatus(status) || seen[status] {
			continue
		}
		seen[status] = true
		result = append(result, status)
	}
	return result
}

func normalizeOutcomes(input []string) []string {
	var result []string
	seen := make(map[string]bool, len(input))
	for _, outcome := range input {
		outcome = strings.ToLower(strings.TrimSpace(outcome))
		if outcome == "" || seen[outcome] {
			continue
		}
		seen[outcome] = true
		result = append(result, outcome)
	}
	return result
}
