package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "QueryChain/internal/errors"
	sqlstore "QueryChain/internal/storage/mysql"
)

// mysqlDuplicateEntry 是主键冲突的 MySQL 错误号。
const mysqlDuplicateEntry = 1062

// MySQLStore 使用 MySQL 记录任务状态，表结构由 deploy/migrations 维护。
type MySQLStore struct {
	db  *sql.DB
	now func() int64
}

// NewMySQLStore 连接 MySQL 并执行嵌入的迁移脚本。
func NewMySQLStore(ctx context.Context, cfg sqlstore.Config) (*MySQLStore, error) {
	db, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newMySQLStore(db), nil
}

func newMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: func() int64 { return time.Now().Unix() }}
}

var taskColumns = strings.Join([]string{
	"id", "query", "metadata", "status", "attempts", "max_retries", "last_error", "error_code",
	"result_query_id", "result_answer", "result_outcome", "result_pattern", "result_plan_kind", "result_normalized",
	"created_at", "updated_at",
}, ", ")

// storageError 包裹数据库错误，已带错误码的错误原样返回。
func storageError(err error, message string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message)
}

// Create 插入新的任务记录。
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	switch {
	case task == nil:
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	case strings.TrimSpace(task.ID) == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	metadata, err := marshalMetadata(task.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务 metadata 失败")
	}
	task.CreatedAt = s.now()
	task.UpdatedAt = task.CreatedAt

	_, err = s.db.ExecContext(ctx, `INSERT INTO query_tasks
        (id, query, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?)`,
		task.ID, task.Query, metadata, task.Status, task.Attempts, task.MaxRetries, task.CreatedAt, task.UpdatedAt,
	)
	var mysqlErr *mysql.MySQLError
	switch {
	case err == nil:
		return nil
	case stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry:
		return ErrTaskConflict
	default:
		return storageError(err, "插入任务失败")
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task                Task
		result              ExecutionResult
		metadata, lastError sql.NullString
		answer, normalized  sql.NullString
	)
	err := row.Scan(
		&task.ID, &task.Query, &metadata, &task.Status, &task.Attempts, &task.MaxRetries, &lastError, &task.ErrorCode,
		&result.QueryID, &answer, &result.Outcome, &result.Pattern, &result.PlanKind, &normalized,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.LastError = lastError.String
	result.Answer = answer.String
	result.Normalized = normalized.String
	if task.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务 metadata 失败")
	}
	if !result.Empty() {
		task.Result = &result
	}
	return &task, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q queryRower, id string, lock bool) (*Task, error) {
	stmt := `SELECT ` + taskColumns + ` FROM query_tasks WHERE id = ?`
	if lock {
		stmt += ` FOR UPDATE`
	}
	task, err := scanTask(q.QueryRowContext(ctx, stmt, id))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, storageError(err, "查询任务失败")
	}
	return task, nil
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	return getTask(ctx, s.db, id, false)
}

// Claim 在事务内锁定任务行，满足领取条件时置为运行中并累加尝试次数。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError(err, "开启领取事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	task, err := getTask(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := claimable(task); err != nil {
		return task, err
	}

	task.Status = StatusRunning
	task.Attempts++
	task.LastError, task.ErrorCode = "", ""
	task.UpdatedAt = s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE query_tasks SET status = ?, attempts = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`,
		task.Status, task.Attempts, task.UpdatedAt, id,
	); err != nil {
		return nil, storageError(err, "更新任务状态失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, storageError(err, "提交领取事务失败")
	}
	return task, nil
}

// update 执行单行更新，没有命中任何行时返回 ErrTaskNotFound。
func (s *MySQLStore) update(ctx context.Context, message, stmt string, args ...any) error {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return storageError(err, message)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkSucceeded 将任务标记为成功并写入回答结果。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	return s.update(ctx, "标记任务成功失败",
		`UPDATE query_tasks SET status = ?, result_query_id = ?, result_answer = ?, result_outcome = ?,
        result_pattern = ?, result_plan_kind = ?, result_normalized = ?, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ?`,
		StatusSucceeded, result.QueryID, result.Answer, result.Outcome,
		result.Pattern, result.PlanKind, result.Normalized, s.now(), id,
	)
}

// MarkFailed 将任务标记为失败。terminal 为 true 时把 max_retries 收紧到当前尝试次数。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	set := "status = ?, last_error = ?, error_code = ?, updated_at = ?"
	if terminal {
		set += ", max_retries = LEAST(max_retries, attempts)"
	}
	return s.update(ctx, "标记任务失败失败",
		`UPDATE query_tasks SET `+set+` WHERE id = ?`,
		StatusFailed, lastError, string(code), s.now(), id,
	)
}

// List 返回符合过滤条件的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT ` + taskColumns + ` FROM query_tasks`
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	direction := "DESC"
	if opts.Order == SortByUpdatedAsc {
		direction = "ASC"
	}
	query += " ORDER BY updated_at " + direction + ", created_at " + direction + ", id " + direction + " LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, storageError(err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storageError(err, "解析任务记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 按状态与回答结果分组统计符合过滤条件的任务。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()
	clause, args := buildFilterClause(opts)

	var stats TaskStats
	byStatus := `SELECT status, COUNT(*), COALESCE(MIN(updated_at), 0), COALESCE(MAX(updated_at), 0) FROM query_tasks`
	if clause != "" {
		byStatus += " WHERE " + clause
	}
	err := s.eachRow(ctx, byStatus+" GROUP BY status", args, func(rows *sql.Rows) error {
		var (
			status         Status
			count          int
			oldest, newest int64
		)
		if err := rows.Scan(&status, &count, &oldest, &newest); err != nil {
			return err
		}
		stats.addStatus(status, count, oldest, newest)
		return nil
	})
	if err != nil {
		return TaskStats{}, storageError(err, "查询任务统计失败")
	}

	byOutcome := "SELECT result_outcome, COUNT(*) FROM query_tasks WHERE result_outcome <> ''"
	if clause != "" {
		byOutcome += " AND " + clause
	}
	err = s.eachRow(ctx, byOutcome+" GROUP BY result_outcome", args, func(rows *sql.Rows) error {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return err
		}
		stats.addOutcome(outcome, count)
		return nil
	})
	if err != nil {
		return TaskStats{}, storageError(err, "查询回答结果分布失败")
	}
	return stats, nil
}

func (s *MySQLStore) eachRow(ctx context.Context, query string, args []any, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// where 累积以 AND 连接的过滤条件及其参数。
type where struct {
	conditions []string
	args       []any
}

func (w *where) add(condition string, args ...any) {
	w.conditions = append(w.conditions, condition)
	w.args = append(w.args, args...)
}

func whereIn[T ~string](w *where, column string, values []T) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	w.add(column+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")", args...)
}

// buildFilterClause 生成与 ListOptions.matches 语义一致的 WHERE 子句。
func buildFilterClause(opts ListOptions) (string, []any) {
	var w where
	whereIn(&w, "status", opts.Statuses)
	whereIn(&w, "result_outcome", opts.Outcomes)
	if opts.Pattern != "" {
		w.add("result_pattern = ?", opts.Pattern)
	}
	if opts.UpdatedGTE > 0 {
		w.add("updated_at >= ?", opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		w.add("updated_at <= ?", opts.UpdatedLTE)
	}
	switch {
	case opts.HasResult == nil:
	case *opts.HasResult:
		w.add("(result_answer <> '' OR result_outcome <> '')")
	default:
		w.add("((result_answer IS NULL OR result_answer = '') AND result_outcome = '')")
	}
	if opts.Query != "" {
		like := "%" + opts.Query + "%"
		w.add("(id LIKE ? OR query LIKE ? OR last_error LIKE ? OR result_answer LIKE ? OR result_pattern LIKE ?)",
			like, like, like, like, like)
	}
	if len(w.conditions) == 0 {
		return "", nil
	}
	return strings.Join(w.conditions, " AND "), w.args
}

var _ Store = (*MySQLStore)(nil)
