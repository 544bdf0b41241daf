package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLHistoryRepository 使用 MySQL 存储问答历史。
type SQLHistoryRepository struct {
	db *sql.DB
}

// NewSQLHistoryRepository 创建连接池并执行嵌入的迁移脚本。
func NewSQLHistoryRepository(ctx context.Context, cfg Config) (*SQLHistoryRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLHistoryRepository{db: db}, nil
}

const insertHistorySQL = `INSERT INTO query_history
    (query_id, query, normalized, answer, outcome, pattern, plan_kind, error_code, steps, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save 写入一条问答记录并回填自增 ID。
func (s *SQLHistoryRepository) Save(ctx context.Context, record *HistoryRecord) error {
	if record == nil {
		return fmt.Errorf("历史记录不能为空")
	}
	res, err := s.db.ExecContext(ctx, insertHistorySQL,
		record.QueryID,
		record.Query,
		record.Normalized,
		record.Answer,
		record.Outcome,
		record.Pattern,
		record.PlanKind,
		record.ErrorCode,
		record.Steps,
		record.DurationMS,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取历史记录 ID 失败: %w", err)
	}
	record.ID = id
	return nil
}

const listHistorySQL = `SELECT id, query_id, query, normalized, answer, outcome, pattern, plan_kind, error_code, steps, duration_ms, created_at
    FROM query_history ORDER BY created_at DESC, id DESC LIMIT ?`

// ListLatest 查询最近的若干条问答记录。
func (s *SQLHistoryRepository) ListLatest(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, listHistorySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Query, &r.Normalized, &r.Answer, &r.Outcome,
			&r.Pattern, &r.PlanKind, &r.ErrorCode, &r.Steps, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析历史记录失败: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历历史记录失败: %w", err)
	}
	return records, nil
}

const countOutcomeSQL = `SELECT outcome, COUNT(*) FROM query_history GROUP BY outcome`

// CountByOutcome 按结果类型聚合问答数量。
func (s *SQLHistoryRepository) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, countOutcomeSQL)
	if err != nil {
		return nil, fmt.Errorf("统计历史记录失败: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("解析统计结果失败: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历统计结果失败: %w", err)
	}
	return counts, nil
}

// Close 关闭底层数据库连接。
func (s *SQLHistoryRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ HistoryRepository = (*SQLHistoryRepository)(nil)
