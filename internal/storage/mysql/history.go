package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// HistoryRecord 表示一次问答的落库结构。
type HistoryRecord struct {
	ID         int64  `json:"id"`
	QueryID    string `json:"query_id"`
	Query      string `json:"query"`
	Normalized string `json:"normalized"`
	Answer     string `json:"answer"`
	Outcome    string `json:"outcome"`
	Pattern    string `json:"pattern,omitempty"`
	PlanKind   string `json:"plan_kind,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Steps      int    `json:"steps"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"`
}

// HistoryRepository 抽象问答历史的持久化接口。
type HistoryRepository interface {
	Save(ctx context.Context, record *HistoryRecord) error
	ListLatest(ctx context.Context, limit int) ([]HistoryRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	Close() error
}

// memoryCapacity 是内存仓库保留的最大记录数。
const memoryCapacity = 512

// MemoryHistoryRepository 使用本地 JSONL 文件模拟 MySQL，方便本地运行。
type MemoryHistoryRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []HistoryRecord
	nextID   int64
}

// NewMemoryHistoryRepository 创建内存仓库并从 dataDir/history.log 恢复记录。
func NewMemoryHistoryRepository(dataDir string) (*MemoryHistoryRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryHistoryRepository{dataFile: filepath.Join(dataDir, "history.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录问答结果，并分配自增 ID。
func (m *MemoryHistoryRepository) Save(_ context.Context, record *HistoryRecord) error {
	if record == nil {
		return fmt.Errorf("历史记录不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	record.ID = m.nextID

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开历史日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化历史记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入历史日志失败: %w", err)
	}

	m.records = append([]HistoryRecord{*record}, m.records...)
	if len(m.records) > memoryCapacity {
		m.records = m.records[:memoryCapacity]
	}
	return nil
}

// ListLatest 返回最近的问答记录，按时间倒序排列。
func (m *MemoryHistoryRepository) ListLatest(_ context.Context, limit int) ([]HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]HistoryRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// CountByOutcome 统计保留记录中各结果类型的数量。
func (m *MemoryHistoryRepository) CountByOutcome(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, record := range m.records {
		counts[record.Outcome]++
	}
	return counts, nil
}

// Close 对文件仓库无需操作。
func (m *MemoryHistoryRepository) Close() error { return nil }

func (m *MemoryHistoryRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取历史日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var restored []HistoryRecord
	for scanner.Scan() {
		var record HistoryRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID > m.nextID {
			m.nextID = record.ID
		}
		restored = append([]HistoryRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析历史日志失败: %w", err)
	}

	if len(restored) > memoryCapacity {
		restored = restored[:memoryCapacity]
	}
	m.records = restored
	return nil
}

var _ HistoryRepository = (*MemoryHistoryRepository)(nil)
