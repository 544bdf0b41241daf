// Package knowledge 提供 knowledge_lookup 工具背后的人物与概念摘要库。
package knowledge

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Lookup(subject string) (Entry, bool)
	Query(text string) []Entry
}

// Entry 描述知识库中的一条记录。
type Entry struct {
	Name     string   `json:"name" yaml:"name"`
	Summary  string   `json:"summary" yaml:"summary"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// indexed 保存一条记录及其小写后的名称与关键词。
type indexed struct {
	entry    Entry
	name     string
	keywords []string
}

// StaticProvider 是创建后只读的内存知识库，可并发访问。
type StaticProvider struct {
	items      []indexed
	maxResults int
}

// NewStaticProvider 创建静态知识库实例，maxResults 非正时取 3。
func NewStaticProvider(items []Entry, maxResults int) *StaticProvider {
	p := &StaticProvider{
		items:      make([]indexed, 0, len(items)),
		maxResults: cmp.Or(max(maxResults, 0), 3),
	}
	for _, item := range items {
		idx := indexed{entry: item, name: fold(item.Name)}
		for _, kw := range item.Keywords {
			if kw = fold(kw); kw != "" {
				idx.keywords = append(idx.keywords, kw)
			}
		}
		p.items = append(p.items, idx)
	}
	return p
}

// LoadStaticProvider 从文件加载知识条目。.yaml/.yml 按 YAML 解析，其余按 JSON 解析；
// 两种格式都接受条目数组或 {"entries": [...]}。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = decode(data, yaml.Unmarshal)
	default:
		entries, err = decode(data, json.Unmarshal)
	}
	if err != nil {
		return nil, fmt.Errorf("解析知识库文件 %s 失败: %w", path, err)
	}
	return NewStaticProvider(entries, maxResults), nil
}

func decode(data []byte, unmarshal func([]byte, any) error) ([]Entry, error) {
	var list []Entry
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Entries []Entry `json:"entries" yaml:"entries"`
	}
	if err := unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// Lookup 返回名称包含 subject 的记录（忽略大小写），名称完全相同的优先。
func (p *StaticProvider) Lookup(subject string) (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	subject = fold(subject)
	if subject == "" {
		return Entry{}, false
	}
	if i := slices.IndexFunc(p.items, func(it indexed) bool { return it.name == subject }); i >= 0 {
		return p.items[i].entry, true
	}
	if i := slices.IndexFunc(p.items, func(it indexed) bool { return strings.Contains(it.name, subject) }); i >= 0 {
		return p.items[i].entry, true
	}
	return Entry{}, false
}

// Query 返回文本中提到的记录，按命中程度排序，最多 maxResults 条。
// 提到名称记 10 分，每个关键词记 1 分。
func (p *StaticProvider) Query(text string) []Entry {
	if p == nil {
		return nil
	}
	text = fold(text)
	if text == "" {
		return nil
	}

	type hit struct {
		pos   int
		score int
	}
	var hits []hit
	for i, it := range p.items {
		score := 0
		if it.name != "" && strings.Contains(text, it.name) {
			score += 10
		}
		for _, kw := range it.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{pos: i, score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(b.score, a.score) })

	results := make([]Entry, 0, min(len(hits), p.maxResults))
	for _, h := range hits[:min(len(hits), p.maxResults)] {
		results = append(results, p.items[h.pos].entry)
	}
	return results
}

// Len 返回条目数量。
func (p *StaticProvider) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var _ Provider = (*StaticProvider)(nil)
