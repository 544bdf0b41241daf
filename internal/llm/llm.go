package llm

import (
	"context"
	"strings"
)

// Request 描述发送给大模型的生成任务。
type Request struct {
	Prompt    string
	MaxWords  int
	History   []HistoryEntry
	Knowledge []KnowledgeCard
}

// Response 是大模型推理得到的结构化输出。
type Response struct {
	Thought string
	Reply   string
}

// KnowledgeCard 表示提供给大模型的知识切片，帮助生成更加准确的回复。
type KnowledgeCard struct {
	Title   string
	Content string
}

// HistoryEntry 描述一次历史问答，用于为大模型提供上下文记忆。
type HistoryEntry struct {
	Query     string
	Answer    string
	CreatedAt int64
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// LimitWords 截断文本，最多保留 n 个单词。n <= 0 时原样返回。
func LimitWords(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
