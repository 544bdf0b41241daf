package task

import (
	"context"
)

// Handler 处理一条出队的任务 ID。返回错误表示该任务未能进入处理流程
// （例如领取时存储不可用），队列实现可以据此重新投递。
type Handler func(ctx context.Context, taskID string) error

// Producer 投递待回答的任务。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 以 workerCount 个并发消费者处理任务，阻塞直到 ctx 取消或队列不可用。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// DepthReporter 由能够报告积压长度的队列实现，健康检查使用。
type DepthReporter interface {
	Depth(ctx context.Context) (int, error)
}
