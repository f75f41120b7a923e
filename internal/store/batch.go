package store

import (
	"context"

	"geodis/internal/geoerr"
	"geodis/internal/logger"
	"geodis/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Batch：批量写入句柄，包装一条 pipeline；每累计 size 个条目自动发送一次
// 约束：批处理仅用于吞吐优化，不改变正确性与顺序；非并发安全，供单个导入协程使用
type Batch struct {
	pipe    redis.Pipeliner
	size    int
	pending int
	total   int
	flushes int
}

// NewBatch：size <= 0 时只在显式 Flush 时发送
func NewBatch(rc redis.UniversalClient, size int) *Batch {
	return &Batch{pipe: rc.Pipeline(), size: size}
}

// Pipe：排队命令使用的 pipeline
func (b *Batch) Pipe() redis.Pipeliner { return b.pipe }

// Pending：尚未发送的条目数
func (b *Batch) Pending() int { return b.pending }

// Total：已成功发送的条目数
func (b *Batch) Total() int { return b.total }

// Flushes：已发送的批次数
func (b *Batch) Flushes() int { return b.flushes }

// Added：记录一个已排队的条目（可含多条命令），达到阈值时发送
func (b *Batch) Added(ctx context.Context) error {
	b.pending++
	if b.size > 0 && b.pending >= b.size {
		_, err := b.Flush(ctx)
		return err
	}
	return nil
}

// Flush：发送全部排队命令，返回本次发送的条目数
// 异常：任一命令失败返回 StoreUnavailableError；失败批次不重试
func (b *Batch) Flush(ctx context.Context) (int, error) {
	if b.pending == 0 {
		return 0, nil
	}
	n := b.pending
	b.pending = 0
	if _, err := b.pipe.Exec(ctx); err != nil {
		logger.L().Error("batch_flush_error", "items", n, "err", err)
		return 0, geoerr.Unavailable("pipeline exec", err)
	}
	b.total += n
	b.flushes++
	metrics.BatchFlushesTotal.Inc()
	logger.L().Debug("batch_flush", "items", n, "total", b.total)
	return n, nil
}
