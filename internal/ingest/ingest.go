// 包 ingest：离线导入通道，把城市/邮编/IP 区间数据集批量写入存储
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"geodis/internal/geoerr"
	"geodis/internal/iprange"
	"geodis/internal/logger"
	"geodis/internal/metrics"
	"geodis/internal/store"
)

// Importer：一种数据集格式的导入器
// 返回：成功排队的条目数（被跳过的行不计入）
type Importer interface {
	Name() string
	Run(ctx context.Context, s *Sink) (int, error)
}

// Sink：导入写入端，持有存储、区间索引与一个批次
// 约束：单协程使用；校验失败的行只计数并记日志，不中断导入
type Sink struct {
	st      *store.Store
	idx     *iprange.Index
	batch   *store.Batch
	every   int
	queued  int
	skipped int
	log     *slog.Logger
}

// NewSink：batchSize 为每次 pipeline 往返携带的条目数，<=0 时只在 Close 时发送
func NewSink(st *store.Store, idx *iprange.Index, batchSize int) *Sink {
	return &Sink{
		st:    st,
		idx:   idx,
		batch: store.NewBatch(st.Client(), batchSize),
		every: batchSize,
		log:   logger.With("ingest"),
	}
}

// SaveEntity：实体进入批次；校验失败返回 false 且不报错
func (s *Sink) SaveEntity(ctx context.Context, t store.Type, e store.Entity) (bool, error) {
	err := s.st.Save(ctx, t, e, s.batch)
	if geoerr.IsValidation(err) {
		s.Skip(t.Name, err.Error())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.queuedOne(t.Name)
	return true, nil
}

// AddRange：区间进入批次；校验失败返回 false 且不报错
func (s *Sink) AddRange(ctx context.Context, r iprange.Range) (bool, error) {
	err := s.idx.AddRange(ctx, r, s.batch)
	if geoerr.IsValidation(err) {
		s.Skip("iprange", err.Error())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.queuedOne("iprange")
	return true, nil
}

// Skip：记录一条被拒绝的输入行
func (s *Sink) Skip(kind, reason string) {
	s.skipped++
	metrics.ImportSkippedTotal.WithLabelValues(kind).Inc()
	s.log.Debug("ingest_skip", "kind", kind, "reason", reason)
}

func (s *Sink) queuedOne(kind string) {
	s.queued++
	metrics.ImportedTotal.WithLabelValues(kind).Inc()
	if s.every > 0 && s.queued%s.every == 0 {
		s.log.Info("ingest_progress", "count", s.queued)
	}
}

// Close：发送剩余批次
func (s *Sink) Close(ctx context.Context) error {
	_, err := s.batch.Flush(ctx)
	return err
}

func (s *Sink) Queued() int  { return s.queued }
func (s *Sink) Skipped() int { return s.skipped }

// Flushed：已经成功写入 Redis 的条目数
func (s *Sink) Flushed() int { return s.batch.Total() }

// Run：执行一次导入并发送剩余批次
// 异常：存储错误直接返回，不做重试；已发送的批次不回滚
func Run(ctx context.Context, imp Importer, s *Sink) (int, error) {
	l := s.log
	l.Info("ingest_start", "importer", imp.Name())
	n, err := imp.Run(ctx, s)
	if err != nil {
		l.Error("ingest_error", "importer", imp.Name(), "count", n, "err", err)
		return n, err
	}
	if err := s.Close(ctx); err != nil {
		l.Error("ingest_error", "importer", imp.Name(), "count", n, "err", err)
		return n, err
	}
	l.Info("ingest_done", "importer", imp.Name(), "count", n, "skipped", s.Skipped())
	return n, nil
}

// Open：打开数据源；http(s) 地址按上游拉取，否则视为本地文件
func Open(ctx context.Context, src string) (io.ReadCloser, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: bad status %d", src, resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(src)
}

// Kinds：Build 支持的数据集名称
var Kinds = []string{"cities", "zip", "ipranges", "mmdb"}

// Build：按名称构造导入器；返回的 closer 释放数据源
// 参数：cities 为 true 时 ipranges/mmdb 额外把区间所在城市写入 City 索引
func Build(ctx context.Context, kind, src string, cities bool) (Importer, io.Closer, error) {
	if kind == "mmdb" {
		m, err := OpenMMDB(src, cities)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	}
	var mk func(io.Reader) Importer
	switch kind {
	case "cities":
		mk = func(r io.Reader) Importer { return CitiesCSV{R: r} }
	case "zip":
		mk = func(r io.Reader) Importer { return ZIPCSV{R: r} }
	case "ipranges":
		mk = func(r io.Reader) Importer { return IPRangesCSV{R: r, Cities: cities} }
	default:
		return nil, nil, errors.New("unknown import kind " + kind)
	}
	rc, err := Open(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return mk(rc), rc, nil
}
