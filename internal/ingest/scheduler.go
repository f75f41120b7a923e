package ingest

import (
	"context"
	"time"

	"geodis/internal/logger"
)

// nextWeekly：计算 now 之后第一个 day 的 hour 整点（同一天已过时顺延一周）
func nextWeekly(now time.Time, day time.Weekday, hour int) time.Time {
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != day {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, now.Location())
}

// StartWeekly：在 loc 时区每周一 hour 点执行 job，直到 ctx 取消
// 背景：跟随上游数据集的更新节奏刷新；失败只记日志，下周继续调度
func StartWeekly(ctx context.Context, loc *time.Location, hour int, job func(context.Context) error) {
	l := logger.L()
	next := nextWeekly(time.Now().In(loc), time.Monday, hour)
	l.Info("ingest_scheduled", "next", next)
	go func() {
		for {
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if err := job(ctx); err != nil {
				l.Error("ingest_refresh_error", "err", err)
			} else {
				l.Info("ingest_refresh_done")
			}
			next = nextWeekly(next, time.Monday, hour)
		}
	}()
}
