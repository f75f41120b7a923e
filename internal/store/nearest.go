package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"geodis/internal/geoerr"
	"geodis/internal/geohash"
	"geodis/internal/logger"
	"geodis/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Nearest：返回 geohash 最接近 key 的实体（近似最近邻）
// 流程：同一往返内取分值 >= key 的前 window 个与 <= key 的前 window 个候选，解码后按平面距离取最小，
// 相等时保留先遇到的（升序候选在前）。
// 约束：Z 序只近似保持空间邻近，单元格边界附近真实最近点可能落在窗口之外，这是可接受的近似。
// 分值无法解码的候选记 warn 日志后跳过，不中断扫描。
func (s *Store) Nearest(ctx context.Context, t Type, key geohash.Key) (Entity, bool, error) {
	id, ok, err := s.nearestID(ctx, t, key)
	if err != nil || !ok {
		return nil, false, err
	}
	e, found, err := s.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !found {
		logger.L().Warn("nearest_dangling_index_entry", "index", t.IndexKey(), "id", id)
	}
	return e, found, nil
}

// NearestByCoordinate：Encode 后调用 Nearest；坐标越界返回 ValidationError
func (s *Store) NearestByCoordinate(ctx context.Context, t Type, lat, lon float64) (Entity, bool, error) {
	key, err := geohash.Encode(lat, lon)
	if err != nil {
		return nil, false, err
	}
	return s.Nearest(ctx, t, key)
}

func (s *Store) nearestID(ctx context.Context, t Type, key geohash.Key) (string, bool, error) {
	idx := t.IndexKey()
	score := key.String()
	pipe := s.rc.Pipeline()
	up := pipe.ZRangeByScoreWithScores(ctx, idx, &redis.ZRangeBy{Min: score, Max: "+inf", Count: int64(s.window)})
	down := pipe.ZRevRangeByScoreWithScores(ctx, idx, &redis.ZRangeBy{Max: score, Min: "-inf", Count: int64(s.window)})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", false, geoerr.Unavailable("zrangebyscore "+idx, err)
	}

	lat, lon := geohash.Decode(key)
	best, found := "", false
	bestD := math.MaxFloat64
	for _, cands := range [][]redis.Z{up.Val(), down.Val()} {
		for _, z := range cands {
			member := fmt.Sprint(z.Member)
			ck, err := geohash.FromScore(idx, z.Score)
			if err != nil {
				metrics.CorruptEntriesTotal.WithLabelValues(idx).Inc()
				logger.L().Warn("nearest_corrupt_candidate", "index", idx, "member", member, "err", err)
				continue
			}
			clat, clon := geohash.Decode(ck)
			if d := geohash.Distance(lat, lon, clat, clon); d < bestD {
				best, bestD, found = member, d, true
			}
		}
	}
	if !found {
		return "", false, nil
	}
	logger.L().Debug("nearest_pick", "index", idx, "key", key, "id", best, "dist", bestD)
	return best, true, nil
}
