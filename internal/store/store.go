// 包 store：基于 Redis 的点实体存储与近邻解析
// 约束：每个实体一个散列（<Type>:<key fields>），每种类型一个 geohash 有序集合（<Type>:geohash）；
// 不提供删除，索引只增不减。
package store

import (
	"context"
	"errors"

	"geodis/internal/config"
	"geodis/internal/geoerr"
	"geodis/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Store：存储访问入口，持有共享的 Redis 客户端（连接池并发安全，无需客户端加锁）
type Store struct {
	rc     redis.UniversalClient
	window int
}

// Option：构造选项
type Option func(*Store)

// WithWindow：近邻查询每个方向的候选数量，<=0 时忽略
func WithWindow(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.window = n
		}
	}
}

func New(rc redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rc: rc, window: config.DefaultWindow}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Client() redis.UniversalClient { return s.rc }

func (s *Store) Window() int { return s.window }

// Save：写入实体散列并加入类型的 geohash 索引
// 约束：校验在任何写入之前完成；两条写命令彼此独立、非事务，进程在两者之间崩溃会留下
// 只有索引没有散列（或相反）的记录，查询侧把缺失散列视为未命中。
// 参数：b 非空时两条命令进入批次 pipeline，由批次负责发送。
func (s *Store) Save(ctx context.Context, t Type, e Entity, b *Batch) error {
	e = e.clone()
	if t.Normalize != nil {
		t.Normalize(e)
	}
	key, err := t.validate(e)
	if err != nil {
		return err
	}
	id := t.ID(e)
	z := redis.Z{Score: key.Score(), Member: id}
	if b != nil {
		b.pipe.HSet(ctx, id, t.hashArgs(e)...)
		b.pipe.ZAdd(ctx, t.IndexKey(), z)
		return b.Added(ctx)
	}
	if err := s.rc.HSet(ctx, id, t.hashArgs(e)...).Err(); err != nil {
		return geoerr.Unavailable("hset "+id, err)
	}
	if err := s.rc.ZAdd(ctx, t.IndexKey(), z).Err(); err != nil {
		return geoerr.Unavailable("zadd "+t.IndexKey(), err)
	}
	logger.L().Debug("store_save", "id", id, "geohash", key)
	return nil
}

// Load：按身份键读取实体；散列不存在或为空时返回 false
func (s *Store) Load(ctx context.Context, id string) (Entity, bool, error) {
	m, err := s.rc.HGetAll(ctx, id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, geoerr.Unavailable("hgetall "+id, err)
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return Entity(m), true, nil
}

// Count：类型索引中的实体数
func (s *Store) Count(ctx context.Context, t Type) (int64, error) {
	n, err := s.rc.ZCard(ctx, t.IndexKey()).Result()
	if err != nil {
		return 0, geoerr.Unavailable("zcard "+t.IndexKey(), err)
	}
	return n, nil
}
