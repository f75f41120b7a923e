// 包 utils：Redis 连接工具，按配置打开客户端与可选 DB 选择
package utils

import (
	"geodis/internal/config"
	"geodis/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按配置打开 Redis 客户端
// 约束：客户端自带连接池，可被查询与导入并发共享；超时只依赖客户端自身 I/O 超时
func OpenRedis(c config.Redis) *redis.Client {
	opts := &redis.Options{
		Addr:        c.Addr(),
		Password:    c.Pass,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
		ReadTimeout: c.ReadTimeout,
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	logger.L().Debug("redis_open", "addr", opts.Addr, "db", opts.DB, "pool", opts.PoolSize)
	return redis.NewClient(opts)
}
