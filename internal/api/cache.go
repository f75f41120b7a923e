package api

import (
	"time"

	"geodis/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cached：一次解析的结果；未命中同样缓存
type cached struct {
	entity map[string]string
	aux    string
	found  bool
}

// Cache：进程内结果缓存（LRU + TTL）
// 约束：导入不会主动失效缓存，新数据在 TTL 到期后可见；nil Cache 表示关闭
type Cache struct {
	lru *expirable.LRU[string, cached]
}

// NewCache：size <= 0 时返回 nil（关闭缓存）
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, cached](size, nil, ttl)}
}

func (c *Cache) get(key string) (cached, bool) {
	if c == nil {
		return cached{}, false
	}
	v, ok := c.lru.Get(key)
	if ok {
		metrics.CacheHitsTotal.Inc()
	} else {
		metrics.CacheMissesTotal.Inc()
	}
	return v, ok
}

func (c *Cache) put(key string, v cached) {
	if c == nil {
		return
	}
	c.lru.Add(key, v)
}

// Len：当前条目数
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge：清空缓存（导入后手动刷新）
func (c *Cache) Purge() {
	if c != nil {
		c.lru.Purge()
	}
}
