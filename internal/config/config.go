// 包 config：从环境变量收集运行参数；非法数值静默回退到默认值
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Redis：连接参数
type Redis struct {
	Host        string
	Port        string
	Pass        string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Addr：host:port
func (r Redis) Addr() string { return r.Host + ":" + r.Port }

// Config：进程级配置快照
type Config struct {
	Redis Redis

	// 近邻查询每个方向的候选数量
	Window int
	// 导入批次大小（每批一次 pipeline 往返）
	BatchSize int

	CacheSize int
	CacheTTL  time.Duration

	Addr    string
	APIBase string

	RateLimitEnabled bool
	RateLimitQPS     int

	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	// 服务进程内的每周刷新：INGEST_KIND 与 INGEST_SRC 同时设置才启用
	IngestKind   string
	IngestSrc    string
	IngestHour   int
	IngestTZ     string
	IngestCities bool
}

const (
	DefaultWindow    = 4
	DefaultBatchSize = 5000
	MinBatchSize     = 1000
	MaxBatchSize     = 10000
)

// Load：读取环境变量
// 约束：REDIS_DB 为负数或无法解析时回退 0；GEODIS_BATCH_SIZE 限制在 [1000,10000]
func Load() Config {
	c := Config{
		Redis: Redis{
			Host:        str("REDIS_HOST", "127.0.0.1"),
			Port:        str("REDIS_PORT", "6379"),
			Pass:        os.Getenv("REDIS_PASS"),
			DB:          num("REDIS_DB", 0, 0),
			PoolSize:    num("REDIS_POOL_SIZE", 0, 0),
			DialTimeout: time.Duration(num("REDIS_DIAL_TIMEOUT_MS", 5000, 1)) * time.Millisecond,
			ReadTimeout: time.Duration(num("REDIS_READ_TIMEOUT_MS", 3000, 1)) * time.Millisecond,
		},
		Window:           num("GEODIS_WINDOW", DefaultWindow, 1),
		BatchSize:        ClampBatch(num("GEODIS_BATCH_SIZE", DefaultBatchSize, 1)),
		CacheSize:        num("GEODIS_CACHE_SIZE", 4096, 0),
		CacheTTL:         time.Duration(num("GEODIS_CACHE_TTL_S", 3600, 1)) * time.Second,
		Addr:             str("ADDR", ":8080"),
		APIBase:          strings.TrimRight(str("API_BASE", "/api"), "/"),
		RateLimitEnabled: os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:     num("RATE_LIMIT_QPS", 200, 1),
		TLSEnabled:       os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:      str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:       str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
		IngestKind:       os.Getenv("INGEST_KIND"),
		IngestSrc:        os.Getenv("INGEST_SRC"),
		IngestHour:       num("INGEST_HOUR", 3, 0),
		IngestTZ:         str("INGEST_TZ", "UTC"),
		IngestCities:     os.Getenv("INGEST_CITIES") == "true",
	}
	if c.IngestHour > 23 {
		c.IngestHour = 3
	}
	return c
}

// ClampBatch：批次大小限制在 [MinBatchSize, MaxBatchSize]
func ClampBatch(n int) int {
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func num(key string, def, min int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return def
	}
	return n
}
