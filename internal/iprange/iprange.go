// 包 iprange：IPv4 区间索引，区间按上界排序存入一个全局有序集合
// 约束：成员串 "<geohash>@<min>:<max>:<aux>" 自带解析所需全部信息，一次查询即可继续解析，无需二次往返；
// 相同 min:max:aux 重复导入覆盖而非新增。
package iprange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"geodis/internal/geoerr"
	"geodis/internal/geohash"
	"geodis/internal/logger"
	"geodis/internal/metrics"
	"geodis/internal/store"

	"github.com/redis/go-redis/v9"
)

// LocationsKey：全局区间有序集合键，分值为区间上界
const LocationsKey = "iprange:locations"

// Range：闭区间 [Min, Max] 及其关联的 geohash 与辅助编码（如邮编）
type Range struct {
	Min     uint32
	Max     uint32
	Geohash geohash.Key
	Aux     string
}

// ID：身份键 min:max:aux
func (r Range) ID() string {
	return strconv.FormatUint(uint64(r.Min), 10) + ":" + strconv.FormatUint(uint64(r.Max), 10) + ":" + r.Aux
}

// Member：有序集合成员串
func (r Range) Member() string { return r.Geohash.String() + "@" + r.ID() }

// Contains：闭区间包含判断（含上下界）
func (r Range) Contains(ip uint32) bool { return r.Min <= ip && ip <= r.Max }

// ParseMember：解析成员串；aux 可包含 ':'
func ParseMember(s string) (Range, error) {
	var r Range
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return r, errors.New("missing '@'")
	}
	k, err := geohash.Parse(s[:at])
	if err != nil {
		return r, fmt.Errorf("geohash: %w", err)
	}
	parts := strings.SplitN(s[at+1:], ":", 3)
	if len(parts) != 3 {
		return r, errors.New("want min:max:aux")
	}
	lo, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return r, fmt.Errorf("min: %w", err)
	}
	hi, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return r, fmt.Errorf("max: %w", err)
	}
	return Range{Min: uint32(lo), Max: uint32(hi), Geohash: k, Aux: parts[2]}, nil
}

// Index：区间索引；近邻解析委托给实体存储
type Index struct {
	rc redis.UniversalClient
	st *store.Store
}

func NewIndex(st *store.Store) *Index {
	return &Index{rc: st.Client(), st: st}
}

// AddRange：写入区间；b 非空时进入批次 pipeline
// 异常：Min > Max 或 geohash 超出 52 位返回 ValidationError，不写入
func (x *Index) AddRange(ctx context.Context, r Range, b *store.Batch) error {
	if r.Min > r.Max {
		return geoerr.Invalid("range", "min %d > max %d", r.Min, r.Max)
	}
	if r.Geohash >= geohash.MaxKey {
		return geoerr.Invalid("geohash", "%d exceeds %d bits", r.Geohash, geohash.Bits)
	}
	z := redis.Z{Score: float64(r.Max), Member: r.Member()}
	if b != nil {
		b.Pipe().ZAdd(ctx, LocationsKey, z)
		return b.Added(ctx)
	}
	if err := x.rc.ZAdd(ctx, LocationsKey, z).Err(); err != nil {
		return geoerr.Unavailable("zadd "+LocationsKey, err)
	}
	logger.L().Debug("iprange_add", "id", r.ID())
	return nil
}

// Resolve：查找包含 ip 的区间
// 流程：取上界 >= ip 的最小一条；该条只是最近的上界区间，必须再校验 min <= ip，否则视为未命中。
// 异常：成员串无法解析时记 warn 日志并返回 CorruptEntryError
func (x *Index) Resolve(ctx context.Context, ip uint32) (Range, bool, error) {
	lo := strconv.FormatUint(uint64(ip), 10)
	vals, err := x.rc.ZRangeByScore(ctx, LocationsKey, &redis.ZRangeBy{Min: lo, Max: "+inf", Count: 1}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Range{}, false, geoerr.Unavailable("zrangebyscore "+LocationsKey, err)
	}
	if len(vals) == 0 {
		return Range{}, false, nil
	}
	r, err := ParseMember(vals[0])
	if err != nil {
		metrics.CorruptEntriesTotal.WithLabelValues(LocationsKey).Inc()
		logger.L().Warn("iprange_corrupt_member", "member", vals[0], "err", err)
		return Range{}, false, &geoerr.CorruptEntryError{Key: LocationsKey, Value: vals[0], Err: err}
	}
	if !r.Contains(ip) {
		return Range{}, false, nil
	}
	return r, true, nil
}

// ResolveToEntity：区间命中后按其 geohash 查找最近实体（两次往返）
func (x *Index) ResolveToEntity(ctx context.Context, ip uint32, t store.Type) (store.Entity, bool, error) {
	r, ok, err := x.Resolve(ctx, ip)
	if err != nil || !ok {
		return nil, false, err
	}
	return x.st.Nearest(ctx, t, r.Geohash)
}

// ResolveToAux：只返回辅助编码，跳过近邻查找
func (x *Index) ResolveToAux(ctx context.Context, ip uint32) (string, bool, error) {
	r, ok, err := x.Resolve(ctx, ip)
	if err != nil || !ok {
		return "", false, err
	}
	return r.Aux, true, nil
}

// ResolveIP：文本 IP 版本的 ResolveToEntity；非法 IP 返回 ValidationError
func (x *Index) ResolveIP(ctx context.Context, ip string, t store.Type) (store.Entity, bool, error) {
	v, err := IPToUint32(ip)
	if err != nil {
		return nil, false, err
	}
	return x.ResolveToEntity(ctx, v, t)
}

// ResolveIPToAux：文本 IP 版本的 ResolveToAux
func (x *Index) ResolveIPToAux(ctx context.Context, ip string) (string, bool, error) {
	v, err := IPToUint32(ip)
	if err != nil {
		return "", false, err
	}
	return x.ResolveToAux(ctx, v)
}

// Count：已存储区间数
func (x *Index) Count(ctx context.Context) (int64, error) {
	n, err := x.rc.ZCard(ctx, LocationsKey).Result()
	if err != nil {
		return 0, geoerr.Unavailable("zcard "+LocationsKey, err)
	}
	return n, nil
}
