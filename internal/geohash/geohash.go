// 包 geohash：经纬度与 52 位整数 geohash 之间的双向转换
// 约束：位宽全系统固定为 52（经纬各 26 位，经度在前交错）；Redis 有序集合分值为 double，52 位整数可精确表示，
// 因此分值顺序与键顺序一致。混用位宽会破坏排序可比性。
package geohash

import (
	"errors"
	"math"
	"strconv"

	"geodis/internal/geoerr"

	gh "github.com/mmcloughlin/geohash"
)

// Bits：键总位宽
const Bits = 52

// MaxKey：合法键上界（不含）
const MaxKey = Key(1) << Bits

// Epsilon：Decode(Encode(p)) 与 p 的平面距离上界（度）
// 单元格尺寸为 180/2^26 × 360/2^26，中心点误差不超过半格
const Epsilon = 4e-6

// 每轴最后一个单元格的中心
const (
	maxLat = 90 - 90.0/(1<<(Bits/2))
	maxLon = 180 - 180.0/(1<<(Bits/2))
)

// Key：可排序的整数 geohash
type Key uint64

func (k Key) String() string { return strconv.FormatUint(uint64(k), 10) }

// Score：写入有序集合时使用的分值
func (k Key) Score() float64 { return float64(k) }

// Encode：量化并交错经纬度位
// 异常：纬度不在 [-90,90]、经度不在 [-180,180] 或非有限数时返回 ValidationError
func Encode(lat, lon float64) (Key, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return 0, geoerr.Invalid("lat", "%v out of range [-90,90]", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return 0, geoerr.Invalid("lon", "%v out of range [-180,180]", lon)
	}
	// 上边界及其半格以内的值量化时会溢出回绕到下边界，收进最后一个单元格的中心
	if lat > maxLat {
		lat = maxLat
	}
	if lon > maxLon {
		lon = maxLon
	}
	return Key(gh.EncodeIntWithPrecision(lat, lon, Bits)), nil
}

// MustEncode：Encode 的 panic 版本，仅用于常量坐标
func MustEncode(lat, lon float64) Key {
	k, err := Encode(lat, lon)
	if err != nil {
		panic(err)
	}
	return k
}

// Decode：返回键所在单元格的中心点
func Decode(k Key) (lat, lon float64) {
	box := gh.BoundingBoxIntWithPrecision(uint64(k), Bits)
	return box.Center()
}

var errBadScore = errors.New("score is not a 52-bit integer geohash")

// FromScore：把有序集合分值还原为键
// 异常：负数、非整数、NaN 或超出 52 位时返回 CorruptEntryError
func FromScore(index string, score float64) (Key, error) {
	if math.IsNaN(score) || score < 0 || score >= float64(MaxKey) || score != math.Trunc(score) {
		return 0, &geoerr.CorruptEntryError{Key: index, Value: strconv.FormatFloat(score, 'g', -1, 64), Err: errBadScore}
	}
	return Key(score), nil
}

// Parse：解析十进制键文本（区间成员串中的 geohash 段）
func Parse(s string) (Key, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if Key(v) >= MaxKey {
		return 0, errBadScore
	}
	return Key(v), nil
}
