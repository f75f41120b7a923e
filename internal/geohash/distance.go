package geohash

import (
	"math"

	"github.com/golang/geo/s2"
)

const earthRadiusKm = 6371.0088

// Distance：经纬度平面欧氏距离（度），近邻排序统一使用该度量
// 约束：不是测地线距离，结果需与既有数据保持一致，不得替换为球面公式
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Hypot(lat1-lat2, lon1-lon2)
}

// KeyDistance：两个键解码后的平面距离
func KeyDistance(a, b Key) float64 {
	lat1, lon1 := Decode(a)
	lat2, lon2 := Decode(b)
	return Distance(lat1, lon1, lat2, lon2)
}

// DistanceKm：球面距离（千米），仅用于结果展示，不参与近邻判定
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusKm
}
