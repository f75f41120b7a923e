package store

import (
	"strconv"
	"strings"

	"geodis/internal/countries"
)

// City：城市类实体，按完整字段元组去重（同名不同坐标的城市各自保留）
var City = func() Type {
	t := NewType("City", []string{FieldLat, FieldLon, FieldName, FieldCountry, FieldRegion}, nil)
	t.Normalize = normalizeCountry
	return t
}()

// ZIPCode：邮编类实体，仅按邮编去重，重复导入覆盖
var ZIPCode = NewType("ZIPCode", []string{FieldLat, FieldLon, FieldName, FieldCountry, FieldRegion, FieldCity}, []string{FieldName})

// TypeByName：CLI/HTTP 层按名称选择实体类型
func TypeByName(name string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "city", "cities":
		return City, true
	case "zip", "zipcode", "zipcodes", "postal":
		return ZIPCode, true
	}
	return Type{}, false
}

// NewCity：构造城市实体；国家代码在保存时经静态表规整为名称
func NewCity(lat, lon float64, name, country, region string) Entity {
	return Entity{
		FieldLat:     formatCoord(lat),
		FieldLon:     formatCoord(lon),
		FieldName:    name,
		FieldCountry: country,
		FieldRegion:  region,
	}
}

// NewZIPCode：构造邮编实体，name 为邮编本身
func NewZIPCode(lat, lon float64, code, country, region, city string) Entity {
	return Entity{
		FieldLat:     formatCoord(lat),
		FieldLon:     formatCoord(lon),
		FieldName:    code,
		FieldCountry: country,
		FieldRegion:  region,
		FieldCity:    city,
	}
}

func normalizeCountry(e Entity) {
	e[FieldCountry] = countries.Name(e[FieldCountry])
}

func formatCoord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
