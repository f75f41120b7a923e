package store

import (
	"strconv"
	"strings"

	"geodis/internal/geoerr"
	"geodis/internal/geohash"
)

// 属性名
const (
	FieldLat     = "lat"
	FieldLon     = "lon"
	FieldName    = "name"
	FieldCountry = "country"
	FieldRegion  = "region"
	FieldCity    = "city"
)

// Entity：点实体属性表（字段集由 Type.Schema 决定）
type Entity map[string]string

func (e Entity) Name() string { return e[FieldName] }

// Lat：纬度；无法解析时返回 0
func (e Entity) Lat() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(e[FieldLat]), 64)
	return v
}

// Lon：经度；无法解析时返回 0
func (e Entity) Lon() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(e[FieldLon]), 64)
	return v
}

// Point：解析经纬度
func (e Entity) Point() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(strings.TrimSpace(e[FieldLat]), 64)
	if err != nil {
		return 0, 0, geoerr.Invalid(FieldLat, "%q is not a number", e[FieldLat])
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(e[FieldLon]), 64)
	if err != nil {
		return 0, 0, geoerr.Invalid(FieldLon, "%q is not a number", e[FieldLon])
	}
	return lat, lon, nil
}

// Geohash：实体坐标对应的键；坐标越界返回 ValidationError
func (e Entity) Geohash() (geohash.Key, error) {
	lat, lon, err := e.Point()
	if err != nil {
		return 0, err
	}
	return geohash.Encode(lat, lon)
}

func (e Entity) clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Type：实体类型描述（替代按子类区分字段）
// 约束：KeyFields 在构造时已解析（未声明时等于 Schema），不在每次调用时重算
type Type struct {
	Name      string
	Schema    []string
	KeyFields []string
	// Normalize：保存前对副本做字段规整，可为空
	Normalize func(Entity)
	// declared：身份字段由调用方显式声明；未声明时身份键覆盖全部 Schema，但只参与去重不参与必填校验
	declared bool
}

// NewType：构造类型描述；keyFields 为空时使用全部 Schema 字段作为身份键
func NewType(name string, schema, keyFields []string) Type {
	declared := len(keyFields) > 0
	if !declared {
		keyFields = schema
	}
	return Type{
		Name:      name,
		Schema:    append([]string(nil), schema...),
		KeyFields: append([]string(nil), keyFields...),
		declared:  declared,
	}
}

// IndexKey：该类型的 geohash 有序集合键
func (t Type) IndexKey() string { return t.Name + ":geohash" }

// ID：身份键 <TypeName>:<key field values joined by ':'>，同时作为散列键与有序集合成员
func (t Type) ID(e Entity) string {
	var b strings.Builder
	b.WriteString(t.Name)
	for _, f := range t.KeyFields {
		b.WriteByte(':')
		b.WriteString(e[f])
	}
	return b.String()
}

// validate：lat/lon 与显式声明的身份字段必须非空，坐标必须合法
// 约束：未声明身份字段的类型（如 City）允许 region/country 等为空，空值照常拼入身份键
func (t Type) validate(e Entity) (geohash.Key, error) {
	for _, f := range []string{FieldLat, FieldLon} {
		if strings.TrimSpace(e[f]) == "" {
			return 0, geoerr.Invalid(f, "required")
		}
	}
	if !t.declared {
		return e.Geohash()
	}
	for _, f := range t.KeyFields {
		if strings.TrimSpace(e[f]) == "" {
			return 0, geoerr.Invalid(f, "required key field")
		}
	}
	return e.Geohash()
}

// hashArgs：HSET 参数，仅写 Schema 字段
func (t Type) hashArgs(e Entity) []any {
	args := make([]any, 0, len(t.Schema)*2)
	for _, f := range t.Schema {
		args = append(args, f, e[f])
	}
	return args
}
