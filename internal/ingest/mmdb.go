package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"

	"geodis/internal/geohash"
	"geodis/internal/iprange"
	"geodis/internal/store"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

// ErrInvalidDatabase：MMDB 文件缺失或格式错误
var ErrInvalidDatabase = errors.New("invalid mmdb database file")

// MMDB：MaxMind GeoLite2-City 数据库，每个 IPv4 网络导入为一个区间
// 约束：无坐标的网络跳过；辅助编码为邮编；城市名取 Language（缺省 en）
type MMDB struct {
	db       *maxminddb.Reader
	Cities   bool
	Language string
}

// OpenMMDB：打开数据库文件
func OpenMMDB(path string, cities bool) (*MMDB, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, ErrInvalidDatabase
		}
		if errors.As(err, &maxminddb.InvalidDatabaseError{}) {
			return nil, ErrInvalidDatabase
		}
		return nil, fmt.Errorf("opening maxmind reader: %w", err)
	}
	return &MMDB{db: db, Cities: cities, Language: "en"}, nil
}

func (*MMDB) Name() string { return "mmdb" }

func (m *MMDB) Close() error { return m.db.Close() }

func (m *MMDB) Run(ctx context.Context, s *Sink) (int, error) {
	count := 0
	nets := m.db.Networks(maxminddb.SkipAliasedNetworks)
	for nets.Next() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		var rec geoip2.City
		subnet, err := nets.Network(&rec)
		if err != nil {
			return count, err
		}
		r, ok := rangeFromCity(subnet, &rec)
		if !ok {
			s.Skip("iprange", "no ipv4 location")
			continue
		}
		added, err := s.AddRange(ctx, r)
		if err != nil {
			return count, err
		}
		if !added {
			continue
		}
		count++
		if m.Cities {
			if e := cityFromRecord(&rec, m.Language); e != nil {
				if _, err := s.SaveEntity(ctx, store.City, e); err != nil {
					return count, err
				}
			}
		}
	}
	return count, nets.Err()
}

// rangeFromCity：网络首尾地址 + 记录坐标 + 邮编
func rangeFromCity(n *net.IPNet, rec *geoip2.City) (iprange.Range, bool) {
	lo, hi, ok := iprange.NetworkBounds(n)
	if !ok {
		return iprange.Range{}, false
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return iprange.Range{}, false
	}
	key, err := geohash.Encode(rec.Location.Latitude, rec.Location.Longitude)
	if err != nil {
		return iprange.Range{}, false
	}
	return iprange.Range{Min: lo, Max: hi, Geohash: key, Aux: rec.Postal.Code}, true
}

func cityFromRecord(rec *geoip2.City, lang string) store.Entity {
	name := localized(rec.City.Names, lang)
	if name == "" {
		return nil
	}
	region := ""
	if len(rec.Subdivisions) > 0 {
		region = rec.Subdivisions[0].IsoCode
	}
	return store.NewCity(rec.Location.Latitude, rec.Location.Longitude, name, rec.Country.IsoCode, region)
}

func localized(names map[string]string, lang string) string {
	if v := names[lang]; v != "" {
		return v
	}
	return names["en"]
}
