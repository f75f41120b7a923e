package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"geodis/internal/geohash"
	"geodis/internal/iprange"
	"geodis/internal/store"
)

// CitiesCSV：GeoNames cities*.txt（制表符分隔）
// 列：0 geonameid，1 name，4 latitude，5 longitude，8 country code，10 admin1 code
type CitiesCSV struct{ R io.Reader }

func (CitiesCSV) Name() string { return "cities" }

func (c CitiesCSV) Run(ctx context.Context, s *Sink) (int, error) {
	rd := bufio.NewScanner(c.R)
	rd.Buffer(make([]byte, 1024), 1024*1024)
	count := 0
	for rd.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line := strings.TrimRight(rd.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 11 {
			s.Skip(store.City.Name, "short row")
			continue
		}
		e := store.Entity{
			store.FieldLat:     strings.TrimSpace(parts[4]),
			store.FieldLon:     strings.TrimSpace(parts[5]),
			store.FieldName:    strings.TrimSpace(parts[1]),
			store.FieldCountry: strings.TrimSpace(parts[8]),
			store.FieldRegion:  strings.TrimSpace(parts[10]),
		}
		ok, err := s.SaveEntity(ctx, store.City, e)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, rd.Err()
}

// ZIPCSV：逗号分隔 zip,lat,lon,city,state[,country]
// 约束：首行纬度列不是数字时视为表头跳过；缺省国家为 US，原样存储不做规整
type ZIPCSV struct{ R io.Reader }

func (ZIPCSV) Name() string { return "zip" }

func (z ZIPCSV) Run(ctx context.Context, s *Sink) (int, error) {
	r := newCSVReader(z.R)
	count := 0
	for line := 0; ; line++ {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			if isRowError(err) {
				s.Skip(store.ZIPCode.Name, err.Error())
				continue
			}
			return count, err
		}
		if line == 0 && isHeader(rec, 1) {
			continue
		}
		if len(rec) < 5 {
			s.Skip(store.ZIPCode.Name, "short row")
			continue
		}
		country := "US"
		if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
			country = strings.TrimSpace(rec[5])
		}
		e := store.Entity{
			store.FieldLat:     strings.TrimSpace(rec[1]),
			store.FieldLon:     strings.TrimSpace(rec[2]),
			store.FieldName:    strings.TrimSpace(rec[0]),
			store.FieldCountry: country,
			store.FieldRegion:  strings.TrimSpace(rec[4]),
			store.FieldCity:    strings.TrimSpace(rec[3]),
		}
		ok, err := s.SaveEntity(ctx, store.ZIPCode, e)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
}

// IPRangesCSV：IP2Location 风格 "ip_from","ip_to","cc","country","region","city","lat","lon","zip"
// 约束：区间端点为十进制整数；国家代码为 "-" 的保留段跳过；zip 为 "-" 时辅助编码为空
type IPRangesCSV struct {
	R io.Reader
	// Cities：同时把区间所在城市写入 City 索引
	Cities bool
}

func (IPRangesCSV) Name() string { return "ipranges" }

func (p IPRangesCSV) Run(ctx context.Context, s *Sink) (int, error) {
	r := newCSVReader(p.R)
	count := 0
	for line := 0; ; line++ {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			if isRowError(err) {
				s.Skip("iprange", err.Error())
				continue
			}
			return count, err
		}
		if line == 0 && isHeader(rec, 0) {
			continue
		}
		rg, city, ok := parseIPRangeRow(rec)
		if !ok {
			s.Skip("iprange", "bad row")
			continue
		}
		added, err := s.AddRange(ctx, rg)
		if err != nil {
			return count, err
		}
		if !added {
			continue
		}
		count++
		if p.Cities && city != nil {
			if _, err := s.SaveEntity(ctx, store.City, city); err != nil {
				return count, err
			}
		}
	}
}

// parseIPRangeRow：解析一行为区间与可选城市实体
func parseIPRangeRow(rec []string) (iprange.Range, store.Entity, bool) {
	if len(rec) < 8 {
		return iprange.Range{}, nil, false
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	if rec[2] == "-" || rec[2] == "" {
		return iprange.Range{}, nil, false
	}
	lo, err := strconv.ParseUint(rec[0], 10, 32)
	if err != nil {
		return iprange.Range{}, nil, false
	}
	hi, err := strconv.ParseUint(rec[1], 10, 32)
	if err != nil {
		return iprange.Range{}, nil, false
	}
	lat, err := strconv.ParseFloat(rec[6], 64)
	if err != nil {
		return iprange.Range{}, nil, false
	}
	lon, err := strconv.ParseFloat(rec[7], 64)
	if err != nil {
		return iprange.Range{}, nil, false
	}
	key, err := geohash.Encode(lat, lon)
	if err != nil {
		return iprange.Range{}, nil, false
	}
	aux := ""
	if len(rec) > 8 && rec[8] != "-" {
		aux = rec[8]
	}
	var city store.Entity
	if rec[5] != "" && rec[5] != "-" {
		city = store.NewCity(lat, lon, rec[5], rec[2], rec[4])
	}
	return iprange.Range{Min: uint32(lo), Max: uint32(hi), Geohash: key, Aux: aux}, city, true
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bufio.NewReaderSize(r, 64*1024))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	return cr
}

// isHeader：第 col 列不是数字时视为表头
func isHeader(rec []string, col int) bool {
	if len(rec) <= col {
		return true
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
	return err != nil
}

// isRowError：单行格式错误可以跳过；其余读错误中断导入
func isRowError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}
