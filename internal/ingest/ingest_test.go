package ingest

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"geodis/internal/geohash"
	"geodis/internal/iprange"
	"geodis/internal/logger"
	"geodis/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/oschwald/geoip2-golang"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T, batch int) (*Sink, *store.Store, *iprange.Index) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })
	st := store.New(rc)
	idx := iprange.NewIndex(st)
	return NewSink(st, idx, batch), st, idx
}

const citiesTSV = "5368361\tLos Angeles\tLos Angeles\tLA\t34.05223\t-118.24368\tP\tPPLA2\tUS\t\tCA\t037\t\t\t3971883\t89\t115\tAmerica/Los_Angeles\t2019-09-05\n" +
	"5391959\tSan Francisco\tSan Francisco\t\t37.77493\t-122.41942\tP\tPPLA2\tUS\t\tCA\t075\t\t\t864816\t16\t28\tAmerica/Los_Angeles\t2019-09-05\n" +
	"\n" +
	"short\trow\n" +
	"1\tNowhere\tNowhere\t\t95\t0\tP\tPPL\tZZ\t\t00\n"

func TestCitiesCSV(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestSink(t, 0)

	n, err := Run(ctx, CitiesCSV{R: strings.NewReader(citiesTSV)}, s)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, s.Skipped())
	require.Equal(t, 2, s.Flushed())

	c, err := st.Count(ctx, store.City)
	require.NoError(t, err)
	require.EqualValues(t, 2, c)

	e, ok, err := st.NearestByCoordinate(ctx, store.City, 34.0, -118.2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Los Angeles", e.Name())
	require.Equal(t, "United States", e[store.FieldCountry])
	require.Equal(t, "CA", e[store.FieldRegion])
}

func TestCitiesCSVEmptyAdmin1(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger.SetupWriter(&logs, "debug", "text")
	t.Cleanup(func() { logger.SetupWriter(os.Stderr, "", "") })
	s, st, _ := newTestSink(t, 0)

	row := "1880252\tSingapore\tSingapore\t\t1.28967\t103.85007\tP\tPPLC\tSG\t\t\t\t\t\t3547809\t\t8\tAsia/Singapore\t2019-09-05\n"
	n, err := Run(ctx, CitiesCSV{R: strings.NewReader(row)}, s)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, s.Skipped())

	e, ok, err := st.NearestByCoordinate(ctx, store.City, 1.3, 103.8)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Singapore", e.Name())
	require.Empty(t, e[store.FieldRegion])

	require.Contains(t, logs.String(), "msg=ingest_done")
	require.Contains(t, logs.String(), "component=ingest")
}

func TestZIPCSV(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestSink(t, 1000)

	in := `"zip","latitude","longitude","city","state"
"90001","33.973951","-118.248405","Los Angeles","CA"
"94103","37.772329","-122.410260","San Francisco","CA"
"90001","33.973951","-118.248405","LA","CA"
"bad","x","y","z","w"
"T2P","51.04","-114.07","Calgary","AB","CA"
`
	n, err := Run(ctx, ZIPCSV{R: strings.NewReader(in)}, s)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, 1, s.Skipped())

	c, err := st.Count(ctx, store.ZIPCode)
	require.NoError(t, err)
	require.EqualValues(t, 3, c)

	e, ok, err := st.Load(ctx, "ZIPCode:90001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "LA", e[store.FieldCity])
	require.Equal(t, "US", e[store.FieldCountry])

	e, ok, err = st.Load(ctx, "ZIPCode:T2P")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "CA", e[store.FieldCountry])
	require.Equal(t, "AB", e[store.FieldRegion])
}

func TestZIPCSVWithoutHeader(t *testing.T) {
	s, _, _ := newTestSink(t, 0)
	n, err := Run(context.Background(), ZIPCSV{R: strings.NewReader("10001,40.75,-73.99,New York,NY\n")}, s)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestIPRangesCSV(t *testing.T) {
	ctx := context.Background()
	s, st, idx := newTestSink(t, 0)

	in := `"0","16777215","-","-","-","-","0.000000","0.000000","-"
"67322880","67323135","US","United States of America","California","Los Angeles","34.052230","-118.243680","90001"
"67323136","67323391","US","United States of America","New York","New York City","40.714270","-74.005970","-"
"5","4","US","x","y","z","1","1","1"
`
	n, err := Run(ctx, IPRangesCSV{R: strings.NewReader(in), Cities: true}, s)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, s.Skipped())

	c, err := idx.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, c)
	c, err = st.Count(ctx, store.City)
	require.NoError(t, err)
	require.EqualValues(t, 2, c)

	e, ok, err := idx.ResolveIP(ctx, "4.3.68.1", store.City)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Los Angeles", e.Name())

	aux, ok, err := idx.ResolveIPToAux(ctx, "4.3.68.1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "90001", aux)

	aux, ok, err = idx.ResolveIPToAux(ctx, "4.3.69.1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, aux)

	_, ok, err = idx.ResolveIPToAux(ctx, "0.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIPRangesCSVWithoutCities(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestSink(t, 0)
	in := "ip_from,ip_to,country_code,country_name,region_name,city_name,latitude,longitude,zip_code\n" +
		"67322880,67323135,US,United States,California,Los Angeles,34.05223,-118.24368,90001\n"
	n, err := Run(ctx, IPRangesCSV{R: strings.NewReader(in)}, s)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	c, err := st.Count(ctx, store.City)
	require.NoError(t, err)
	require.Zero(t, c)
}

func TestSinkBatches(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestSink(t, 2)
	for i, z := range []string{"1", "2", "3", "4", "5"} {
		ok, err := s.SaveEntity(ctx, store.ZIPCode, store.NewZIPCode(float64(i), float64(i), z, "US", "", ""))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 4, s.Flushed())
	require.NoError(t, s.Close(ctx))
	require.Equal(t, 5, s.Flushed())
	require.Equal(t, 5, s.Queued())

	c, err := st.Count(ctx, store.ZIPCode)
	require.NoError(t, err)
	require.EqualValues(t, 5, c)
}

func TestSinkSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSink(t, 0)
	ok, err := s.SaveEntity(ctx, store.City, store.NewCity(91, 0, "x", "US", ""))
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.AddRange(ctx, iprange.Range{Min: 2, Max: 1})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, s.Skipped())
	require.Zero(t, s.Queued())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _, _ := newTestSink(t, 0)
	_, err := Run(ctx, CitiesCSV{R: strings.NewReader(citiesTSV)}, s)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRangeFromCity(t *testing.T) {
	_, n, err := net.ParseCIDR("4.3.68.0/24")
	require.NoError(t, err)

	var rec geoip2.City
	rec.Location.Latitude = 34.05223
	rec.Location.Longitude = -118.24368
	rec.Postal.Code = "90001"
	rec.City.Names = map[string]string{"en": "Los Angeles", "de": "Los Angeles"}
	rec.Country.IsoCode = "US"

	r, ok := rangeFromCity(n, &rec)
	require.True(t, ok)
	require.Equal(t, "4.3.68.0", iprange.Uint32ToIP(r.Min))
	require.Equal(t, "4.3.68.255", iprange.Uint32ToIP(r.Max))
	require.Equal(t, "90001", r.Aux)
	require.Equal(t, geohash.MustEncode(34.05223, -118.24368), r.Geohash)

	e := cityFromRecord(&rec, "fr")
	require.Equal(t, "Los Angeles", e.Name())
	require.Equal(t, "US", e[store.FieldCountry])

	_, v6, err := net.ParseCIDR("2001:db8::/32")
	require.NoError(t, err)
	_, ok = rangeFromCity(v6, &rec)
	require.False(t, ok)

	var empty geoip2.City
	_, ok = rangeFromCity(n, &empty)
	require.False(t, ok)
	require.Nil(t, cityFromRecord(&empty, "en"))
}

func TestOpenMMDBMissing(t *testing.T) {
	_, err := OpenMMDB("/nonexistent/GeoLite2-City.mmdb", false)
	require.ErrorIs(t, err, ErrInvalidDatabase)
}

func TestOpenHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL+"/data.csv")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "payload", string(b))

	_, err = Open(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	_, _, err := Build(ctx, "nope", "x", false)
	require.Error(t, err)

	_, _, err = Build(ctx, "cities", "/nonexistent/cities.txt", false)
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "10001,40.75,-73.99,New York,NY\n")
	}))
	defer srv.Close()
	imp, closer, err := Build(ctx, "zip", srv.URL, false)
	require.NoError(t, err)
	defer closer.Close()
	require.Equal(t, "zip", imp.Name())

	s, _, _ := newTestSink(t, 0)
	n, err := Run(ctx, imp, s)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestNextWeekly(t *testing.T) {
	loc := time.UTC
	// 2026-10-19 是周一
	mon := time.Date(2026, 10, 19, 1, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 10, 19, 3, 0, 0, 0, loc), nextWeekly(mon, time.Monday, 3))

	after := time.Date(2026, 10, 19, 4, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 10, 26, 3, 0, 0, 0, loc), nextWeekly(after, time.Monday, 3))

	wed := time.Date(2026, 10, 21, 12, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 10, 26, 3, 0, 0, 0, loc), nextWeekly(wed, time.Monday, 3))

	exact := time.Date(2026, 10, 26, 3, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 11, 2, 3, 0, 0, 0, loc), nextWeekly(exact, time.Monday, 3))
}
