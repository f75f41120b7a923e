package iprange

import (
	"context"
	"net"
	"testing"

	"geodis/internal/geoerr"
	"geodis/internal/geohash"
	"geodis/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*Index, *store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rc.Close() })
	st := store.New(rc)
	return NewIndex(st), st, mr
}

func TestRangeMember(t *testing.T) {
	r := Range{Min: 1000, Max: 2000, Geohash: 12345, Aux: "X"}
	require.Equal(t, "1000:2000:X", r.ID())
	require.Equal(t, "12345@1000:2000:X", r.Member())

	got, err := ParseMember(r.Member())
	require.NoError(t, err)
	require.Equal(t, r, got)

	got, err = ParseMember("7@1:2:a:b")
	require.NoError(t, err)
	require.Equal(t, "a:b", got.Aux)

	got, err = ParseMember("7@1:2:")
	require.NoError(t, err)
	require.Empty(t, got.Aux)

	for _, bad := range []string{"", "no-at", "x@1:2:a", "7@1:2", "7@a:2:x", "7@1:b:x", "7@1:4294967296:x"} {
		_, err := ParseMember(bad)
		require.Error(t, err, "member %q", bad)
	}
}

func TestResolveContainment(t *testing.T) {
	ctx := context.Background()
	x, _, _ := newTestIndex(t)
	k := geohash.MustEncode(1, 1)
	require.NoError(t, x.AddRange(ctx, Range{Min: 1000, Max: 2000, Geohash: k, Aux: "X"}, nil))

	for _, ip := range []uint32{1000, 1500, 2000} {
		r, ok, err := x.Resolve(ctx, ip)
		require.NoError(t, err)
		require.True(t, ok, "ip %d", ip)
		require.Equal(t, "X", r.Aux)
		require.Equal(t, k, r.Geohash)
	}

	for _, ip := range []uint32{0, 999, 2001, 1 << 31} {
		_, ok, err := x.Resolve(ctx, ip)
		require.NoError(t, err)
		require.False(t, ok, "ip %d", ip)
	}

	require.NoError(t, x.AddRange(ctx, Range{Min: 2001, Max: 3000, Geohash: k, Aux: "Y"}, nil))
	r, ok, err := x.Resolve(ctx, 2001)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Y", r.Aux)

	// 999 找到的是 [1000,2000]，包含校验拒绝
	_, ok, err = x.Resolve(ctx, 999)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveGap(t *testing.T) {
	ctx := context.Background()
	x, _, _ := newTestIndex(t)
	require.NoError(t, x.AddRange(ctx, Range{Min: 10, Max: 20, Aux: "a"}, nil))
	require.NoError(t, x.AddRange(ctx, Range{Min: 50, Max: 60, Aux: "b"}, nil))

	_, ok, err := x.Resolve(ctx, 30)
	require.NoError(t, err)
	require.False(t, ok)

	aux, ok, err := x.ResolveToAux(ctx, 55)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", aux)
}

func TestAddRangeIdempotent(t *testing.T) {
	ctx := context.Background()
	x, _, _ := newTestIndex(t)
	r := Range{Min: 1, Max: 2, Geohash: 3, Aux: "z"}
	require.NoError(t, x.AddRange(ctx, r, nil))
	require.NoError(t, x.AddRange(ctx, r, nil))
	n, err := x.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestAddRangeValidation(t *testing.T) {
	ctx := context.Background()
	x, _, mr := newTestIndex(t)
	require.True(t, geoerr.IsValidation(x.AddRange(ctx, Range{Min: 5, Max: 4}, nil)))
	require.True(t, geoerr.IsValidation(x.AddRange(ctx, Range{Min: 1, Max: 2, Geohash: geohash.MaxKey}, nil)))
	require.Empty(t, mr.Keys())
}

func TestAddRangeBatched(t *testing.T) {
	ctx := context.Background()
	x, st, mr := newTestIndex(t)
	b := store.NewBatch(st.Client(), 0)
	require.NoError(t, x.AddRange(ctx, Range{Min: 1, Max: 2, Aux: "a"}, b))
	require.NoError(t, x.AddRange(ctx, Range{Min: 3, Max: 4, Aux: "b"}, b))
	require.Empty(t, mr.Keys())
	sent, err := b.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	n, err := x.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestResolveCorruptMember(t *testing.T) {
	ctx := context.Background()
	x, _, mr := newTestIndex(t)
	_, err := mr.ZAdd(LocationsKey, 100, "garbage")
	require.NoError(t, err)

	_, ok, err := x.Resolve(ctx, 50)
	require.False(t, ok)
	var c *geoerr.CorruptEntryError
	require.ErrorAs(t, err, &c)
	require.Equal(t, "garbage", c.Value)
}

func TestEndToEndLosAngeles(t *testing.T) {
	ctx := context.Background()
	x, st, _ := newTestIndex(t)

	require.NoError(t, st.Save(ctx, store.City, store.NewCity(34.05223, -118.24368, "Los Angeles", "US", "CA"), nil))
	require.NoError(t, st.Save(ctx, store.City, store.NewCity(40.71427, -74.00597, "New York City", "US", "NY"), nil))

	lo, err := IPToUint32("4.3.68.0")
	require.NoError(t, err)
	hi, err := IPToUint32("4.3.68.255")
	require.NoError(t, err)
	require.NoError(t, x.AddRange(ctx, Range{Min: lo, Max: hi, Geohash: geohash.MustEncode(34.05223, -118.24368), Aux: "90001"}, nil))

	e, ok, err := x.ResolveIP(ctx, "4.3.68.1", store.City)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Los Angeles", e.Name())
	require.Equal(t, "United States", e[store.FieldCountry])

	aux, ok, err := x.ResolveIPToAux(ctx, "4.3.68.1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "90001", aux)

	_, ok, err = x.ResolveIP(ctx, "4.3.69.1", store.City)
	require.NoError(t, err)
	require.False(t, ok)

	// 区间命中但该类型没有任何实体
	_, ok, err = x.ResolveIP(ctx, "4.3.68.1", store.ZIPCode)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = x.ResolveIP(ctx, "not-an-ip", store.City)
	require.True(t, geoerr.IsValidation(err))
	_, _, err = x.ResolveIPToAux(ctx, "2001:db8::1")
	require.True(t, geoerr.IsValidation(err))
}

func TestResolveUnavailable(t *testing.T) {
	x, _, mr := newTestIndex(t)
	mr.Close()
	_, _, err := x.Resolve(context.Background(), 1)
	require.True(t, geoerr.IsUnavailable(err))
	require.True(t, geoerr.IsUnavailable(x.AddRange(context.Background(), Range{Min: 1, Max: 2}, nil)))
}

func TestIPToUint32(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint32
	}{
		{"0.0.0.0", 0},
		{"4.3.68.1", 4<<24 | 3<<16 | 68<<8 | 1},
		{"255.255.255.255", 0xffffffff},
		{" 10.0.0.1 ", 0x0a000001},
		{"::ffff:1.2.3.4", 0x01020304},
	} {
		got, err := IPToUint32(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
		if tc.in == "4.3.68.1" {
			require.Equal(t, tc.in, Uint32ToIP(got))
		}
	}
	for _, bad := range []string{"", "1.2.3", "256.1.1.1", "::1", "host"} {
		_, err := IPToUint32(bad)
		require.True(t, geoerr.IsValidation(err), bad)
	}
}

func TestNetworkBounds(t *testing.T) {
	_, n, err := net.ParseCIDR("4.3.68.0/24")
	require.NoError(t, err)
	lo, hi, ok := NetworkBounds(n)
	require.True(t, ok)
	require.Equal(t, "4.3.68.0", Uint32ToIP(lo))
	require.Equal(t, "4.3.68.255", Uint32ToIP(hi))

	_, all, err := net.ParseCIDR("0.0.0.0/0")
	require.NoError(t, err)
	lo, hi, ok = NetworkBounds(all)
	require.True(t, ok)
	require.Zero(t, lo)
	require.Equal(t, uint32(0xffffffff), hi)

	mapped := &net.IPNet{IP: net.ParseIP("1.2.3.0"), Mask: net.CIDRMask(120, 128)}
	lo, hi, ok = NetworkBounds(mapped)
	require.True(t, ok)
	require.Equal(t, "1.2.3.0", Uint32ToIP(lo))
	require.Equal(t, "1.2.3.255", Uint32ToIP(hi))

	_, v6, err := net.ParseCIDR("2001:db8::/32")
	require.NoError(t, err)
	_, _, ok = NetworkBounds(v6)
	require.False(t, ok)
	_, _, ok = NetworkBounds(nil)
	require.False(t, ok)
}
