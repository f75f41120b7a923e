// 包 api：HTTP 查询面，坐标近邻与 IP 解析；独立 ServeMux 由主入口挂载到 API_BASE 前缀
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"geodis/internal/geoerr"
	"geodis/internal/geohash"
	"geodis/internal/iprange"
	"geodis/internal/logger"
	"geodis/internal/metrics"
	"geodis/internal/store"
)

// BuildRoutes：注册 /nearest、/ip、/ip/aux
// 参数：cache 可为 nil（不缓存）
func BuildRoutes(st *store.Store, idx *iprange.Index, cache *Cache) *http.ServeMux {
	h := &handler{st: st, idx: idx, cache: cache}
	mux := http.NewServeMux()
	mux.HandleFunc("/nearest", h.nearest)
	mux.HandleFunc("/ip", h.ip)
	mux.HandleFunc("/ip/aux", h.ipAux)
	return mux
}

type handler struct {
	st    *store.Store
	idx   *iprange.Index
	cache *Cache
}

// nearest：GET /nearest?lat=&lon=&type=city|zip
func (h *handler) nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, ok := store.TypeByName(q.Get("type"))
	if !ok {
		writeError(w, geoerr.Invalid("type", "unknown type %q", q.Get("type")))
		return
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, geoerr.Invalid("lat", "%q is not a number", q.Get("lat")))
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, geoerr.Invalid("lon", "%q is not a number", q.Get("lon")))
		return
	}
	key, err := geohash.Encode(lat, lon)
	if err != nil {
		writeError(w, err)
		return
	}
	ck := "nearest:" + t.Name + ":" + key.String()
	c, err := h.lookup(r.Context(), "nearest", ck, func(ctx context.Context) (cached, error) {
		e, found, err := h.st.Nearest(ctx, t, key)
		return cached{entity: e, found: found}, err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.found {
		writeNotFound(w)
		return
	}
	e := store.Entity(c.entity)
	res := newEntityResult(t, e)
	if elat, elon, err := e.Point(); err == nil {
		d := geohash.DistanceKm(lat, lon, elat, elon)
		res.DistanceKm = &d
	}
	writeJSON(w, http.StatusOK, res)
}

// ip：GET /ip?ip=&type=；缺省 ip 时取访问者地址
func (h *handler) ip(w http.ResponseWriter, r *http.Request) {
	t, ok := store.TypeByName(r.URL.Query().Get("type"))
	if !ok {
		writeError(w, geoerr.Invalid("type", "unknown type %q", r.URL.Query().Get("type")))
		return
	}
	v, err := iprange.IPToUint32(clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	ck := "ip:" + t.Name + ":" + strconv.FormatUint(uint64(v), 10)
	c, err := h.lookup(r.Context(), "ip", ck, func(ctx context.Context) (cached, error) {
		e, found, err := h.idx.ResolveToEntity(ctx, v, t)
		return cached{entity: e, found: found}, err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.found {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, newEntityResult(t, c.entity))
}

// ipAux：GET /ip/aux?ip=
func (h *handler) ipAux(w http.ResponseWriter, r *http.Request) {
	v, err := iprange.IPToUint32(clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	ck := "aux:" + strconv.FormatUint(uint64(v), 10)
	c, err := h.lookup(r.Context(), "ip_aux", ck, func(ctx context.Context) (cached, error) {
		aux, found, err := h.idx.ResolveToAux(ctx, v)
		return cached{aux: aux, found: found}, err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.found {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, auxResult{IP: iprange.Uint32ToIP(v), Aux: c.aux})
}

// lookup：缓存 → 解析 → 回填；错误不缓存
func (h *handler) lookup(ctx context.Context, kind, key string, fn func(context.Context) (cached, error)) (cached, error) {
	if c, ok := h.cache.get(key); ok {
		metrics.LookupsTotal.WithLabelValues(kind, result(c.found)).Inc()
		return c, nil
	}
	begin := time.Now()
	c, err := fn(ctx)
	metrics.LookupDurationMs.WithLabelValues(kind).Observe(float64(time.Since(begin).Microseconds()) / 1000)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues(kind, "error").Inc()
		return c, err
	}
	metrics.LookupsTotal.WithLabelValues(kind, result(c.found)).Inc()
	h.cache.put(key, c)
	return c, nil
}

func result(found bool) string {
	if found {
		return "hit"
	}
	return "miss"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: geoerr.ErrNotFound.Error()})
}

// writeError：校验失败 400，存储不可用 503，数据损坏及其他 500
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case geoerr.IsValidation(err):
		code = http.StatusBadRequest
	case geoerr.IsUnavailable(err):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		code = 499
	}
	if code >= 500 {
		logger.L().Error("api_error", "status", code, "err", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}
