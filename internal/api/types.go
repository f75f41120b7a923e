package api

import "geodis/internal/store"

// entityResult：实体查询返回结构（对外）
// 约束：attributes 原样输出存储散列；distance_km 仅坐标查询时给出，仅用于展示
type entityResult struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	DistanceKm *float64          `json:"distance_km,omitempty"`
}

type auxResult struct {
	IP  string `json:"ip"`
	Aux string `json:"aux"`
}

type errorBody struct {
	Error string `json:"error"`
}

func newEntityResult(t store.Type, e store.Entity) entityResult {
	return entityResult{Type: t.Name, ID: t.ID(e), Attributes: e}
}
