package api

import (
	"starlink-api/internal/position"
	"starlink-api/internal/store"
)

type lastKnownRequest struct {
	ObjectID  string `json:"object_id"`
	Timestamp string `json:"timestamp"`
}

// closestRequest：经纬度同时省略时按访问者 IP 定位
type closestRequest struct {
	Timestamp string   `json:"timestamp"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// 文档注释：位置返回结构（对外）
// 约束：creation_date 使用与请求相同的时间戳格式；坐标缺失时输出 null
type positionResponse struct {
	ObjectID     string   `json:"object_id"`
	CreationDate string   `json:"creation_date"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
}

func fromRecord(r position.Record) positionResponse {
	return positionResponse{
		ObjectID:     r.ObjectID,
		CreationDate: position.FormatTimestamp(r.CreationTime),
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
	}
}

func fromMatch(m store.Match) positionResponse {
	p := fromRecord(m.Record)
	km := m.DistanceMeters / 1000
	p.DistanceKm = &km
	return p
}

type ingestRequest struct {
	Path        string `json:"path" validate:"required"`
	BatchSize   int    `json:"batch_size" validate:"omitempty,gte=1,lte=100000"`
	SkipInvalid bool   `json:"skip_invalid"`
}

type errorResponse struct {
	Error string `json:"error"`
}
