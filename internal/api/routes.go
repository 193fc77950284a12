// 包 api：集中注册 HTTP API 路由以解耦主入口
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/rs/cors"

	"starlink-api/internal/geoip"
	"starlink-api/internal/ingest"
	"starlink-api/internal/logger"
	"starlink-api/internal/metrics"
	"starlink-api/internal/position"
	"starlink-api/internal/query"
	"starlink-api/internal/store"
	"starlink-api/internal/version"
)

const maxBodyBytes = 1 << 20

// Locator：IP 定位，未配置时 closest_satellite 要求显式坐标
type Locator interface {
	Locate(ip string) (orb.Point, error)
}

// Deps：路由依赖
type Deps struct {
	Engine     *query.Engine
	Writer     store.Writer // 管理接口导入用；nil 时不注册
	Locator    Locator
	AdminToken string
	Ingest     ingest.Options
	Backend    string
	// Ctx：后台导入使用的上下文，随服务关闭取消；默认 Background
	Ctx context.Context
}

// BuildRoutes：构建挂载在 base 前缀下的全部路由（含 CORS）
func BuildRoutes(base string, d Deps) http.Handler {
	if d.Ctx == nil {
		d.Ctx = context.Background()
	}
	h := &handlers{d: d, runs: newRunRegistry()}
	r := mux.NewRouter()
	sub := r.PathPrefix(base).Subrouter()
	sub.HandleFunc("/last_known_location", h.lastKnown).Methods(http.MethodPost)
	sub.HandleFunc("/closest_satellite", h.closest).Methods(http.MethodPost)
	sub.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	sub.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if d.Writer != nil {
		sub.HandleFunc("/admin/ingest", h.requireAdmin(h.startIngest)).Methods(http.MethodPost)
		sub.HandleFunc("/admin/ingest/{id}", h.requireAdmin(h.ingestStatus)).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Admin-Token"},
		MaxAge:         600,
	})
	return c.Handler(r)
}

type handlers struct {
	d    Deps
	runs *runRegistry
}

func (h *handlers) lastKnown(w http.ResponseWriter, r *http.Request) {
	var req lastKnownRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Timestamp == "" {
		writeError(w, r, &position.ValidationError{Field: "timestamp", Reason: "is required"})
		return
	}
	rec, err := h.d.Engine.LastKnownLocation(r.Context(), req.ObjectID, req.Timestamp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromRecord(rec))
}

func (h *handlers) closest(w http.ResponseWriter, r *http.Request) {
	var req closestRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Timestamp == "" {
		writeError(w, r, &position.ValidationError{Field: "timestamp", Reason: "is required"})
		return
	}
	lat, lon, err := h.coordinates(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.d.Engine.ClosestSatellite(r.Context(), req.Timestamp, lat, lon)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromMatch(m))
}

// coordinates：显式坐标优先；两者都省略且配置了定位库时按访问者 IP 定位
func (h *handlers) coordinates(r *http.Request, req closestRequest) (float64, float64, error) {
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		return *req.Latitude, *req.Longitude, nil
	case req.Latitude == nil && req.Longitude == nil && h.d.Locator != nil:
		ip := geoip.ClientIP(r)
		pt, err := h.d.Locator.Locate(ip)
		if err != nil {
			logger.L().Debug("geoip_locate_fail", "ip", ip, "err", err)
			return 0, 0, &position.ValidationError{Field: "latitude", Reason: "is required (client location unknown)"}
		}
		return pt.Lat(), pt.Lon(), nil
	case req.Latitude == nil:
		return 0, 0, &position.ValidationError{Field: "latitude", Reason: "is required"}
	default:
		return 0, 0, &position.ValidationError{Field: "longitude", Reason: "is required"}
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("cache-control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"commit":  version.Commit,
		"backend": h.d.Backend,
	})
}

// decode：读取 JSON 请求体；格式错误直接写出 400
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, &position.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()})
		return false
	}
	return true
}

// writeError：错误到状态码的映射
// 约束：调用方输入问题 400；无匹配 404；其余为服务端错误 500 且不向外暴露细节
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case position.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, position.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: position.ErrNotFound.Error()})
	case errors.Is(err, context.Canceled):
		// 客户端已断开，无需响应体
		w.WriteHeader(499)
	default:
		logger.L().Error("api_error", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
