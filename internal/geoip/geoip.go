// 包 geoip：客户端 IP 解析与 GeoLite2/GeoIP2 City 库定位，为最近卫星查询提供缺省坐标
package geoip

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/paulmach/orb"

	"starlink-api/internal/logger"
)

// ErrNoLocation：库中无该 IP 的坐标
var ErrNoLocation = errors.New("ip has no location")

// ClientIP：解析访问者 IP，按常见反向代理头依次尝试，最后回退到连接地址
func ClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, name := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(name); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if ip := forwardedFor(x); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedFor：取 RFC 7239 Forwarded 头第一个 for= 值
func forwardedFor(v string) string {
	i := strings.Index(strings.ToLower(v), "for=")
	if i < 0 {
		return ""
	}
	y := v[i+4:]
	if p := strings.IndexAny(y, ";,"); p >= 0 {
		y = y[:p]
	}
	y = strings.Trim(y, "\" ")
	// [2001:db8::1]:4711 形式
	if strings.HasPrefix(y, "[") {
		if p := strings.IndexByte(y, ']'); p > 0 {
			return y[1:p]
		}
	}
	if host, _, err := net.SplitHostPort(y); err == nil {
		return host
	}
	return y
}

// Locator：City 库读取器；并发安全
type Locator struct {
	db *geoip2.Reader
}

func Open(path string) (*Locator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	logger.L().Info("geoip_open", "path", path)
	return &Locator{db: db}, nil
}

func (l *Locator) Close() error { return l.db.Close() }

// Locate：IP -> 坐标
// 异常：IP 非法返回错误；库中无坐标（0,0 且无城市信息）返回 ErrNoLocation
func (l *Locator) Locate(ip string) (orb.Point, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return orb.Point{}, fmt.Errorf("bad ip %q", ip)
	}
	rec, err := l.db.City(parsed)
	if err != nil {
		return orb.Point{}, err
	}
	loc := rec.Location
	if loc.Latitude == 0 && loc.Longitude == 0 && loc.AccuracyRadius == 0 {
		return orb.Point{}, ErrNoLocation
	}
	logger.L().Debug("geoip_locate", "ip", ip, "lat", loc.Latitude, "lon", loc.Longitude, "radius_km", loc.AccuracyRadius)
	return orb.Point{loc.Longitude, loc.Latitude}, nil
}
