// 包 config：集中读取环境变量（支持 .env），组装数据库连接描述与服务运行参数
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ConfigurationError：必需参数缺失或为空；启动期致命错误，不重试
type ConfigurationError struct {
	Param string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration fetch failed: necessary environment variable %s is not set", e.Param)
}

// DB：数据库连接描述（五项必填）
type DB struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// 环境变量名沿用上游部署约定
const (
	EnvUser     = "POSTGRES_USER"
	EnvPassword = "POSTGRES_PASSWORD"
	EnvHost     = "POSTGRES_HOST"
	EnvPort     = "POSTGRES_PORT"
	EnvName     = "POSTGRES_DB"
)

// RequiredEnv：读取必填环境变量，缺失或为空返回 *ConfigurationError
func RequiredEnv(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", &ConfigurationError{Param: name}
	}
	return v, nil
}

// LoadDB：从环境变量组装连接描述
func LoadDB() (DB, error) {
	var d DB
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{EnvUser, &d.User},
		{EnvPassword, &d.Password},
		{EnvPort, &d.Port},
		{EnvName, &d.Name},
		{EnvHost, &d.Host},
	} {
		v, err := RequiredEnv(f.name)
		if err != nil {
			return DB{}, err
		}
		*f.dst = v
	}
	d.SSLMode = envOr("PG_SSLMODE", "disable")
	return d, nil
}

// Validate：构造存储前的完整性检查，供直接传入描述的调用方使用
func (d DB) Validate() error {
	for _, f := range []struct{ name, v string }{
		{EnvUser, d.User},
		{EnvPassword, d.Password},
		{EnvHost, d.Host},
		{EnvPort, d.Port},
		{EnvName, d.Name},
	} {
		if f.v == "" {
			return &ConfigurationError{Param: f.name}
		}
	}
	return nil
}

// DSN：lib/pq 可用的 URL 形式连接串；用户名与密码做转义
func (d DB) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u.RawQuery = "sslmode=" + url.QueryEscape(ssl)
	return u.String()
}

// Config：服务与导入工具共用的运行参数
type Config struct {
	Backend        string // postgres | sqlite | memory
	DB             DB
	SQLitePath     string
	Addr           string
	APIBase        string
	AdminToken     string
	BatchSize      int
	SkipInvalid    bool
	IngestFile     string
	IngestInterval time.Duration
	QueryCacheTTL  time.Duration
	GeoIPPath      string
	TLSEnable      bool
	TLSCertPath    string
	TLSKeyPath     string
}

const DefaultBatchSize = 300

// Load：加载 .env 后读取全部配置
// 约束：仅 postgres 后端要求连接描述完整；其它后端忽略 POSTGRES_* 变量
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	c := Config{
		Backend:        strings.ToLower(envOr("STORE_BACKEND", "postgres")),
		SQLitePath:     envOr("SQLITE_PATH", "data/positions.db"),
		Addr:           envOr("ADDR", ":8080"),
		APIBase:        envOr("API_BASE", "/api"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		BatchSize:      envInt("INGEST_BATCH_SIZE", DefaultBatchSize),
		SkipInvalid:    os.Getenv("INGEST_SKIP_INVALID") == "true",
		IngestFile:     os.Getenv("INGEST_FILE"),
		IngestInterval: envDuration("INGEST_INTERVAL", 0),
		QueryCacheTTL:  envDuration("QUERY_CACHE_TTL", time.Hour),
		GeoIPPath:      os.Getenv("GEOIP_DB_PATH"),
		TLSEnable:      os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:    envOr("TLS_CERT_PATH", "data/certs/server.crt"),
		TLSKeyPath:     envOr("TLS_KEY_PATH", "data/certs/server.key"),
	}
	switch c.Backend {
	case "postgres":
		db, err := LoadDB()
		if err != nil {
			return Config{}, err
		}
		c.DB = db
	case "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}
	return c, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// envInt：解析失败或非正数时回退默认值
func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
