package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config valve-panel 配置（全部来自环境变量）
type Config struct {
	HTTP struct {
		Addr string
	}
	Backend   BackendConfig
	Cache     CacheConfig
	DBEnabled bool
	Database  DatabaseConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	Log       struct {
		Level  string
		Format string
	}
	Panel PanelConfig
}

// BackendConfig device registry backend (Flask side)
type BackendConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// CacheConfig offline read cache
type CacheConfig struct {
	Backend string // "memory" or "redis"
	Name    string // versioned cache name, keys of other names are purged on startup
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置（用于发布模拟事件，默认禁用）
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// PanelConfig graph/zone/simulation tuning
type PanelConfig struct {
	StatusPollInterval time.Duration
	ZonePadding        float64
	NodeWidth          float64
	NodeHeight         float64
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.Backend.BaseURL = getEnv("BACKEND_URL", "http://localhost:5000")
	cfg.Backend.Timeout = time.Duration(parseInt(getEnv("BACKEND_TIMEOUT_SECONDS", "10"), 10)) * time.Second
	cfg.Backend.RetryCount = parseInt(getEnv("BACKEND_RETRY_COUNT", "2"), 2)

	cfg.Cache.Backend = getEnv("CACHE_BACKEND", "memory")
	cfg.Cache.Name = getEnv("CACHE_NAME", "valva-cache-v1")

	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "valves")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "valve-panel")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "valve-panel/simulation")
	cfg.MQTT.QoS = 1

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Panel.StatusPollInterval = time.Duration(parseInt(getEnv("STATUS_POLL_INTERVAL_MS", "2000"), 2000)) * time.Millisecond
	cfg.Panel.ZonePadding = parseFloat(getEnv("ZONE_PADDING", "20"), 20)
	cfg.Panel.NodeWidth = parseFloat(getEnv("NODE_WIDTH", "160"), 160)
	cfg.Panel.NodeHeight = parseFloat(getEnv("NODE_HEIGHT", "60"), 60)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
