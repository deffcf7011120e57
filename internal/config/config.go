package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Redis trending metadata cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MetadataTTL   time.Duration

	// Chart sources
	DexScreenerURL string
	CoinGeckoURL   string
	SourceRPS      float64
	SourceTimeout  time.Duration

	// HTTP server and the CLI's view of it
	ServerPort string
	ServerURL  string

	// Default chart interval for embed URLs
	ChartInterval string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig is the optional YAML overlay named by CHARTBRACKET_CONFIG.
// Its values replace the built-in defaults; environment variables still win.
type fileConfig struct {
	SurrealDB struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
		AuthLevel string `yaml:"auth_level"`
	} `yaml:"surrealdb"`

	Redis struct {
		Addr        string `yaml:"addr"`
		Password    string `yaml:"password"`
		DB          string `yaml:"db"`
		MetadataTTL string `yaml:"metadata_ttl"`
	} `yaml:"redis"`

	Sources struct {
		DexScreenerURL string `yaml:"dexscreener_url"`
		CoinGeckoURL   string `yaml:"coingecko_url"`
		RPS            string `yaml:"rps"`
		Timeout        string `yaml:"timeout"`
	} `yaml:"sources"`

	Server struct {
		Port string `yaml:"port"`
		URL  string `yaml:"url"`
	} `yaml:"server"`

	ChartInterval string `yaml:"chart_interval"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads configuration from environment variables, layered over the
// YAML file named by CHARTBRACKET_CONFIG when set. A broken file is logged
// and ignored.
func Load() Config {
	cfg, err := LoadFile(os.Getenv("CHARTBRACKET_CONFIG"))
	if err != nil {
		slog.Warn("ignoring config file", "error", err)
	}
	return cfg
}

// LoadFile is Load with an explicit overlay path. An empty path means no file.
// The returned Config is always usable, even alongside an error.
func LoadFile(path string) (Config, error) {
	var fc fileConfig
	if path == "" {
		return fromEnv(fc), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fromEnv(fileConfig{}), fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fromEnv(fileConfig{}), fmt.Errorf("parse config %s: %w", path, err)
	}
	return fromEnv(fc), nil
}

func fromEnv(fc fileConfig) Config {
	return Config{
		// SurrealDB
		SurrealDBURL:       getEnv("SURREALDB_URL", or(fc.SurrealDB.URL, "ws://localhost:8000/rpc")),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", or(fc.SurrealDB.Namespace, "chartbracket")),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", or(fc.SurrealDB.Database, "choices")),
		SurrealDBUser:      getEnv("SURREALDB_USER", or(fc.SurrealDB.User, "root")),
		SurrealDBPass:      getEnv("SURREALDB_PASS", or(fc.SurrealDB.Pass, "root")),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", or(fc.SurrealDB.AuthLevel, "root")),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", or(fc.Redis.Addr, "localhost:6379")),
		RedisPassword: getEnv("REDIS_PASSWORD", fc.Redis.Password),
		RedisDB:       parseInt(getEnv("REDIS_DB", or(fc.Redis.DB, "0")), 0),
		MetadataTTL:   parseDuration(getEnv("CHARTBRACKET_METADATA_TTL", or(fc.Redis.MetadataTTL, "24h")), 24*time.Hour),

		// Sources
		DexScreenerURL: getEnv("DEXSCREENER_URL", or(fc.Sources.DexScreenerURL, "https://api.dexscreener.com")),
		CoinGeckoURL:   getEnv("COINGECKO_URL", or(fc.Sources.CoinGeckoURL, "https://api.coingecko.com/api/v3")),
		SourceRPS:      parseFloat(getEnv("CHARTBRACKET_SOURCE_RPS", or(fc.Sources.RPS, "4")), 4),
		SourceTimeout:  parseDuration(getEnv("CHARTBRACKET_SOURCE_TIMEOUT", or(fc.Sources.Timeout, "10s")), 10*time.Second),

		// Server
		ServerPort: getEnv("CHARTBRACKET_SERVER_PORT", or(fc.Server.Port, "8001")),
		ServerURL:  getEnv("CHARTBRACKET_SERVER_URL", or(fc.Server.URL, "http://localhost:8001")),

		ChartInterval: getEnv("CHARTBRACKET_CHART_INTERVAL", or(fc.ChartInterval, "1h")),

		// Logging
		LogFile:  getEnv("CHARTBRACKET_LOG_FILE", or(fc.Log.File, "/tmp/chartbracket.log")),
		LogLevel: parseLogLevel(getEnv("CHARTBRACKET_LOG_LEVEL", or(fc.Log.Level, "INFO"))),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
