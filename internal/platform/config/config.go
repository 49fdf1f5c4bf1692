package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings for the live session orchestrator.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	StoreBackend   string
	DataDir        string
	RedisURL       string
	RedisKeyPrefix string

	ScheduleEnabled     bool
	ScheduleInterval    time.Duration
	ScheduleGuardWindow time.Duration

	HeartbeatTimeout time.Duration
	ConnectTimeout   time.Duration
	WriteTimeout     time.Duration
	SubscriberBuffer int

	// Media server that repackages RTMP/FLV ingest into HLS/FLV playback.
	MediaHost string
	HLSPort   string
	RTMPPort  string
}

// Store backends accepted by STORE_BACKEND.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from the environment. When CONFIG_FILE names a YAML
// file its values are used as defaults; environment variables still win.
func FromEnv() (*Config, error) {
	c := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := c.applyFile(path); err != nil {
			return nil, err
		}
	}

	c.Port = GetEnv("PORT", c.Port)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnv("LOG_FORMAT", c.LogFormat)
	c.StoreBackend = strings.ToLower(GetEnv("STORE_BACKEND", c.StoreBackend))
	c.DataDir = GetEnv("DATA_DIR", c.DataDir)
	c.RedisURL = GetEnv("REDIS_URL", c.RedisURL)
	c.RedisKeyPrefix = GetEnv("REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.ScheduleEnabled = GetEnvBool("SCHEDULE_ENABLED", c.ScheduleEnabled)
	c.ScheduleInterval = GetEnvDuration("SCHEDULE_INTERVAL", c.ScheduleInterval)
	c.ScheduleGuardWindow = GetEnvDuration("SCHEDULE_GUARD_WINDOW", c.ScheduleGuardWindow)
	c.HeartbeatTimeout = GetEnvDuration("HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
	c.ConnectTimeout = GetEnvDuration("CONNECT_TIMEOUT", c.ConnectTimeout)
	c.WriteTimeout = GetEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.SubscriberBuffer = GetEnvInt("SUBSCRIBER_BUFFER", c.SubscriberBuffer)
	c.MediaHost = GetEnv("MEDIA_HOST", c.MediaHost)
	c.HLSPort = GetEnv("HLS_SERVER_PORT", c.HLSPort)
	c.RTMPPort = GetEnv("RTMP_SERVER_PORT", c.RTMPPort)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:                "8080",
		LogLevel:            "info",
		LogFormat:           "json",
		StoreBackend:        BackendFile,
		DataDir:             "./data",
		RedisKeyPrefix:      "debate:",
		ScheduleEnabled:     true,
		ScheduleInterval:    60 * time.Second,
		ScheduleGuardWindow: 2 * time.Minute,
		HeartbeatTimeout:    90 * time.Second,
		ConnectTimeout:      10 * time.Second,
		WriteTimeout:        5 * time.Second,
		SubscriberBuffer:    64,
		MediaHost:           "localhost",
		HLSPort:             "8086",
		RTMPPort:            "1935",
	}
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return ErrMissingRedisURL
		}
	default:
		return ErrUnknownBackend
	}
	return nil
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses values like "90s" or "2m". Invalid or non-positive
// values fall back.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// GetEnvBool returns fallback unless the variable parses with strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
