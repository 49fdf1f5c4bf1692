package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingRedisURL is returned when STORE_BACKEND=redis without REDIS_URL.
	ErrMissingRedisURL = errors.New("config: REDIS_URL is required for the redis store backend")

	// ErrUnknownBackend is returned for an unrecognised STORE_BACKEND.
	ErrUnknownBackend = errors.New("config: unknown store backend")
)

type fileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Store struct {
		Backend     string `yaml:"backend"`
		DataDir     string `yaml:"data_dir"`
		RedisURL    string `yaml:"redis_url"`
		RedisPrefix string `yaml:"redis_key_prefix"`
	} `yaml:"store"`

	Schedule struct {
		Enabled     *bool  `yaml:"enabled"`
		Interval    string `yaml:"interval"`
		GuardWindow string `yaml:"guard_window"`
	} `yaml:"schedule"`

	Events struct {
		HeartbeatTimeout string `yaml:"heartbeat_timeout"`
		ConnectTimeout   string `yaml:"connect_timeout"`
		WriteTimeout     string `yaml:"write_timeout"`
		Buffer           int    `yaml:"subscriber_buffer"`
	} `yaml:"events"`

	Media struct {
		Host     string `yaml:"host"`
		HLSPort  string `yaml:"hls_port"`
		RTMPPort string `yaml:"rtmp_port"`
	} `yaml:"media"`
}

// LoadFile reads a YAML config file on top of Defaults.
func LoadFile(path string) (*Config, error) {
	c := Defaults()
	if err := c.applyFile(path); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setString(&c.Port, f.Port)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)
	setString(&c.StoreBackend, f.Store.Backend)
	setString(&c.DataDir, f.Store.DataDir)
	setString(&c.RedisURL, f.Store.RedisURL)
	setString(&c.RedisKeyPrefix, f.Store.RedisPrefix)
	if f.Schedule.Enabled != nil {
		c.ScheduleEnabled = *f.Schedule.Enabled
	}
	setDuration(&c.ScheduleInterval, f.Schedule.Interval)
	setDuration(&c.ScheduleGuardWindow, f.Schedule.GuardWindow)
	setDuration(&c.HeartbeatTimeout, f.Events.HeartbeatTimeout)
	setDuration(&c.ConnectTimeout, f.Events.ConnectTimeout)
	setDuration(&c.WriteTimeout, f.Events.WriteTimeout)
	setString(&c.MediaHost, f.Media.Host)
	setString(&c.HLSPort, f.Media.HLSPort)
	setString(&c.RTMPPort, f.Media.RTMPPort)
	if f.Events.Buffer > 0 {
		c.SubscriberBuffer = f.Events.Buffer
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}
