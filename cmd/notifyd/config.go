package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/chat"
)

// DefaultConfigPath is used when --config is not provided.
const DefaultConfigPath = "notifyd.yml"

// Environment overrides.
const (
	envAddr     = "NOTIFY_ADDR"
	envRedisURL = "NOTIFY_REDIS_URL"
)

// fileConfig is the daemon configuration loaded from YAML.
type fileConfig struct {
	Addr            string             `yaml:"addr"`
	RedisURL        string             `yaml:"redis_url"`
	APIVersion      string             `yaml:"api_version"`
	Concurrency     int                `yaml:"concurrency"`
	PollInterval    time.Duration      `yaml:"poll_interval"`
	BatchSize       int                `yaml:"batch_size"`
	RequestTimeout  time.Duration      `yaml:"request_timeout"`
	ShutdownTimeout time.Duration      `yaml:"shutdown_timeout"`
	LogLevel        string             `yaml:"log_level"`
	Chat            []chat.Integration `yaml:"chat"`
}

func defaultFileConfig() fileConfig {
	d := notify.DefaultConfig()
	return fileConfig{
		Addr:            ":8080",
		APIVersion:      d.APIVersion,
		Concurrency:     d.Concurrency,
		PollInterval:    d.PollInterval,
		BatchSize:       d.BatchSize,
		RequestTimeout:  d.RequestTimeout,
		ShutdownTimeout: d.ShutdownTimeout,
		LogLevel:        "info",
	}
}

// loadConfig reads path over the defaults. A missing file at the default
// path is not an error.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()

	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath:
	case err != nil:
		return cfg, fmt.Errorf("read config file %q: %w", path, err)
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%q: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *fileConfig) {
	if v := strings.TrimSpace(os.Getenv(envAddr)); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(envRedisURL)); v != "" {
		cfg.RedisURL = v
	}
}

func (c fileConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency %d, expected >= 1", c.Concurrency)
	}
	for i, in := range c.Chat {
		if in.URL == "" || in.OrganizationID == "" {
			return fmt.Errorf("chat[%d]: url and organization are required", i)
		}
		switch in.Kind {
		case chat.KindSlack, chat.KindDiscord, chat.KindTeams:
		default:
			return fmt.Errorf("chat[%d]: unknown kind %q", i, in.Kind)
		}
	}
	return nil
}

// options converts the file config to Notifier options.
func (c fileConfig) options() []notify.Option {
	return []notify.Option{
		notify.WithAPIVersion(c.APIVersion),
		notify.WithConcurrency(c.Concurrency),
		notify.WithPollInterval(c.PollInterval),
		notify.WithBatchSize(c.BatchSize),
		notify.WithRequestTimeout(c.RequestTimeout),
		notify.WithShutdownTimeout(c.ShutdownTimeout),
	}
}
