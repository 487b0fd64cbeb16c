package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/growthbook/notify/chat"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notifyd.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" || cfg.Concurrency != 10 || cfg.PollInterval != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
concurrency: 4
poll_interval: 250ms
chat:
  - id: c1
    organization_id: org1
    name: releases
    kind: slack
    url: https://hooks.slack.com/services/x
    events: [feature.created]
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" || cfg.Concurrency != 4 || cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Chat) != 1 || cfg.Chat[0].Kind != chat.KindSlack || cfg.Chat[0].Events[0] != "feature.created" {
		t.Fatalf("unexpected chat integrations: %+v", cfg.Chat)
	}
	// Unset keys keep their defaults.
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("expected default request timeout, got %s", cfg.RequestTimeout)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\n")
	t.Setenv(envAddr, ":7070")
	t.Setenv(envRedisURL, "redis://localhost:6379/1")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":7070" || cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "bogus: 1\n",
		"bad chat kind":  "chat:\n  - organization_id: o\n    url: https://x\n    kind: irc\n",
		"no concurrency": "concurrency: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, content)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing explicit path")
	}
}
