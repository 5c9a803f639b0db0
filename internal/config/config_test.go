package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"LISTEN_ADDR", "UPSTREAM_URL", "LOG_LEVEL", "METRICS_ADDR",
	"RATE_ENABLED", "RATE_RPS", "RATE_BURST", "RATE_KEY_HEADER", "TRUST_XFF",
	"RETRY_AFTER", "ADD_RATELIMIT_HEADERS", "RATE_BACKEND", "RATE_SHARDS",
	"RATE_CAPACITY", "JANITOR_EVERY", "CONCURRENCY_MAX", "CONCURRENCY_TIMEOUT",
	"RATE_STATS_ENABLED", "RATE_STATS_REDIS_ADDR", "RATE_STATS_REDIS_PASSWORD",
	"RATE_STATS_REDIS_DB", "RATE_STATS_PREFIX", "RATE_STATS_TTL",
	"RATE_STATS_BUCKET", "RATE_STATS_TRACK_KEYS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_DefaultsWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPSTREAM_URL", "http://upstream:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Rate.RPS != 10 || cfg.Rate.Burst != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Rate.Backend != "sharded" || cfg.Rate.JanitorEvery != 2*time.Minute {
		t.Fatalf("unexpected rate defaults: %+v", cfg.Rate)
	}
}

func TestLoad_LowRPSWithoutBurstUsesBurstOne(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPSTREAM_URL", "http://upstream")
	t.Setenv("RATE_RPS", "0.02")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rate.Burst != 1 {
		t.Fatalf("expected burst 1 for rps < 1, got %d", cfg.Rate.Burst)
	}
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, strings.Join([]string{
		"upstream_url: http://from-file",
		"log_level: debug",
		"metrics_addr: :9090",
		"rate:",
		"  rps: 5",
		"  burst: 7",
		"  backend: lru",
		"  capacity: 1000",
		"  janitor_every: 30s",
		"concurrency:",
		"  max: 3",
		"  timeout: 250ms",
	}, "\n"))
	t.Setenv("RATE_BURST", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UpstreamURL != "http://from-file" || cfg.LogLevel != "debug" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Rate.RPS != 5 || cfg.Rate.Backend != "lru" || cfg.Rate.Capacity != 1000 {
		t.Fatalf("rate file values not applied: %+v", cfg.Rate)
	}
	if cfg.Rate.JanitorEvery != 30*time.Second || cfg.Concurrency.Timeout != 250*time.Millisecond {
		t.Fatalf("durations not parsed: %+v", cfg)
	}
	if cfg.Rate.Burst != 9 {
		t.Fatalf("expected env to override burst, got %d", cfg.Rate.Burst)
	}
	if !cfg.Rate.Enabled {
		t.Fatalf("expected default enabled=true to survive a partial file")
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing upstream", nil, "UPSTREAM_URL"},
		{"stats without redis", map[string]string{"UPSTREAM_URL": "http://u", "RATE_STATS_ENABLED": "true"}, "RATE_STATS_REDIS_ADDR"},
		{"bad backend", map[string]string{"UPSTREAM_URL": "http://u", "RATE_BACKEND": "etcd"}, "RATE_BACKEND"},
		{"lru without capacity", map[string]string{"UPSTREAM_URL": "http://u", "RATE_BACKEND": "lru"}, "RATE_CAPACITY"},
		{"negative concurrency", map[string]string{"UPSTREAM_URL": "http://u", "CONCURRENCY_MAX": "-1"}, "CONCURRENCY_MAX"},
		{"zero burst", map[string]string{"UPSTREAM_URL": "http://u", "RATE_BURST": "0"}, "RATE_BURST"},
		{"negative shards", map[string]string{"UPSTREAM_URL": "http://u", "RATE_SHARDS": "-4"}, "RATE_SHARDS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_RateDisabledSkipsRateValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPSTREAM_URL", "http://u")
	t.Setenv("RATE_ENABLED", "false")
	t.Setenv("RATE_RPS", "0")
	t.Setenv("RATE_BURST", "0")
	t.Setenv("RATE_BACKEND", "etcd")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected rate settings to be ignored when disabled: %v", err)
	}
	if cfg.Rate.Enabled {
		t.Fatalf("expected rate disabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
