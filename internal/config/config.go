// Package config lê a configuração do gateway: valores padrão, depois um
// arquivo YAML opcional (CONFIG_FILE) e por fim as variáveis de ambiente, que
// sempre ganham.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	UpstreamURL string `yaml:"upstream_url"`
	LogLevel    string `yaml:"log_level"`
	// MetricsAddr vazio desliga o /metrics.
	MetricsAddr string `yaml:"metrics_addr"`

	Rate        RateConfig        `yaml:"rate"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Stats       StatsConfig       `yaml:"stats"`
}

type RateConfig struct {
	Enabled    bool          `yaml:"enabled"`
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
	KeyHeader  string        `yaml:"key_header"`
	TrustXFF   bool          `yaml:"trust_xff"`
	RetryAfter time.Duration `yaml:"retry_after"`
	AddHeaders bool          `yaml:"add_headers"`

	// Backend: sharded (padrão), syncmap ou lru.
	Backend  string `yaml:"backend"`
	Shards   int    `yaml:"shards"`
	Capacity int    `yaml:"capacity"`

	JanitorEvery time.Duration `yaml:"janitor_every"`
}

type ConcurrencyConfig struct {
	Max     int           `yaml:"max"`
	Timeout time.Duration `yaml:"timeout"`
}

type StatsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Rate: RateConfig{
			Enabled:      true,
			RPS:          10,
			Burst:        20,
			RetryAfter:   1 * time.Second,
			Backend:      "sharded",
			JanitorEvery: 2 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{Max: 100},
		Stats: StatsConfig{
			Prefix: "ratelimit:stats",
			TTL:    24 * time.Hour,
			Bucket: "minute",
		},
	}
}

// Load aplica defaults, o arquivo em path (se não vazio) e o ambiente, e valida.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)

	r := &cfg.Rate
	r.Enabled = getenvBoolDefault("RATE_ENABLED", r.Enabled)
	r.RPS = getenvFloatDefault("RATE_RPS", r.RPS)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 pode dar a impressão de que
	// o limiter não está funcionando, porque as primeiras ~20 passam.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		r.Burst = burst
	} else if getenvIsSet("RATE_RPS") && r.RPS > 0 && r.RPS < 1 {
		r.Burst = 1
	}
	r.KeyHeader = getenvDefault("RATE_KEY_HEADER", r.KeyHeader)
	r.TrustXFF = getenvBoolDefault("TRUST_XFF", r.TrustXFF)
	r.RetryAfter = getenvDurationDefault("RETRY_AFTER", r.RetryAfter)
	r.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", r.AddHeaders)
	r.Backend = getenvDefault("RATE_BACKEND", r.Backend)
	r.Shards = getenvIntDefault("RATE_SHARDS", r.Shards)
	r.Capacity = getenvIntDefault("RATE_CAPACITY", r.Capacity)
	r.JanitorEvery = getenvDurationDefault("JANITOR_EVERY", r.JanitorEvery)

	c := &cfg.Concurrency
	c.Max = getenvIntDefault("CONCURRENCY_MAX", c.Max)
	c.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.Timeout)

	s := &cfg.Stats
	s.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", s.Enabled)
	s.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", s.RedisAddr)
	s.RedisPassword = getenvDefault("RATE_STATS_REDIS_PASSWORD", s.RedisPassword)
	s.RedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", s.RedisDB)
	s.Prefix = getenvDefault("RATE_STATS_PREFIX", s.Prefix)
	s.TTL = getenvDurationDefault("RATE_STATS_TTL", s.TTL)
	s.Bucket = getenvDefault("RATE_STATS_BUCKET", s.Bucket)
	s.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", s.TrackKeys)
}

func (c Config) Validate() error {
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if c.Rate.Enabled {
		if err := c.Rate.validate(); err != nil {
			return err
		}
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

// validate só vale com o rate limit ligado; desligado, nada disso é construído.
func (r RateConfig) validate() error {
	if r.RPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if r.Burst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if r.Shards < 0 {
		return errors.New("RATE_SHARDS must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(r.Backend)) {
	case "", "sharded", "syncmap":
	case "lru":
		// o número de shards é reduzido conforme a capacidade, ver infra.NewLRUMap
		if r.Capacity <= 0 {
			return errors.New("RATE_CAPACITY must be > 0 when RATE_BACKEND=lru")
		}
	default:
		return fmt.Errorf("RATE_BACKEND %q is not one of sharded, syncmap, lru", r.Backend)
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	if i, ok := getenvInt(k); ok {
		return i
	}
	return def
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
