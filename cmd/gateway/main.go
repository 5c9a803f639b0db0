package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyedstate-gateway/internal/config"
	"keyedstate-gateway/internal/logging"
	"keyedstate-gateway/middleware/ratelimit"
	"keyedstate-gateway/middleware/ratelimit/application"
	"keyedstate-gateway/middleware/ratelimit/domain"
	"keyedstate-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		// ainda sem logger configurado
		zap.NewExample().Fatal("config error", zap.Error(err))
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("logger error", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		limiter    *application.Service
		metrics    *infra.Metrics
		statsStore domain.StatsStore
	)
	if cfg.Rate.Enabled {
		limiter, metrics, err = newLimiter(cfg.Rate, reg, log)
		if err != nil {
			return err
		}
		if cfg.Stats.Enabled {
			rs, closeStats, err := newStats(cfg.Stats)
			if err != nil {
				return err
			}
			defer closeStats()
			statsStore = rs
		}
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.Timeout,
		Log:            log,
	})(h)
	if cfg.Rate.Enabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Limiter:             limiter,
			Stats:               statsStore,
			Metrics:             metrics,
			Log:                 log,
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.Rate.RetryAfter,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
		})(h)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if limiter != nil {
		janitor := application.Janitor{
			Service: limiter,
			Every:   cfg.Rate.JanitorEvery,
			Log:     log,
			OnSweep: metrics.ObserveSweep,
		}
		g.Go(func() error { return janitor.Run(ctx) })
	}

	servers := []*http.Server{newServer(cfg.ListenAddr, h)}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, newServer(cfg.MetricsAddr, mux))
	}
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	log.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("upstream", target.String()),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)
	log.Info("rate",
		zap.Bool("enabled", cfg.Rate.Enabled),
		zap.Float64("rps", cfg.Rate.RPS),
		zap.Int("burst", cfg.Rate.Burst),
		zap.String("backend", cfg.Rate.Backend),
		zap.String("key_header", cfg.Rate.KeyHeader),
		zap.Bool("trust_xff", cfg.Rate.TrustXFF),
		zap.Duration("janitor_every", cfg.Rate.JanitorEvery),
	)
	log.Info("rate-stats",
		zap.Bool("enabled", cfg.Stats.Enabled),
		zap.String("redis_addr", cfg.Stats.RedisAddr),
		zap.String("bucket", cfg.Stats.Bucket),
		zap.Duration("ttl", cfg.Stats.TTL),
		zap.Bool("track_keys", cfg.Stats.TrackKeys),
	)
	log.Info("concurrency",
		zap.Int("max", cfg.Concurrency.Max),
		zap.Duration("acquire_timeout", cfg.Concurrency.Timeout),
	)

	return g.Wait()
}

func newLimiter(rc config.RateConfig, reg prometheus.Registerer, log *zap.Logger) (*application.Service, *infra.Metrics, error) {
	cells, err := infra.NewBackend(rc.Backend, infra.BackendOptions{
		Shards:   rc.Shards,
		Capacity: rc.Capacity,
	})
	if err != nil {
		return nil, nil, err
	}
	if m, ok := cells.(*infra.LRUMap); ok {
		log.Info("lru backend",
			zap.Int("capacity", m.Capacity()),
			zap.Int("shards", m.Shards()),
			zap.Int("requested_shards", rc.Shards),
		)
	}
	store := infra.NewStore(cells)

	limiter, err := application.NewService(store, domain.QuotaFromRPS(rc.RPS, rc.Burst), application.SystemClock{})
	if err != nil {
		return nil, nil, err
	}
	metrics, err := infra.NewMetrics(reg, "gateway", store)
	if err != nil {
		return nil, nil, err
	}
	return limiter, metrics, nil
}

func newStats(sc config.StatsConfig) (*infra.RedisStatsStore, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     sc.RedisAddr,
		Password: sc.RedisPassword,
		DB:       sc.RedisDB,
	})
	closeFn := func() { _ = rdb.Close() }

	rs := infra.NewRedisStatsStore(
		rdb,
		infra.WithStatsPrefix(sc.Prefix),
		infra.WithStatsTTL(sc.TTL),
		infra.WithStatsBucket(sc.Bucket),
		infra.WithStatsTrackKeys(sc.TrackKeys),
	)
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return rs, closeFn, nil
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
