package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyedstate-gateway/internal/logging"
	"keyedstate-gateway/middleware/ratelimit"
	"keyedstate-gateway/middleware/ratelimit/application"
	"keyedstate-gateway/middleware/ratelimit/domain"
	"keyedstate-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

func main() {
	log, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy).
	// 5 rps com rajada de 10, estado por chave em sync.Map.
	store := infra.NewStore(infra.NewSyncMap())
	limiter, err := application.NewService(store, domain.QuotaFromRPS(5, 10), application.SystemClock{})
	if err != nil {
		log.Fatal("limiter", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	application.Janitor{Service: limiter, Every: time.Minute, Log: log}.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Log: log})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Limiter:             limiter,
		Log:                 log,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}
