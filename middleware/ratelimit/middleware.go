package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"keyedstate-gateway/middleware/ratelimit/application"
	"keyedstate-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type KeyFunc func(r *http.Request) string

// DecisionObserver recebe cada decisão (ex.: infra.Metrics).
type DecisionObserver interface {
	ObserveDecision(allowed bool)
}

type Options struct {
	Limiter *application.Service
	Stats   domain.StatsStore
	Metrics DecisionObserver
	Log     *zap.Logger

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RejectStatus       int
	// RetryAfter só é usado quando a decisão não traz espera própria.
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip, _, _ := strings.Cut(xff, ",")
				if ip = strings.TrimSpace(ip); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// retryAfterSeconds arredonda para cima: Retry-After=0 convidaria o cliente
// a tentar de novo antes da hora.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	svc := opts.Limiter
	// no máximo uma linha de log de bloqueio por segundo
	logDenied := &rate.Sometimes{Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			dec := svc.Decide(domain.Key(key))
			if opts.Metrics != nil {
				opts.Metrics.ObserveDecision(dec.Allowed)
			}
			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Wait:    dec.RetryAfter,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}); err != nil {
					opts.Log.Warn("ratelimit stats record failed", zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-RPS", formatFloat(svc.RPS()))
				w.Header().Set("X-RateLimit-Burst", formatInt(svc.Burst()))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
			}

			if !dec.Allowed {
				wait := dec.RetryAfter
				if wait <= 0 {
					wait = opts.RetryAfter
				}
				logDenied.Do(func() {
					opts.Log.Info("rate limited",
						zap.String("key", key),
						zap.String("path", r.URL.Path),
						zap.Duration("wait", wait),
					)
				})
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(wait)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
