package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_http_requests_total",
		Help: "HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riddle_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// RiddlesServed counts riddles delivered, by source (pool or ai)
	RiddlesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_served_total",
		Help: "Riddles served to players",
	}, []string{"source"})

	// QuotaDenied counts requests rejected by the daily riddle quota
	QuotaDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riddle_quota_denied_total",
		Help: "Riddle requests rejected by the daily quota",
	})

	// AnswersSubmitted counts answer submissions by correctness
	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_answers_total",
		Help: "Answer submissions by result",
	}, []string{"result"})

	// AIRequests counts generative AI calls by operation and outcome
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_ai_requests_total",
		Help: "Generative AI calls by operation and outcome",
	}, []string{"operation", "outcome"})

	// BillingEvents counts reconciled billing events by provider, type and outcome
	BillingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_billing_events_total",
		Help: "Billing events by provider, type and outcome",
	}, []string{"provider", "type", "outcome"})

	// CacheErrors counts swallowed cache failures by operation
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_cache_errors_total",
		Help: "Cache operations that failed and were ignored",
	}, []string{"operation"})

	// LeaderboardFlushed counts entries written to the database by the flush worker
	LeaderboardFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riddle_leaderboard_flushed_entries_total",
		Help: "Leaderboard entries flushed to the database",
	}, []string{"period"})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
