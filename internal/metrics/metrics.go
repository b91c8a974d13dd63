// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts accepted bets, partitioned by side.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betarena_bets_total",
		Help: "Total number of bets placed",
	}, []string{"side"})

	// BetLatency tracks bet placement latency, including lock wait.
	BetLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "betarena_bet_latency_seconds",
		Help:    "Bet placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// BetRejections counts bets refused, by reason.
	BetRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betarena_bet_rejections_total",
		Help: "Bets rejected before or during placement",
	}, []string{"reason"})

	// StakeVolume tracks cumulative staked coins per category and side.
	StakeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betarena_stake_volume_total",
		Help: "Cumulative coins staked",
	}, []string{"category", "side"})

	// ActiveContracts tracks the number of open contracts.
	ActiveContracts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betarena_active_contracts",
		Help: "Number of currently open contracts",
	})

	// ContractsResolved counts resolutions by outcome.
	ContractsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betarena_contracts_resolved_total",
		Help: "Contracts resolved",
	}, []string{"resolution"})

	// PayoutsTotal tracks cumulative coins paid to winning bets.
	PayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betarena_payouts_coins_total",
		Help: "Cumulative coins paid out at resolution",
	})

	// SettlementFailures counts bets whose payout could not be applied.
	SettlementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "betarena_settlement_failures_total",
		Help: "Bets that failed to settle during resolution",
	})

	// RankRecomputeDuration tracks full leaderboard re-sorts.
	RankRecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "betarena_rank_recompute_seconds",
		Help:    "Duration of a full rank recomputation",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "betarena_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betarena_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "betarena_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
