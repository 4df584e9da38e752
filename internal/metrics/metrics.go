package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Recorder holds the settlement counters. A nil *Recorder records nothing, so
// components can be built without metrics in tests and one-shot tools.
type Recorder struct {
	registry *prometheus.Registry

	deposits         *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	withdrawnTotal   prometheus.Counter
	batchCycles      *prometheus.CounterVec
	oracleFallbacks  prometheus.Counter
	alerts           *prometheus.CounterVec
	withdrawalCycles prometheus.Histogram
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		deposits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_deposits_total",
			Help: "Deposits handled by the executor, by outcome.",
		}, []string{"outcome"}),
		withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_withdrawals_total",
			Help: "Relay withdrawal attempts, by outcome.",
		}, []string{"outcome"}),
		withdrawnTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_withdrawn_lamports_total",
			Help: "Smallest units paid out by the relay.",
		}),
		batchCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_batch_cycles_total",
			Help: "Micro-batch cycles, by outcome.",
		}, []string{"outcome"}),
		oracleFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_oracle_fallback_total",
			Help: "Times a stale oracle rate was served.",
		}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_alerts_total",
			Help: "Admin alerts raised, by kind.",
		}, []string{"kind"}),
		withdrawalCycles: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_withdrawal_cycle_seconds",
			Help:    "Duration of one withdrawal worker cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) Deposit(outcome string) {
	if r == nil {
		return
	}
	r.deposits.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Withdrawal(outcome string, amount int64) {
	if r == nil {
		return
	}
	r.withdrawals.WithLabelValues(outcome).Inc()
	if amount > 0 {
		r.withdrawnTotal.Add(float64(amount))
	}
}

func (r *Recorder) BatchCycle(outcome string) {
	if r == nil {
		return
	}
	r.batchCycles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) OracleFallback() {
	if r == nil {
		return
	}
	r.oracleFallbacks.Inc()
}

func (r *Recorder) Alert(kind string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(kind).Inc()
}

func (r *Recorder) WithdrawalCycle(d time.Duration) {
	if r == nil {
		return
	}
	r.withdrawalCycles.Observe(d.Seconds())
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	zap.L().Info("Serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
