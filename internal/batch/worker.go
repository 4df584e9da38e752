package batch

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"privacy-relay-settlement/internal/alerts"
	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/metrics"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/settings"
	"privacy-relay-settlement/internal/store"
)

// Dependencies contains the collaborators of a Worker
type Dependencies struct {
	Sessions  store.SessionStore
	Treasury  store.TreasuryStore
	Relay     relay.Client
	Keys      security.Decrypter
	Converter *conversion.Converter
	Settings  *settings.Reader
	Alerts    alerts.Notifier
	Metrics   *metrics.Recorder
}

// Worker aggregates micro deposits and settles them with one consolidated swap
// once their combined value crosses the configured USD threshold.
type Worker struct {
	deps     Dependencies
	defaults models.BatchConfig

	now       func() time.Time
	entropyMu sync.Mutex
	entropy   io.Reader

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewWorker(deps Dependencies, cfg models.BatchConfig) *Worker {
	if deps.Settings == nil {
		deps.Settings = settings.NewReader(nil)
	}
	return &Worker{
		deps:     deps,
		defaults: cfg,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

type cycleSettings struct {
	fetchLimit     int
	thresholdUSD   decimal.Decimal
	targetCurrency string
	scope          string
	relayTimeout   time.Duration
}

func (w *Worker) loadSettings(ctx context.Context) cycleSettings {
	r := w.deps.Settings
	cfg := cycleSettings{
		fetchLimit:     r.Int(ctx, settings.BatchFetchLimit, w.defaults.FetchLimit),
		thresholdUSD:   r.Decimal(ctx, settings.BatchThresholdUSD, decimal.NewFromFloat(w.defaults.ThresholdUSD)),
		targetCurrency: r.String(ctx, settings.BatchTargetCurrency, w.defaults.TargetCurrency),
		scope:          w.defaults.TreasuryScope,
		relayTimeout:   w.defaults.RelayTimeout,
	}
	if cfg.fetchLimit <= 0 {
		cfg.fetchLimit = 1
	}
	return cfg
}

func (w *Worker) pollInterval(ctx context.Context) time.Duration {
	interval := w.deps.Settings.Duration(ctx, settings.BatchPollInterval, w.defaults.PollInterval)
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return interval
}

// newBatchId returns a time-ordered identifier so batches sort by creation.
func (w *Worker) newBatchId() string {
	w.entropyMu.Lock()
	defer w.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(w.now()), w.entropy).String()
}

// Start begins the micro-batch polling loop
func (w *Worker) Start(ctx context.Context) error {
	if w.deps.Sessions == nil || w.deps.Treasury == nil || w.deps.Relay == nil ||
		w.deps.Keys == nil || w.deps.Converter == nil {
		return errors.New("batch worker requires sessions, treasury, relay, keys and converter")
	}

	go w.pollLoop(ctx)

	zap.L().Info("Micro-batch worker started", zap.Duration("poll_interval", w.pollInterval(ctx)))
	return nil
}

// Stop waits for the in-flight cycle to finish, then stops the loop
func (w *Worker) Stop() {
	zap.L().Info("Stopping micro-batch worker")
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	zap.L().Info("Micro-batch worker stopped")
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer close(w.doneChan)

	interval := w.pollInterval(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
			if next := w.pollInterval(ctx); next != interval {
				zap.L().Info("Micro-batch poll interval changed",
					zap.Duration("old_interval", interval),
					zap.Duration("new_interval", next))
				interval = next
				ticker.Reset(interval)
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	report, err := w.RunCycle(ctx)
	if err != nil {
		zap.L().Error("Micro-batch cycle failed", zap.Error(err))
		return
	}
	if report.BatchId != "" {
		zap.L().Info("Micro-batch settled",
			zap.String("batch_id", report.BatchId),
			zap.String("tx_ref", report.TxRef),
			zap.Int("sessions", report.Batched),
			zap.Int64("total", report.Total),
			zap.String("total_usd", report.TotalUSD.StringFixed(2)))
	}
}

func (w *Worker) alert(ctx context.Context, alert models.Alert) {
	if w.deps.Alerts == nil {
		return
	}
	if err := w.deps.Alerts.Notify(ctx, alert); err != nil {
		zap.L().Warn("Failed to raise alert",
			zap.String("alert_kind", alert.Kind.String()),
			zap.String("batch_id", alert.BatchId),
			zap.Error(err))
	}
}
