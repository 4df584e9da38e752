/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package withdrawal

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"privacy-relay-settlement/internal/alerts"
	"privacy-relay-settlement/internal/metrics"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/settings"
	"privacy-relay-settlement/internal/store"
)

// Dependencies contains the collaborators of a Worker
type Dependencies struct {
	Sessions     store.SessionStore
	Relay        relay.Client
	Keys         security.Decrypter
	Destinations DestinationResolver
	Settings     *settings.Reader
	Alerts       alerts.Notifier
	Metrics      *metrics.Recorder
}

// Worker claims matured deposit sessions and pays them out through the relay
type Worker struct {
	deps     Dependencies
	defaults models.WithdrawalConfig

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a withdrawal worker. Every default in cfg can be
// overridden at runtime through the settings store.
func NewWorker(deps Dependencies, cfg models.WithdrawalConfig) *Worker {
	if deps.Settings == nil {
		deps.Settings = settings.NewReader(nil)
	}
	if deps.Destinations == nil {
		deps.Destinations = StaticDestination(cfg.Destination)
	}
	return &Worker{
		deps:     deps,
		defaults: cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// WithRand replaces the randomness source used for shuffling and partial
// amounts.
func (w *Worker) WithRand(rng *rand.Rand) *Worker {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	w.rng = rng
	return w
}

// cycleSettings is the per-tick snapshot of the hot-reloadable settings.
type cycleSettings struct {
	batchSize      int
	percentage     int
	minLamports    int64
	maxRetries     int
	partialCount   int
	partialMin     int64
	leaseTimeout   time.Duration
	relayTimeout   time.Duration
	targetCurrency string
}

func (w *Worker) loadSettings(ctx context.Context) cycleSettings {
	r := w.deps.Settings
	cfg := cycleSettings{
		batchSize:      r.Int(ctx, settings.WithdrawalBatchSize, w.defaults.BatchSize),
		percentage:     r.Int(ctx, settings.WithdrawalPercentage, w.defaults.Percentage),
		minLamports:    r.Int64(ctx, settings.WithdrawalMinLamports, w.defaults.MinLamports),
		maxRetries:     r.Int(ctx, settings.WithdrawalMaxRetries, w.defaults.MaxRetries),
		partialCount:   r.Int(ctx, settings.WithdrawalPartialCount, w.defaults.PartialCount),
		partialMin:     r.Int64(ctx, settings.WithdrawalPartialMinLamports, w.defaults.PartialMinLamports),
		leaseTimeout:   r.Duration(ctx, settings.WithdrawalLeaseTimeout, w.defaults.LeaseTimeout),
		relayTimeout:   r.Duration(ctx, settings.WithdrawalRelayTimeout, w.defaults.RelayTimeout),
		targetCurrency: w.defaults.TargetCurrency,
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = 1
	}
	if cfg.maxRetries <= 0 {
		cfg.maxRetries = 1
	}
	cfg.enforceLeaseFloor()
	return cfg
}

// enforceLeaseFloor keeps the claim lease longer than a full pass over the
// batch, so sessions still waiting their turn are not reclaimed as stale.
func (c *cycleSettings) enforceLeaseFloor() {
	if c.relayTimeout <= 0 || c.leaseTimeout <= 0 {
		return
	}
	if c.leaseTimeout > time.Duration(c.batchSize)*c.relayTimeout {
		return
	}
	floor := time.Duration(c.batchSize+1) * c.relayTimeout
	zap.L().Warn("Withdrawal lease timeout too short for batch, raising it",
		zap.Duration("lease_timeout", c.leaseTimeout),
		zap.Int("batch_size", c.batchSize),
		zap.Duration("relay_timeout", c.relayTimeout),
		zap.Duration("effective_lease_timeout", floor))
	c.leaseTimeout = floor
}

func (w *Worker) pollInterval(ctx context.Context) time.Duration {
	interval := w.deps.Settings.Duration(ctx, settings.WithdrawalPollInterval, w.defaults.PollInterval)
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

// Start begins the withdrawal polling loop
func (w *Worker) Start(ctx context.Context) error {
	if w.deps.Sessions == nil || w.deps.Relay == nil || w.deps.Keys == nil {
		return errors.New("withdrawal worker requires sessions, relay and keys")
	}

	go w.pollLoop(ctx)

	zap.L().Info("Withdrawal worker started", zap.Duration("poll_interval", w.pollInterval(ctx)))
	return nil
}

// Stop waits for the in-flight cycle to finish, then stops the loop
func (w *Worker) Stop() {
	zap.L().Info("Stopping withdrawal worker")
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	zap.L().Info("Withdrawal worker stopped")
}

// pollLoop runs the main polling loop. The interval is re-read after every
// cycle and the ticker is reset when it changed.
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
				zap.L().Info("Withdrawal poll interval changed",
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
	started := time.Now()
	report, err := w.RunCycle(ctx)
	w.deps.Metrics.WithdrawalCycle(time.Since(started))
	if err != nil {
		zap.L().Error("Withdrawal cycle failed", zap.Error(err))
		return
	}
	if report.Claimed > 0 {
		zap.L().Info("Withdrawal cycle finished",
			zap.Int("claimed", report.Claimed),
			zap.Int("below_minimum", report.BelowMinimum),
			zap.Int("deferred", report.Deferred),
			zap.Int("processed", len(report.Results)),
			zap.Int("failed", report.Failed()))
	}
}

func (w *Worker) alert(ctx context.Context, alert models.Alert) {
	if w.deps.Alerts == nil {
		return
	}
	if err := w.deps.Alerts.Notify(ctx, alert); err != nil {
		zap.L().Warn("Failed to raise alert",
			zap.String("alert_kind", alert.Kind.String()),
			zap.String("session_id", alert.SessionId),
			zap.Error(err))
	}
}
