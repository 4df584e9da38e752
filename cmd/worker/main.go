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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"privacy-relay-settlement/internal/common"
	"privacy-relay-settlement/internal/config"

	"go.uber.org/zap"
)

type stopper interface {
	Stop()
}

func main() {
	noWithdrawals := flag.Bool("no-withdrawals", false, "Do not run the withdrawal worker")
	noBatches := flag.Bool("no-batches", false, "Do not run the micro-batch worker")
	noMetrics := flag.Bool("no-metrics", false, "Do not serve Prometheus metrics")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting settlement workers")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var workers []stopper
	if !*noWithdrawals {
		if err := services.Withdrawals.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start withdrawal worker", zap.Error(err))
		}
		workers = append(workers, services.Withdrawals)
	}
	if !*noBatches {
		if err := services.Batches.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start micro-batch worker", zap.Error(err))
		}
		workers = append(workers, services.Batches)
	}
	if len(workers) == 0 {
		zap.L().Fatal("Nothing to run: both workers are disabled")
	}

	if !*noMetrics && cfg.Metrics.Addr != "" {
		go func() {
			if err := services.Metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				zap.L().Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	zap.L().Info("Workers running", zap.Int("active", len(workers)))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping workers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func(w stopper) {
				defer wg.Done()
				w.Stop()
			}(w)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All workers stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
