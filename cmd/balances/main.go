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
	"fmt"
	"strings"

	"privacy-relay-settlement/internal/common"
	"privacy-relay-settlement/internal/config"
	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/formance"
	"privacy-relay-settlement/internal/ledger"
	"privacy-relay-settlement/internal/models"

	"go.uber.org/zap"
)

type report struct {
	ledger   *ledger.Service
	journal  ledger.JournalBalances
	registry *conversion.Registry
}

func (r *report) amount(n int64, currency string) string {
	return common.FormatAmount(r.registry, n, currency)
}

func (r *report) printBalance(ctx context.Context, b models.CreditBalance, isLast bool) {
	fmt.Printf("%s%-6s balance: %20s  held: %s  available: %s  (updated %s)\n",
		common.BoxPrefix(isLast),
		b.Currency,
		r.amount(b.Balance, b.Currency),
		r.amount(b.HeldBalance, b.Currency),
		r.amount(b.Available(), b.Currency),
		b.UpdatedAt.Format("2006-01-02 15:04:05"))

	stats, err := r.ledger.GetUserStats(ctx, b.UserId, b.Currency)
	if err != nil {
		zap.L().Warn("Failed to load user stats",
			zap.String("user_id", b.UserId),
			zap.String("currency", b.Currency),
			zap.Error(err))
		return
	}
	fmt.Printf("%s  %d transaction(s): deposited %s, spent %s, adjusted %s\n",
		common.BoxDetailPrefix(isLast),
		stats.TransactionCount,
		r.amount(stats.TotalDeposited, b.Currency),
		r.amount(stats.TotalSpent, b.Currency),
		r.amount(stats.TotalAdjusted, b.Currency))
}

func (r *report) printHistory(ctx context.Context, userId, currency string, limit int) error {
	history, err := r.ledger.GetTransactionHistory(ctx, userId, currency, limit, 0)
	if err != nil {
		return fmt.Errorf("failed to get transaction history: %w", err)
	}

	common.PrintSeparator("-", common.WideWidth)
	fmt.Printf("Last %d %s transaction(s)\n", len(history), currency)
	for i, tx := range history {
		isLast := i == len(history)-1
		fmt.Printf("%s%s  %-10s %20s  ref=%s:%s\n",
			common.BoxPrefix(isLast),
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
			tx.Type,
			r.amount(tx.Amount, tx.Currency),
			tx.ReferenceType,
			common.ShortId(tx.ReferenceId))
		if tx.IdempotencyKey != "" {
			fmt.Printf("%s  key=%s\n", common.BoxDetailPrefix(isLast), tx.IdempotencyKey)
		}
	}
	return nil
}

func (r *report) reconcile(ctx context.Context, userId, currency string) bool {
	ok := true
	if err := r.ledger.Reconcile(ctx, userId, currency); err != nil {
		fmt.Printf("  %s: ledger MISMATCH (%v)\n", currency, err)
		ok = false
	} else {
		fmt.Printf("  %s: ledger consistent\n", currency)
	}

	if r.journal == nil {
		return ok
	}
	if err := r.ledger.ReconcileJournal(ctx, r.journal, userId, currency); err != nil {
		fmt.Printf("  %s: journal MISMATCH (%v)\n", currency, err)
		return false
	}
	fmt.Printf("  %s: journal consistent\n", currency)
	return ok
}

func (r *report) userReport(ctx context.Context, userId, currency string, history int, reconcile bool) error {
	balances, err := r.ledger.GetAllBalances(ctx, userId)
	if err != nil {
		return fmt.Errorf("failed to get balances: %w", err)
	}
	if currency != "" {
		filtered := balances[:0]
		for _, b := range balances {
			if strings.EqualFold(b.Currency, currency) {
				filtered = append(filtered, b)
			}
		}
		balances = filtered
	}

	common.PrintHeader("CREDIT BALANCES FOR "+userId, common.WideWidth)
	if len(balances) == 0 {
		fmt.Println("No balances found")
	}
	for i, b := range balances {
		r.printBalance(ctx, b, i == len(balances)-1)
	}

	if history > 0 {
		for _, b := range balances {
			if err := r.printHistory(ctx, userId, b.Currency, history); err != nil {
				return err
			}
		}
	}

	allConsistent := true
	if reconcile {
		common.PrintSeparator("-", common.WideWidth)
		fmt.Println("Reconciliation")
		for _, b := range balances {
			if !r.reconcile(ctx, userId, b.Currency) {
				allConsistent = false
			}
		}
	}

	footer := fmt.Sprintf("%d balance(s)", len(balances))
	if reconcile && !allConsistent {
		footer += " - RECONCILIATION FAILED"
	}
	common.PrintFooter(footer, common.WideWidth)
	return nil
}

func (r *report) globalReport(ctx context.Context, currencies []string) error {
	common.PrintHeader("CREDIT LEDGER SUMMARY", common.WideWidth)
	for i, currency := range currencies {
		stats, err := r.ledger.GetStats(ctx, currency)
		if err != nil {
			return fmt.Errorf("failed to get %s stats: %w", currency, err)
		}
		isLast := i == len(currencies)-1
		fmt.Printf("%s%-6s users: %d  transactions: %d  net: %s\n",
			common.BoxPrefix(isLast), currency, stats.UserCount, stats.TransactionCount,
			r.amount(stats.NetBalance, currency))
		fmt.Printf("%s  deposited %s, spent %s, adjusted %s\n",
			common.BoxDetailPrefix(isLast),
			r.amount(stats.TotalDeposited, currency),
			r.amount(stats.TotalSpent, currency),
			r.amount(stats.TotalAdjusted, currency))
	}
	common.PrintFooter("Use --user to show a single user's balances", common.WideWidth)
	return nil
}

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "Show balances for this user")
	currencyFlag := flag.String("currency", "", "Limit output to one currency")
	historyFlag := flag.Int("history", 0, "Show the last N credit transactions per currency (requires --user)")
	reconcileFlag := flag.Bool("reconcile", false, "Check balances against the credit log (requires --user)")
	journalFlag := flag.Bool("journal", false, "Also reconcile against the Formance journal")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	logger.Info("Starting balance query")

	// Read-only: no relay or pricing services needed.
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	registry, err := common.LoadRegistry(cfg.Deposit)
	if err != nil {
		logger.Fatal("Failed to load currencies", zap.Error(err))
	}

	r := &report{
		ledger:   ledger.NewService(dbService, nil),
		registry: registry,
	}

	if *journalFlag {
		if cfg.Formance.StackURL == "" {
			logger.Fatal("--journal requires FORMANCE_STACK_URL")
		}
		journal, err := formance.NewService(ctx, cfg.Formance, registry)
		if err != nil {
			logger.Fatal("Failed to connect to Formance", zap.Error(err))
		}
		r.journal = journal
	}

	if *userFlag == "" {
		if *historyFlag > 0 || *reconcileFlag {
			logger.Fatal("--history and --reconcile require --user")
		}
		currencies := registry.Symbols()
		if *currencyFlag != "" {
			currencies = []string{strings.ToUpper(*currencyFlag)}
		}
		err = r.globalReport(ctx, currencies)
	} else {
		err = r.userReport(ctx, *userFlag, *currencyFlag, *historyFlag, *reconcileFlag || *journalFlag)
	}
	if err != nil {
		logger.Fatal("Balance query failed", zap.Error(err))
	}
}
