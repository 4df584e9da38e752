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
	"errors"
	"flag"
	"fmt"
	"os"

	"privacy-relay-settlement/internal/common"
	"privacy-relay-settlement/internal/config"
	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"
	"privacy-relay-settlement/internal/withdrawal"

	"go.uber.org/zap"
)

type withdrawalFlags struct {
	session  string
	user     string
	process  int
	confirm  bool
	operator string
	reason   string
}

func parseAndValidateFlags() (*withdrawalFlags, error) {
	f := &withdrawalFlags{}
	flag.StringVar(&f.session, "session", "", "Deposit session to withdraw")
	flag.StringVar(&f.user, "user", "", "Withdraw --session on behalf of this user (privacy period enforced)")
	flag.IntVar(&f.process, "process", 0, "Run one unthrottled cycle over at most N ready sessions")
	flag.BoolVar(&f.confirm, "confirm", false, "Confirm a forced withdrawal that bypasses the privacy period")
	flag.StringVar(&f.operator, "operator", "", "Operator requesting a forced withdrawal")
	flag.StringVar(&f.reason, "reason", "", "Reason recorded for a forced withdrawal")
	flag.Parse()

	switch {
	case f.process > 0:
		if f.session != "" || f.user != "" {
			return nil, fmt.Errorf("--process cannot be combined with --session or --user")
		}
	case f.session == "":
		return nil, fmt.Errorf("either --session or --process is required")
	case f.user == "" && f.operator == "":
		return nil, fmt.Errorf("a forced withdrawal requires --operator")
	}
	return f, nil
}

func printResult(registry *conversion.Registry, currency string, result *models.WithdrawalResult, isLast bool) {
	fmt.Printf("%sSession %s: %s\n", common.BoxPrefix(isLast), result.SessionId, result.Status)
	detail := common.BoxDetailPrefix(isLast)
	fmt.Printf("%s  Requested: %s\n", detail, common.FormatAmount(registry, result.Requested, currency))
	fmt.Printf("%s  Withdrawn: %s\n", detail, common.FormatAmount(registry, result.Withdrawn, currency))
	if result.TxRef != "" {
		fmt.Printf("%s  Tx:        %s\n", detail, result.TxRef)
	}
	if result.Error != "" {
		fmt.Printf("%s  Error:     %s\n", detail, result.Error)
	}
}

func runSingle(ctx context.Context, services *common.Services, f *withdrawalFlags) error {
	session, err := services.DbService.GetSession(ctx, f.session)
	if err != nil {
		return err
	}

	var result *models.WithdrawalResult
	if f.user != "" {
		result, err = services.Withdrawals.WithdrawForUser(ctx, f.user, f.session)
	} else {
		result, err = services.Withdrawals.ForceWithdraw(ctx, f.session, withdrawal.ForceOptions{
			Confirm:  f.confirm,
			Operator: f.operator,
			Reason:   f.reason,
		})
	}

	if result != nil {
		common.PrintHeader("WITHDRAWAL", common.DefaultWidth)
		printResult(services.Converter.Registry(), session.Currency, result, true)
		common.PrintSeparator("=", common.DefaultWidth)
	}
	return err
}

func runProcess(ctx context.Context, services *common.Services, limit int) error {
	report, err := services.Withdrawals.ForceProcess(ctx, limit)
	if err != nil {
		return err
	}

	common.PrintHeader(fmt.Sprintf("WITHDRAWAL CYCLE (limit %d)", limit), common.DefaultWidth)
	fmt.Printf("Claimed:        %d\n", report.Claimed)
	fmt.Printf("Below minimum:  %d\n", report.BelowMinimum)
	fmt.Printf("Processed:      %d\n", len(report.Results))
	fmt.Printf("Failed:         %d\n", report.Failed())
	registry := services.Converter.Registry()
	for i := range report.Results {
		result := &report.Results[i]
		currency := registry.Native().Symbol
		if session, err := services.DbService.GetSession(ctx, result.SessionId); err == nil {
			currency = session.Currency
		}
		printResult(registry, currency, result, i == len(report.Results)-1)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	return nil
}

func main() {
	ctx := context.Background()

	f, err := parseAndValidateFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if f.process > 0 {
		err = runProcess(ctx, services, f.process)
	} else {
		err = runSingle(ctx, services, f)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, store.ErrForceNotConfirmed):
		fmt.Println("Refusing to withdraw before the privacy period ends without --confirm")
	case errors.Is(err, store.ErrPrivacyPeriodActive):
		fmt.Println("The privacy period for this session has not elapsed yet")
	case errors.Is(err, store.ErrAlreadyWithdrawn):
		fmt.Println("This session has already been fully withdrawn")
	case errors.Is(err, store.ErrOwnershipMismatch):
		fmt.Println("This session belongs to another user")
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("Session not found")
	}
	zap.L().Error("Withdrawal failed", zap.Error(err))
	loggerCleanup()
	services.Close()
	os.Exit(1)
}
