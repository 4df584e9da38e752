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
	"os"
	"time"

	"privacy-relay-settlement/internal/common"
	"privacy-relay-settlement/internal/config"
	"privacy-relay-settlement/internal/deposit"
	"privacy-relay-settlement/internal/models"

	"go.uber.org/zap"
)

type depositFlags struct {
	user         string
	wallet       string
	currency     string
	amount       string
	encryptedKey string
	keyEnv       string
}

func parseFlags() (*depositFlags, error) {
	f := &depositFlags{}
	flag.StringVar(&f.user, "user", "", "User id to credit (required)")
	flag.StringVar(&f.wallet, "wallet", "", "Ephemeral deposit wallet address (required)")
	flag.StringVar(&f.currency, "currency", "SOL", "Deposit currency symbol")
	flag.StringVar(&f.amount, "amount", "", "Amount in whole units, e.g. 1.5 (required)")
	flag.StringVar(&f.encryptedKey, "encrypted-key", "", "Encrypted signing key of the deposit wallet")
	flag.StringVar(&f.keyEnv, "key-env", "", "Environment variable holding the raw signing key; it is encrypted before use")
	flag.Parse()

	if f.user == "" || f.wallet == "" || f.amount == "" {
		return nil, fmt.Errorf("flags --user, --wallet and --amount are required")
	}
	if (f.encryptedKey == "") == (f.keyEnv == "") {
		return nil, fmt.Errorf("exactly one of --encrypted-key or --key-env is required")
	}
	return f, nil
}

func encryptedSigningKey(services *common.Services, f *depositFlags) (string, error) {
	if f.encryptedKey != "" {
		return f.encryptedKey, nil
	}
	raw := os.Getenv(f.keyEnv)
	if raw == "" {
		return "", fmt.Errorf("environment variable %s is empty", f.keyEnv)
	}
	return services.Cipher.Encrypt([]byte(raw))
}

func printResult(services *common.Services, req deposit.Request, result *models.DepositResult) {
	registry := services.Converter.Registry()

	common.PrintHeader("DEPOSIT", common.DefaultWidth)
	fmt.Printf("User:            %s\n", req.UserId)
	fmt.Printf("Session:         %s\n", result.SessionId)
	fmt.Printf("Status:          %s\n", result.Status)
	fmt.Printf("Deposited:       %s\n", common.FormatAmount(registry, result.DepositAmount, req.Currency))
	if result.RelayTxRef != "" {
		fmt.Printf("Relay tx:        %s\n", result.RelayTxRef)
	}
	fmt.Printf("Fee deduction:   %s\n", common.FormatAmount(registry, result.FeeDeduction, result.CreditCurrency))
	fmt.Printf("Credited:        %s\n", common.FormatAmount(registry, result.CreditedAmount, result.CreditCurrency))
	fmt.Printf("Withdrawable at: %s\n", result.AvailableAt.Format(time.RFC3339))
	if result.Error != "" {
		fmt.Printf("Error:           %s\n", result.Error)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	f, err := parseFlags()
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

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	amount, err := common.ParseAmount(services.Converter.Registry(), f.amount, f.currency)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.Error(err))
	}

	key, err := encryptedSigningKey(services, f)
	if err != nil {
		zap.L().Fatal("Unable to prepare signing key", zap.Error(err))
	}

	req := deposit.Request{
		UserId:              f.user,
		WalletAddress:       f.wallet,
		Currency:            f.currency,
		Amount:              amount,
		EncryptedSigningKey: key,
	}

	result, err := services.Deposits.Execute(ctx, req)
	if result != nil {
		printResult(services, req, result)
	}
	if err != nil {
		if result != nil {
			zap.L().Error("Deposit accepted by the relay but not credited; reconcile manually",
				zap.String("session_id", result.SessionId),
				zap.Error(err))
			os.Exit(1)
		}
		common.PrintHeader("DEPOSIT FAILED", common.DefaultWidth)
		fmt.Printf("Error: %v\n", err)
		common.PrintSeparator("=", common.DefaultWidth)
		os.Exit(1)
	}
}
