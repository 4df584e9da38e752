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
	"time"

	"privacy-relay-settlement/internal/common"
	"privacy-relay-settlement/internal/config"
	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/database"
	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/store"

	"go.uber.org/zap"
)

func parseStatuses(raw string) ([]models.SessionStatus, error) {
	var statuses []models.SessionStatus
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		status, err := models.ParseSessionStatus(item)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func printSession(registry *conversion.Registry, s models.DepositSession, isLast bool) {
	fmt.Printf("%s%s  %-13s %-5s user=%s\n",
		common.BoxPrefix(isLast), common.ShortId(s.Id), s.Status, s.DepositType, s.UserId)
	detail := common.BoxDetailPrefix(isLast)
	fmt.Printf("%s  Deposited: %s  Withdrawn: %s  Remaining: %s\n", detail,
		common.FormatAmount(registry, s.DepositAmount, s.Currency),
		common.FormatAmount(registry, s.WithdrawnAmount, s.Currency),
		common.FormatAmount(registry, s.Remaining(), s.Currency))
	fmt.Printf("%s  Available: %s  Attempts: %d\n", detail,
		s.WithdrawalAvailableAt.Format(time.RFC3339), s.ProcessingAttempts)
	if s.BatchId != "" {
		fmt.Printf("%s  Batch: %s  Tx: %s\n", detail, s.BatchId, common.ShortId(s.BatchTxRef))
	}
	if s.LastError != "" {
		fmt.Printf("%s  Last error: %s\n", detail, s.LastError)
	}
}

func listSessions(ctx context.Context, db *database.Service, registry *conversion.Registry, filter store.SessionFilter) error {
	sessions, err := db.ListSessions(ctx, filter)
	if err != nil {
		return err
	}

	title := "DEPOSIT SESSIONS"
	if filter.UserId != "" {
		title += " FOR " + filter.UserId
	}
	common.PrintHeader(title, common.WideWidth)
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
	}
	for i, s := range sessions {
		printSession(registry, s, i == len(sessions)-1)
	}
	common.PrintFooter(fmt.Sprintf("%d session(s)", len(sessions)), common.WideWidth)
	return nil
}

func printHistory(registry *conversion.Registry, currencyOf func(sessionId string) string, entries []models.WithdrawalHistoryEntry) {
	for i, e := range entries {
		currency := currencyOf(e.SessionId)
		isLast := i == len(entries)-1
		pct := "-"
		if e.PercentageOfTotal != nil {
			pct = fmt.Sprintf("%.2f%%", *e.PercentageOfTotal)
		}
		fmt.Printf("%s%s  session=%s  %s\n", common.BoxPrefix(isLast),
			e.CreatedAt.Format(time.RFC3339), common.ShortId(e.SessionId), common.ShortId(e.TxRef))
		fmt.Printf("%s  Amount: %s  Cumulative: %s  Remaining: %s  Share: %s  Full: %t\n",
			common.BoxDetailPrefix(isLast),
			common.FormatAmount(registry, e.Amount, currency),
			common.FormatAmount(registry, e.CumulativeWithdrawn, currency),
			common.FormatAmount(registry, e.Remaining, currency),
			pct, e.FullyWithdrawn)
	}
}

func sessionHistory(ctx context.Context, db *database.Service, registry *conversion.Registry, sessionId string) error {
	session, err := db.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}
	entries, err := db.GetWithdrawalHistory(ctx, sessionId)
	if err != nil {
		return err
	}

	common.PrintHeader("SESSION "+session.Id, common.WideWidth)
	printSession(registry, *session, true)
	common.PrintSeparator("-", common.WideWidth)
	printHistory(registry, func(string) string { return session.Currency }, entries)
	common.PrintFooter(fmt.Sprintf("%d withdrawal(s)", len(entries)), common.WideWidth)
	return nil
}

func userWithdrawals(ctx context.Context, db *database.Service, registry *conversion.Registry, userId string, limit, offset int) error {
	entries, err := db.ListWithdrawals(ctx, userId, limit, offset)
	if err != nil {
		return err
	}

	common.PrintHeader("WITHDRAWALS FOR "+userId, common.WideWidth)
	currencies := make(map[string]string)
	currencyOf := func(sessionId string) string {
		if c, ok := currencies[sessionId]; ok {
			return c
		}
		c := registry.Native().Symbol
		if s, err := db.GetSession(ctx, sessionId); err == nil {
			c = s.Currency
		}
		currencies[sessionId] = c
		return c
	}
	printHistory(registry, currencyOf, entries)
	common.PrintFooter(fmt.Sprintf("%d withdrawal(s)", len(entries)), common.WideWidth)
	return nil
}

func main() {
	ctx := context.Background()

	userFlag := flag.String("user", "", "Only sessions belonging to this user")
	statusFlag := flag.String("status", "", "Comma separated statuses, e.g. completed,pending_retry")
	sessionFlag := flag.String("session", "", "Show one session with its withdrawal history")
	withdrawalsFlag := flag.Bool("withdrawals", false, "List withdrawal history for --user instead of sessions")
	limitFlag := flag.Int("limit", 50, "Maximum rows")
	offsetFlag := flag.Int("offset", 0, "Rows to skip")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.BootstrapLogger()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	db, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	registry, err := common.LoadRegistry(cfg.Deposit)
	if err != nil {
		zap.L().Fatal("Failed to load currencies", zap.Error(err))
	}

	switch {
	case *sessionFlag != "":
		err = sessionHistory(ctx, db, registry, *sessionFlag)
	case *withdrawalsFlag:
		if *userFlag == "" {
			zap.L().Fatal("--withdrawals requires --user")
		}
		err = userWithdrawals(ctx, db, registry, *userFlag, *limitFlag, *offsetFlag)
	default:
		statuses, parseErr := parseStatuses(*statusFlag)
		if parseErr != nil {
			zap.L().Fatal("Invalid --status", zap.Error(parseErr))
		}
		err = listSessions(ctx, db, registry, store.SessionFilter{
			UserId:   *userFlag,
			Statuses: statuses,
			Limit:    *limitFlag,
			Offset:   *offsetFlag,
		})
	}
	if err != nil {
		zap.L().Fatal("Query failed", zap.Error(err))
	}
}
