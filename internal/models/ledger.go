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

package models

import (
	"fmt"
	"time"
)

// TransactionType classifies an entry in the immutable credit log.
type TransactionType int

const (
	TransactionTypeDeposit TransactionType = iota + 1
	TransactionTypeSpend
	TransactionTypeAdjustment
)

func (t TransactionType) String() string {
	switch t {
	case TransactionTypeDeposit:
		return "deposit"
	case TransactionTypeSpend:
		return "spend"
	case TransactionTypeAdjustment:
		return "adjustment"
	default:
		return fmt.Sprintf("transaction_type(%d)", int(t))
	}
}

// ParseTransactionType is the inverse of TransactionType.String.
func ParseTransactionType(s string) (TransactionType, error) {
	switch s {
	case "deposit":
		return TransactionTypeDeposit, nil
	case "spend":
		return TransactionTypeSpend, nil
	case "adjustment":
		return TransactionTypeAdjustment, nil
	default:
		return 0, fmt.Errorf("unknown transaction type %q", s)
	}
}

// CreditBalance is the current credit state for one (user, currency) pair.
// Amounts are in the currency's smallest unit.
type CreditBalance struct {
	UserId      string    `db:"user_id"`
	Currency    string    `db:"currency"`
	Balance     int64     `db:"balance"`
	HeldBalance int64     `db:"held_balance"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Available returns the spendable part of the balance.
func (b CreditBalance) Available() int64 {
	return b.Balance - b.HeldBalance
}

// CreditTransaction is an append-only audit record. Amount is signed.
type CreditTransaction struct {
	Id             string            `db:"id"`
	UserId         string            `db:"user_id"`
	Amount         int64             `db:"amount"`
	Currency       string            `db:"currency"`
	Type           TransactionType   `db:"transaction_type"`
	IdempotencyKey string            `db:"idempotency_key"`
	ReferenceType  string            `db:"reference_type"`
	ReferenceId    string            `db:"reference_id"`
	HoldId         string            `db:"hold_id"`
	Metadata       map[string]string `db:"metadata"`
	CreatedAt      time.Time         `db:"created_at"`
}

// LedgerStats aggregates the credit log for one currency. Totals are signed
// sums, so NetBalance == TotalDeposited + TotalSpent + TotalAdjusted.
type LedgerStats struct {
	Currency         string
	UserCount        int64
	TransactionCount int64
	TotalDeposited   int64
	TotalSpent       int64
	TotalAdjusted    int64
	NetBalance       int64
}

// UserStats aggregates the credit log for one user and currency.
type UserStats struct {
	UserId           string
	Currency         string
	TransactionCount int64
	TotalDeposited   int64
	TotalSpent       int64
	TotalAdjusted    int64
	Balance          int64
	HeldBalance      int64
}
