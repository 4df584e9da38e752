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

import "time"

// DepositResult represents the result of executing a deposit
type DepositResult struct {
	Success        bool      `json:"success"`
	SessionId      string    `json:"session_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	RelayTxRef     string    `json:"relay_tx_ref,omitempty"`
	DepositAmount  int64     `json:"deposit_amount,omitempty"`
	FeeDeduction   int64     `json:"fee_deduction,omitempty"`
	CreditedAmount int64     `json:"credited_amount,omitempty"`
	CreditCurrency string    `json:"credit_currency,omitempty"`
	AvailableAt    time.Time `json:"withdrawal_available_at,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// WithdrawalResult represents the outcome of one withdrawal attempt
type WithdrawalResult struct {
	SessionId      string `json:"session_id"`
	Requested      int64  `json:"requested"`
	Withdrawn      int64  `json:"withdrawn"`
	TxRef          string `json:"tx_ref,omitempty"`
	Intentional    bool   `json:"intentional_partial"`
	FullyWithdrawn bool   `json:"fully_withdrawn"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}
