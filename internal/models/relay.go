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

// DepositReceipt is returned by the relay after funds land in the user's relay account.
type DepositReceipt struct {
	TxRef     string `json:"tx_ref"`
	AccountId string `json:"account_id"`
}

// WithdrawalReceipt reports what the relay actually paid out. IsPartial is set by
// the relay when it could not pay the requested amount.
type WithdrawalReceipt struct {
	TxRef     string `json:"tx_ref"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	IsPartial bool   `json:"is_partial"`
}

type SwapReceipt struct {
	TxRef          string `json:"tx_ref"`
	OutputAmount   int64  `json:"output_amount"`
	OutputCurrency string `json:"output_currency"`
	Success        bool   `json:"success"`
}
