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

package database

const (
	// Balance queries
	queryGetBalance = `
		SELECT user_id, currency, balance, held_balance, created_at, updated_at
		FROM credit_balances
		WHERE user_id = ? AND currency = ?`

	queryGetAllUserBalances = `
		SELECT user_id, currency, balance, held_balance, created_at, updated_at
		FROM credit_balances
		WHERE user_id = ?
		ORDER BY currency`

	queryEnsureBalance = `
		INSERT INTO credit_balances (user_id, currency, balance, held_balance, created_at, updated_at)
		VALUES (?, ?, 0, 0, ?, ?)
		ON CONFLICT (user_id, currency) DO NOTHING`

	queryIncrementBalance = `
		UPDATE credit_balances
		SET balance = balance + ?, updated_at = ?
		WHERE user_id = ? AND currency = ?`

	// The sufficiency predicate and the decrement are one statement.
	queryDecrementBalance = `
		UPDATE credit_balances
		SET balance = balance - ?, updated_at = ?
		WHERE user_id = ? AND currency = ? AND balance - held_balance >= ?`

	querySetHeldBalance = `
		UPDATE credit_balances
		SET held_balance = ?, updated_at = ?
		WHERE user_id = ? AND currency = ? AND balance >= ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO credit_transactions (id, user_id, amount, currency, transaction_type,
			idempotency_key, reference_type, reference_id, hold_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	transactionColumns = `id, user_id, amount, currency, transaction_type,
		idempotency_key, reference_type, reference_id, hold_id, metadata, created_at`

	queryFindTransactionByIdempotencyKey = `
		SELECT ` + transactionColumns + `
		FROM credit_transactions
		WHERE user_id = ? AND idempotency_key = ?`

	queryGetTransactionHistory = `
		SELECT ` + transactionColumns + `
		FROM credit_transactions
		WHERE user_id = ? AND currency = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_transactions
		WHERE user_id = ? AND currency = ?`

	queryCurrencyStats = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN transaction_type = 'deposit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'spend' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'adjustment' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(amount), 0)
		FROM credit_transactions
		WHERE currency = ?`

	queryCurrencyUserCount = `
		SELECT COUNT(*) FROM credit_balances WHERE currency = ?`

	queryUserStats = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN transaction_type = 'deposit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'spend' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN transaction_type = 'adjustment' THEN amount ELSE 0 END), 0)
		FROM credit_transactions
		WHERE user_id = ? AND currency = ?`

	// Session queries
	sessionColumns = `id, user_id, wallet_address, deposit_type, currency, status,
		detected_amount, deposit_amount, credited_amount, encrypted_signing_key,
		relay_tx_ref, relay_account_id, withdrawal_available_at, withdrawn_amount,
		processing_attempts, last_error, batch_id, batch_tx_ref, claimed_at, claim_id, created_at, updated_at`

	queryInsertSession = `
		INSERT INTO deposit_sessions (id, user_id, wallet_address, deposit_type, currency, status,
			detected_amount, deposit_amount, credited_amount, encrypted_signing_key,
			relay_tx_ref, relay_account_id, withdrawal_available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + sessionColumns

	queryGetSession = `
		SELECT ` + sessionColumns + `
		FROM deposit_sessions
		WHERE id = ?`

	// Claim-and-lease: the eligibility predicate is repeated in the outer WHERE
	// so a row changed by a concurrent claimer between the subquery and the
	// update is skipped.
	queryClaimReadySessions = `
		UPDATE deposit_sessions
		SET prior_status = CASE WHEN status = 'processing' THEN prior_status ELSE status END,
			status = 'processing',
			claimed_at = ?1,
			claim_id = ?4,
			updated_at = ?1
		WHERE id IN (
			SELECT id FROM deposit_sessions
			WHERE (status IN ('completed', 'pending_retry') AND withdrawal_available_at <= ?1)
				OR (status = 'processing' AND claimed_at <= ?2)
			ORDER BY withdrawal_available_at, created_at
			LIMIT ?3
		)
		AND ((status IN ('completed', 'pending_retry') AND withdrawal_available_at <= ?1)
			OR (status = 'processing' AND claimed_at <= ?2))
		RETURNING ` + sessionColumns

	queryClaimSession = `
		UPDATE deposit_sessions
		SET prior_status = status, status = 'processing', claimed_at = ?, claim_id = ?, updated_at = ?
		WHERE id = ? AND status IN ('completed', 'pending_retry')
		RETURNING ` + sessionColumns

	queryRenewClaim = `
		UPDATE deposit_sessions
		SET claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing' AND claim_id = ?`

	queryReleaseSession = `
		UPDATE deposit_sessions
		SET status = COALESCE(prior_status, 'completed'), prior_status = NULL, claimed_at = NULL, claim_id = NULL,
			updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryGetSessionForUpdate = `
		SELECT user_id, status, deposit_amount, withdrawn_amount, claim_id
		FROM deposit_sessions
		WHERE id = ?`

	queryApplyWithdrawal = `
		UPDATE deposit_sessions
		SET withdrawn_amount = ?, status = ?, prior_status = NULL, claimed_at = NULL,
			claim_id = NULL, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = 'processing' AND claim_id = ? AND withdrawn_amount = ?
		RETURNING ` + sessionColumns

	queryInsertWithdrawalHistory = `
		INSERT INTO withdrawal_history (id, session_id, user_id, amount, fee, tx_ref,
			cumulative_withdrawn, remaining, fully_withdrawn, percentage_of_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// processing_attempts on the right-hand side is the pre-update value.
	queryRecordWithdrawalFailure = `
		UPDATE deposit_sessions
		SET processing_attempts = processing_attempts + 1,
			last_error = ?1,
			status = CASE WHEN ?2 OR processing_attempts + 1 >= ?3 THEN 'failed' ELSE 'pending_retry' END,
			prior_status = NULL,
			claimed_at = NULL,
			claim_id = NULL,
			updated_at = ?4
		WHERE id = ?5 AND status = 'processing' AND claim_id = ?6
		RETURNING ` + sessionColumns

	historyColumns = `id, session_id, user_id, amount, fee, tx_ref, cumulative_withdrawn,
		remaining, fully_withdrawn, percentage_of_total, created_at`

	queryGetWithdrawalHistory = `
		SELECT ` + historyColumns + `
		FROM withdrawal_history
		WHERE session_id = ?
		ORDER BY seq`

	queryListWithdrawals = `
		SELECT ` + historyColumns + `
		FROM withdrawal_history
		WHERE (? = '' OR user_id = ?)
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`

	// Batch queries
	queryFetchPendingBatch = `
		SELECT ` + sessionColumns + `
		FROM deposit_sessions
		WHERE status = 'pending_batch'
		ORDER BY created_at, id
		LIMIT ?`

	queryMarkBatched = `
		UPDATE deposit_sessions
		SET status = 'batched', batch_tx_ref = ?, updated_at = ?
		WHERE batch_id = ? AND status = 'batching'`

	queryReleaseBatch = `
		UPDATE deposit_sessions
		SET status = 'pending_batch', batch_id = NULL, updated_at = ?
		WHERE batch_id = ? AND status = 'batching'`

	// Treasury queries
	queryFindTreasury = `
		SELECT id, scope_id, encrypted_key, metadata, created_at, updated_at
		FROM treasury_configs
		WHERE scope_id = ?`

	queryUpsertTreasury = `
		INSERT INTO treasury_configs (id, scope_id, encrypted_key, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope_id) DO UPDATE SET
			encrypted_key = excluded.encrypted_key,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		RETURNING id, scope_id, encrypted_key, metadata, created_at, updated_at`
)
