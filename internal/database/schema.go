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

const schemaSQL = `
	-- Credit balances (current state, hot data)
	CREATE TABLE IF NOT EXISTS credit_balances (
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,
		held_balance INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, currency),
		CHECK (held_balance >= 0),
		CHECK (balance - held_balance >= 0)
	);

	-- Credit transactions (audit trail, append-only)
	CREATE TABLE IF NOT EXISTS credit_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		idempotency_key TEXT,
		reference_type TEXT,
		reference_id TEXT,
		hold_id TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_currency ON credit_transactions(user_id, currency);
	CREATE INDEX IF NOT EXISTS idx_credit_transactions_currency ON credit_transactions(currency);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transactions_idempotency
		ON credit_transactions(user_id, idempotency_key) WHERE idempotency_key IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS credit_transactions_no_update
	BEFORE UPDATE ON credit_transactions
	BEGIN
		SELECT RAISE(ABORT, 'credit_transactions is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS credit_transactions_no_delete
	BEFORE DELETE ON credit_transactions
	BEGIN
		SELECT RAISE(ABORT, 'credit_transactions is append-only');
	END;

	-- Deposit sessions
	CREATE TABLE IF NOT EXISTS deposit_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		deposit_type TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		prior_status TEXT,
		detected_amount INTEGER NOT NULL DEFAULT 0,
		deposit_amount INTEGER NOT NULL,
		credited_amount INTEGER NOT NULL DEFAULT 0,
		encrypted_signing_key TEXT NOT NULL,
		relay_tx_ref TEXT,
		relay_account_id TEXT,
		withdrawal_available_at INTEGER NOT NULL,
		withdrawn_amount INTEGER NOT NULL DEFAULT 0,
		processing_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		batch_id TEXT,
		batch_tx_ref TEXT,
		claimed_at INTEGER,
		claim_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		CHECK (withdrawn_amount >= 0 AND withdrawn_amount <= deposit_amount)
	);

	CREATE INDEX IF NOT EXISTS idx_deposit_sessions_status_available ON deposit_sessions(status, withdrawal_available_at);
	CREATE INDEX IF NOT EXISTS idx_deposit_sessions_user ON deposit_sessions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_deposit_sessions_batch ON deposit_sessions(batch_id);

	CREATE TRIGGER IF NOT EXISTS deposit_sessions_key_write_once
	BEFORE UPDATE OF encrypted_signing_key ON deposit_sessions
	WHEN NEW.encrypted_signing_key IS NOT OLD.encrypted_signing_key
	BEGIN
		SELECT RAISE(ABORT, 'encrypted_signing_key is write-once');
	END;

	-- Withdrawal history (append-only)
	CREATE TABLE IF NOT EXISTS withdrawal_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES deposit_sessions(id),
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		fee INTEGER NOT NULL DEFAULT 0,
		tx_ref TEXT NOT NULL,
		cumulative_withdrawn INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		fully_withdrawn INTEGER NOT NULL,
		percentage_of_total REAL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawal_history_session ON withdrawal_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawal_history_user ON withdrawal_history(user_id);

	CREATE TRIGGER IF NOT EXISTS withdrawal_history_no_update
	BEFORE UPDATE ON withdrawal_history
	BEGIN
		SELECT RAISE(ABORT, 'withdrawal_history is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS withdrawal_history_no_delete
	BEFORE DELETE ON withdrawal_history
	BEGIN
		SELECT RAISE(ABORT, 'withdrawal_history is append-only');
	END;

	-- Treasury keys, one per scope ('' is the global default)
	CREATE TABLE IF NOT EXISTS treasury_configs (
		id TEXT PRIMARY KEY,
		scope_id TEXT NOT NULL UNIQUE,
		encrypted_key TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
