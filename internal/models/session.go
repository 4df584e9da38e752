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

// SessionStatus is the lifecycle state of a DepositSession.
type SessionStatus int

const (
	// SessionStatusPendingBatch is a small native-coin deposit awaiting aggregation.
	SessionStatusPendingBatch SessionStatus = iota + 1
	// SessionStatusBatching is reserved by a micro-batch cycle whose swap is in flight.
	SessionStatusBatching
	// SessionStatusBatched was settled as part of a consolidated swap.
	SessionStatusBatched
	// SessionStatusCompleted has funds resident at the relay and a running privacy timer.
	SessionStatusCompleted
	// SessionStatusProcessing is claimed by a withdrawal worker.
	SessionStatusProcessing
	// SessionStatusPendingRetry had a recoverable withdrawal failure.
	SessionStatusPendingRetry
	SessionStatusWithdrawn
	SessionStatusFailed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionStatusPendingBatch:
		return "pending_batch"
	case SessionStatusBatching:
		return "batching"
	case SessionStatusBatched:
		return "batched"
	case SessionStatusCompleted:
		return "completed"
	case SessionStatusProcessing:
		return "processing"
	case SessionStatusPendingRetry:
		return "pending_retry"
	case SessionStatusWithdrawn:
		return "withdrawn"
	case SessionStatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("session_status(%d)", int(s))
	}
}

// ParseSessionStatus is the inverse of SessionStatus.String.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch s {
	case "pending_batch":
		return SessionStatusPendingBatch, nil
	case "batching":
		return SessionStatusBatching, nil
	case "batched":
		return SessionStatusBatched, nil
	case "completed":
		return SessionStatusCompleted, nil
	case "processing":
		return SessionStatusProcessing, nil
	case "pending_retry":
		return SessionStatusPendingRetry, nil
	case "withdrawn":
		return SessionStatusWithdrawn, nil
	case "failed":
		return SessionStatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown session status %q", s)
	}
}

// Terminal reports whether no further transition is possible without an operator.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusWithdrawn, SessionStatusFailed, SessionStatusBatched:
		return true
	case SessionStatusPendingBatch, SessionStatusBatching, SessionStatusCompleted,
		SessionStatusProcessing, SessionStatusPendingRetry:
		return false
	default:
		return false
	}
}

// Withdrawable reports whether a session in this status may be claimed for withdrawal.
func (s SessionStatus) Withdrawable() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusPendingRetry:
		return true
	case SessionStatusPendingBatch, SessionStatusBatching, SessionStatusBatched,
		SessionStatusProcessing, SessionStatusWithdrawn, SessionStatusFailed:
		return false
	default:
		return false
	}
}

// DepositType tells how the deposit reached the relay.
type DepositType int

const (
	// DepositTypeRelay went to the relay directly with the user's own key.
	DepositTypeRelay DepositType = iota + 1
	// DepositTypeMicro is aggregated by the micro-batch worker.
	DepositTypeMicro
)

func (d DepositType) String() string {
	switch d {
	case DepositTypeRelay:
		return "relay"
	case DepositTypeMicro:
		return "micro"
	default:
		return fmt.Sprintf("deposit_type(%d)", int(d))
	}
}

// ParseDepositType is the inverse of DepositType.String.
func ParseDepositType(s string) (DepositType, error) {
	switch s {
	case "relay":
		return DepositTypeRelay, nil
	case "micro":
		return DepositTypeMicro, nil
	default:
		return 0, fmt.Errorf("unknown deposit type %q", s)
	}
}

// DepositSession tracks one deposit attempt from creation to final settlement.
// Amounts are in the deposit currency's smallest unit.
type DepositSession struct {
	Id                    string
	UserId                string
	WalletAddress         string
	DepositType           DepositType
	Currency              string
	Status                SessionStatus
	DetectedAmount        int64
	DepositAmount         int64
	CreditedAmount        int64
	EncryptedSigningKey   string
	RelayTxRef            string
	RelayAccountId        string
	WithdrawalAvailableAt time.Time
	WithdrawnAmount       int64
	ProcessingAttempts    int
	LastError             string
	BatchId               string
	BatchTxRef            string
	ClaimedAt             *time.Time
	// ClaimId identifies the claim holding a Processing session. Only the
	// holder of the current id may renew or settle the lease.
	ClaimId   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining is the amount still held at the relay for this session.
func (s DepositSession) Remaining() int64 {
	return s.DepositAmount - s.WithdrawnAmount
}

// WithdrawalHistoryEntry is written once per successful withdrawal call.
type WithdrawalHistoryEntry struct {
	Id                  string
	SessionId           string
	UserId              string
	Amount              int64
	Fee                 int64
	TxRef               string
	CumulativeWithdrawn int64
	Remaining           int64
	FullyWithdrawn      bool
	PercentageOfTotal   *float64
	CreatedAt           time.Time
}

// TreasuryConfig holds the operator key used for consolidated swaps. An empty
// ScopeId is the global default.
type TreasuryConfig struct {
	Id           string
	ScopeId      string
	EncryptedKey string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
