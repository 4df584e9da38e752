package models

import (
	"fmt"
	"time"
)

// AlertKind enumerates the events an operator must look at.
type AlertKind int

const (
	AlertKindUnexpectedPartialWithdrawal AlertKind = iota + 1
	AlertKindRetriesExhausted
	AlertKindBatchSwapFailed
	AlertKindDepositCreditFailed
	AlertKindWithdrawalNotRecorded
	AlertKindBatchSwapUnconfirmed
)

func (k AlertKind) String() string {
	switch k {
	case AlertKindUnexpectedPartialWithdrawal:
		return "unexpected_partial_withdrawal"
	case AlertKindRetriesExhausted:
		return "withdrawal_retries_exhausted"
	case AlertKindBatchSwapFailed:
		return "batch_swap_failed"
	case AlertKindDepositCreditFailed:
		return "deposit_credit_failed"
	case AlertKindWithdrawalNotRecorded:
		return "withdrawal_not_recorded"
	case AlertKindBatchSwapUnconfirmed:
		return "batch_swap_unconfirmed"
	default:
		return fmt.Sprintf("alert_kind(%d)", int(k))
	}
}

// Alert is the structured payload delivered to the admin notification sink.
type Alert struct {
	Kind      AlertKind         `json:"-"`
	KindName  string            `json:"kind"`
	SessionId string            `json:"session_id,omitempty"`
	BatchId   string            `json:"batch_id,omitempty"`
	UserId    string            `json:"user_id,omitempty"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
