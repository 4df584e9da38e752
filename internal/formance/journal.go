package formance

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"privacy-relay-settlement/internal/conversion"
	"privacy-relay-settlement/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Numscript templates. Users hold credits in @users:$user_id; the settlement
// accounts act as the counterparties and may run negative. User accounts may
// too: the local log has already accepted the entry and the mirror must not
// reject it.

const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  account $source
  string $transaction_id
  string $transaction_type
  string $idempotency_key
  string $reference_type
  string $reference_id
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("idempotency_key", $idempotency_key)
set_tx_meta("reference_type", $reference_type)
set_tx_meta("reference_id", $reference_id)
`

const numscriptDebit = `vars {
  asset $asset
  number $amount
  account $user_id
  account $destination
  string $transaction_id
  string $transaction_type
  string $idempotency_key
  string $reference_type
  string $reference_id
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("idempotency_key", $idempotency_key)
set_tx_meta("reference_type", $reference_type)
set_tx_meta("reference_id", $reference_id)
`

// Counterparty accounts per transaction type.
const (
	accountDeposits    = "settlement:deposits"
	accountSpent       = "settlement:spent"
	accountAdjustments = "settlement:adjustments"
)

// Mirror posts one credit transaction to the journal. The transaction id is
// the Formance reference, so re-mirroring the same entry is a no-op.
func (s *Service) Mirror(ctx context.Context, tx models.CreditTransaction) error {
	postTx, err := buildPostTransaction(s.registry, tx)
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error mirroring credit transaction %s: %w", tx.Id, err)
	}

	zap.L().Debug("Credit transaction mirrored to Formance",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", tx.UserId),
		zap.String("type", tx.Type.String()),
		zap.Int64("amount", tx.Amount))
	return nil
}

// JournalBalance returns the user's mirrored balance in smallest units.
func (s *Service) JournalBalance(ctx context.Context, userId, currency string) (int64, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: userAccount(userId),
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("error reading journal account for %s: %w", userId, err)
	}

	bal := volumeBalance(resp.V2AccountResponse.Data.Volumes, asset(s.registry, currency))
	if bal == nil {
		return 0, nil
	}
	if !bal.IsInt64() {
		return 0, fmt.Errorf("journal balance for %s %s overflows int64: %s", userId, currency, bal)
	}
	return bal.Int64(), nil
}

// buildPostTransaction picks the script by direction: positive amounts move
// into the user's account, negative amounts out of it.
func buildPostTransaction(registry *conversion.Registry, tx models.CreditTransaction) (shared.V2PostTransaction, error) {
	if tx.Id == "" || tx.UserId == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("credit transaction requires id and user")
	}
	if tx.Amount == 0 {
		return shared.V2PostTransaction{}, fmt.Errorf("credit transaction %s has zero amount", tx.Id)
	}

	counterparty := accountDeposits
	switch tx.Type {
	case models.TransactionTypeSpend:
		counterparty = accountSpent
	case models.TransactionTypeAdjustment:
		counterparty = accountAdjustments
	}

	amount := tx.Amount
	script, role := numscriptCredit, "source"
	if amount < 0 {
		amount = -amount
		script, role = numscriptDebit, "destination"
	}

	postTx := shared.V2PostTransaction{
		Reference: v3.Pointer(tx.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":            asset(registry, tx.Currency),
				"amount":           strconv.FormatInt(amount, 10),
				"user_id":          tx.UserId,
				role:               counterparty,
				"transaction_id":   tx.Id,
				"transaction_type": tx.Type.String(),
				"idempotency_key":  tx.IdempotencyKey,
				"reference_type":   tx.ReferenceType,
				"reference_id":     tx.ReferenceId,
			},
		},
	}
	if !tx.CreatedAt.IsZero() {
		ts := tx.CreatedAt.UTC()
		postTx.Timestamp = &ts
	}
	return postTx, nil
}

func userAccount(userId string) string {
	return "users:" + userId
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}
