// Package relaytest provides an in-process relay.Client for tests.
package relaytest

import (
	"context"
	"fmt"
	"sync"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/relay"
	"privacy-relay-settlement/internal/security"
)

// Call is one recorded relay invocation. Key is a copy of the key bytes seen
// during the call; Buffer is the caller's buffer, kept to check it was wiped.
type Call struct {
	Method   string
	Key      []byte
	Buffer   *security.SecretBuffer
	Deposit  relay.DepositRequest
	Withdraw relay.WithdrawRequest
	Swap     relay.SwapRequest
}

// Fake answers every call successfully unless a hook is set.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	seq   int

	OnDeposit  func(ctx context.Context, req relay.DepositRequest) (*models.DepositReceipt, error)
	OnWithdraw func(ctx context.Context, req relay.WithdrawRequest) (*models.WithdrawalReceipt, error)
	OnSwap     func(ctx context.Context, req relay.SwapRequest) (*models.SwapReceipt, error)
}

var _ relay.Client = (*Fake)(nil)

func (f *Fake) record(c Call, key *security.SecretBuffer) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Key = append([]byte(nil), key.Bytes()...)
	c.Buffer = key
	f.calls = append(f.calls, c)
	f.seq++
	return fmt.Sprintf("%s-%d", c.Method, f.seq)
}

func (f *Fake) Deposit(ctx context.Context, key *security.SecretBuffer, req relay.DepositRequest) (*models.DepositReceipt, error) {
	ref := f.record(Call{Method: "deposit", Deposit: req}, key)
	if f.OnDeposit != nil {
		return f.OnDeposit(ctx, req)
	}
	return &models.DepositReceipt{TxRef: ref, AccountId: "relay-account-" + ref}, nil
}

func (f *Fake) Withdraw(ctx context.Context, key *security.SecretBuffer, req relay.WithdrawRequest) (*models.WithdrawalReceipt, error) {
	ref := f.record(Call{Method: "withdraw", Withdraw: req}, key)
	if f.OnWithdraw != nil {
		return f.OnWithdraw(ctx, req)
	}
	return &models.WithdrawalReceipt{TxRef: ref, Amount: req.Amount}, nil
}

func (f *Fake) BatchSwap(ctx context.Context, key *security.SecretBuffer, req relay.SwapRequest) (*models.SwapReceipt, error) {
	ref := f.record(Call{Method: "swap", Swap: req}, key)
	if f.OnSwap != nil {
		return f.OnSwap(ctx, req)
	}
	return &models.SwapReceipt{TxRef: ref, OutputAmount: req.Amount, OutputCurrency: req.TargetCurrency, Success: true}, nil
}

// Calls returns a snapshot of every call so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the calls for one method.
func (f *Fake) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
