package relay

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"privacy-relay-settlement/internal/models"
	"privacy-relay-settlement/internal/security"
	"privacy-relay-settlement/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerAccount   = "X-Relay-Account"
	headerSignature = "X-Relay-Signature"
	maxResponseSize = 1 << 20
)

type signedEnvelope struct {
	RequestId string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

type depositPayload struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type withdrawPayload struct {
	Amount         int64  `json:"amount"`
	TargetCurrency string `json:"target_currency,omitempty"`
	Destination    string `json:"destination,omitempty"`
}

type swapPayload struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	TargetCurrency string `json:"target_currency"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPClient talks to the relay's JSON API. Each request body is signed with
// the session's ed25519 key; the public key identifies the relay account.
type HTTPClient struct {
	baseURL    string
	httpClient http.Client
	timeout    time.Duration
	now        func() time.Time
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg models.RelayConfig, httpClient http.Client) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (c *HTTPClient) Deposit(ctx context.Context, key *security.SecretBuffer, req DepositRequest) (*models.DepositReceipt, error) {
	var receipt models.DepositReceipt
	err := c.call(ctx, "/v1/deposit", key, depositPayload{Amount: req.Amount, Currency: req.Currency}, &receipt)
	if err != nil {
		return nil, err
	}
	if receipt.TxRef == "" {
		return nil, fmt.Errorf("%w: relay deposit response missing tx_ref", store.ErrInternal)
	}
	return &receipt, nil
}

func (c *HTTPClient) Withdraw(ctx context.Context, key *security.SecretBuffer, req WithdrawRequest) (*models.WithdrawalReceipt, error) {
	var receipt models.WithdrawalReceipt
	payload := withdrawPayload{Amount: req.Amount, TargetCurrency: req.TargetCurrency, Destination: req.Destination}
	if err := c.call(ctx, "/v1/withdraw", key, payload, &receipt); err != nil {
		return nil, err
	}
	if receipt.TxRef == "" || receipt.Amount <= 0 {
		return nil, fmt.Errorf("%w: relay withdraw response missing tx_ref or amount", store.ErrInternal)
	}
	return &receipt, nil
}

func (c *HTTPClient) BatchSwap(ctx context.Context, key *security.SecretBuffer, req SwapRequest) (*models.SwapReceipt, error) {
	var receipt models.SwapReceipt
	payload := swapPayload{Amount: req.Amount, Currency: req.Currency, TargetCurrency: req.TargetCurrency}
	if err := c.call(ctx, "/v1/swap", key, payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *HTTPClient) call(ctx context.Context, path string, key *security.SecretBuffer, payload, out any) error {
	body, err := json.Marshal(signedEnvelope{
		RequestId: uuid.New().String(),
		Timestamp: c.now().Unix(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to encode relay request: %v", store.ErrInternal, err)
	}

	account, signature, err := sign(key, body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create relay request: %v", store.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAccount, account)
	req.Header.Set(headerSignature, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: relay %s: %v", store.ErrServiceUnavailable, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close relay response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: relay %s: failed to read response: %v", store.ErrServiceUnavailable, path, err)
	}

	if resp.StatusCode >= 300 {
		return statusError(path, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: relay %s: failed to decode response: %v", store.ErrInternal, path, err)
	}
	return nil
}

func statusError(path string, status int, body []byte) error {
	var parsed errorResponse
	msg := http.StatusText(status)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		msg = parsed.Error
	}

	kind := store.ErrInternal
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		kind = store.ErrServiceUnavailable
	case status >= 400:
		kind = store.ErrValidation
	}
	return fmt.Errorf("%w: relay %s returned %d: %s", kind, path, status, msg)
}

// sign derives the account key from the buffer and signs body. Derived key
// material is zeroed before returning.
func sign(key *security.SecretBuffer, body []byte) (account, signature string, err error) {
	if key == nil {
		return "", "", ErrInvalidKey
	}

	var priv ed25519.PrivateKey
	switch key.Len() {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(key.Bytes())
		defer wipe(priv)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(key.Bytes())
	default:
		return "", "", ErrInvalidKey
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", "", errors.New("unexpected public key type")
	}
	sig := ed25519.Sign(priv, body)
	return base64.StdEncoding.EncodeToString(pub), base64.StdEncoding.EncodeToString(sig), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
