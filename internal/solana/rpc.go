package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

// Commitment is a cluster confirmation level.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrBlockhashExpired = errors.New("blockhash expired before confirmation")
)

// RPCError is an error object returned by the JSON-RPC endpoint.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TransactionError reports a transaction that landed but failed.
type TransactionError struct {
	Signature Signature
	Err       any
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// HTTPError reports a non-200 response from the RPC endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("rpc http status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether retrying err cannot succeed: malformed
// requests, oversized or unsigned transactions, and simulations that fail
// for lack of funds.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrTransactionTooLarge) || errors.Is(err, ErrMissingSigner) ||
		errors.Is(err, ErrNoInstructions) || errors.Is(err, ErrTooManyAccounts) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == int(json2.E_BAD_PARAMS) || rpcErr.Code == int(json2.E_INVALID_REQ) {
			return true
		}
		msg := strings.ToLower(rpcErr.Message + fmt.Sprint(rpcErr.Data))
		return strings.Contains(msg, "insufficient funds") ||
			strings.Contains(msg, "insufficient lamports") ||
			strings.Contains(msg, "attempt to debit an account but found no record of a prior credit")
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
	}
	return false
}

// Client is a JSON-RPC client for a Solana cluster endpoint.
type Client struct {
	endpoint     string
	client       *http.Client
	commitment   Commitment
	pollInterval time.Duration
}

// NewClient creates a client for endpoint using confirmed commitment.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:     endpoint,
		client:       &http.Client{Timeout: 60 * time.Second},
		commitment:   CommitmentConfirmed,
		pollInterval: 500 * time.Millisecond,
	}
}

// Endpoint returns the RPC URL.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %w", method, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	if err := json2.DecodeClientResponse(resp.Body, result); err != nil {
		var jsonErr *json2.Error
		if errors.As(err, &jsonErr) {
			return fmt.Errorf("%s: %w", method, &RPCError{Code: int(jsonErr.Code), Message: jsonErr.Message, Data: jsonErr.Data})
		}
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

type commitmentConfig struct {
	Commitment Commitment `json:"commitment,omitempty"`
}

// BlockhashResult is a recent blockhash and the last block height at which
// transactions built on it are valid.
type BlockhashResult struct {
	Blockhash            Hash   `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// GetLatestBlockhash fetches a blockhash for a new transaction.
func (c *Client) GetLatestBlockhash(ctx context.Context) (BlockhashResult, error) {
	var out struct {
		Value BlockhashResult `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{commitmentConfig{c.commitment}}, &out); err != nil {
		return BlockhashResult{}, err
	}
	return out.Value, nil
}

// GetBlockHeight returns the current block height.
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.call(ctx, "getBlockHeight", []any{commitmentConfig{c.commitment}}, &out)
	return out, err
}

// GetMinimumBalanceForRentExemption returns the lamports needed to keep an
// account of size bytes alive.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var out uint64
	err := c.call(ctx, "getMinimumBalanceForRentExemption", []any{size}, &out)
	return out, err
}

// GetBalance returns the lamport balance of an account.
func (c *Client) GetBalance(ctx context.Context, account PublicKey) (uint64, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []any{account.String(), commitmentConfig{c.commitment}}, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

// AccountInfo is the decoded state of an account.
type AccountInfo struct {
	Owner      PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

type accountInfoJSON struct {
	Owner      PublicKey `json:"owner"`
	Lamports   uint64    `json:"lamports"`
	Executable bool      `json:"executable"`
	Data       []string  `json:"data"`
}

// GetAccountInfo fetches an account. It returns ErrAccountNotFound when the
// account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, account PublicKey) (*AccountInfo, error) {
	var out struct {
		Value *accountInfoJSON `json:"value"`
	}
	params := []any{account.String(), map[string]any{"encoding": "base64", "commitment": c.commitment}}
	if err := c.call(ctx, "getAccountInfo", params, &out); err != nil {
		return nil, err
	}
	if out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}
	info := &AccountInfo{
		Owner:      out.Value.Owner,
		Lamports:   out.Value.Lamports,
		Executable: out.Value.Executable,
	}
	if len(out.Value.Data) > 0 {
		data, err := base64.StdEncoding.DecodeString(out.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decoding account %s data: %w", account, err)
		}
		info.Data = data
	}
	return info, nil
}

// SendTransaction submits a signed transaction with preflight simulation.
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (Signature, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return Signature{}, err
	}
	opts := map[string]any{
		"encoding":            "base64",
		"skipPreflight":       false,
		"preflightCommitment": c.commitment,
	}
	var sig Signature
	if err := c.call(ctx, "sendTransaction", []any{base64.StdEncoding.EncodeToString(raw), opts}, &sig); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// SignatureStatus is the cluster's view of a submitted transaction.
type SignatureStatus struct {
	Slot               uint64     `json:"slot"`
	Confirmations      *uint64    `json:"confirmations"`
	Err                any        `json:"err"`
	ConfirmationStatus Commitment `json:"confirmationStatus"`
}

// GetSignatureStatus returns the status of sig, or nil if the cluster has
// not seen it.
func (c *Client) GetSignatureStatus(ctx context.Context, sig Signature) (*SignatureStatus, error) {
	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{[]string{sig.String()}, map[string]any{"searchTransactionHistory": false}}
	if err := c.call(ctx, "getSignatureStatuses", params, &out); err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

func reached(status, target Commitment) bool {
	rank := map[Commitment]int{CommitmentProcessed: 0, CommitmentConfirmed: 1, CommitmentFinalized: 2}
	return rank[status] >= rank[target]
}

// ConfirmTransaction polls until sig reaches the client's commitment, the
// transaction fails, or the blockhash expires.
func (c *Client) ConfirmTransaction(ctx context.Context, sig Signature, lastValidBlockHeight uint64) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		status, err := c.GetSignatureStatus(ctx, sig)
		if err != nil {
			return err
		}
		if status != nil {
			if status.Err != nil {
				return &TransactionError{Signature: sig, Err: status.Err}
			}
			if status.ConfirmationStatus != "" && reached(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		} else {
			height, err := c.GetBlockHeight(ctx)
			if err != nil {
				return err
			}
			if height > lastValidBlockHeight {
				return fmt.Errorf("%w: %s", ErrBlockhashExpired, sig)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendAndConfirm builds a transaction from instructions on a fresh
// blockhash, signs it, submits it and waits for confirmation. The first
// signer pays fees. The returned signature is set whenever the transaction
// may have been submitted: when confirmation failed, and when the send
// failed without a JSON-RPC rejection.
func (c *Client) SendAndConfirm(ctx context.Context, instructions []Instruction, signers ...*Keypair) (Signature, error) {
	if len(signers) == 0 {
		return Signature{}, ErrMissingSigner
	}
	bh, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return Signature{}, err
	}
	tx, err := NewTransaction(signers[0].PublicKey(), bh.Blockhash, instructions...)
	if err != nil {
		return Signature{}, err
	}
	if err := tx.Sign(signers...); err != nil {
		return Signature{}, err
	}
	if _, err := tx.Serialize(); err != nil {
		return Signature{}, err
	}
	sig := tx.Signature()
	if _, err := c.SendTransaction(ctx, tx); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return Signature{}, err
		}
		// The request may have reached the cluster before the failure.
		return sig, err
	}
	if err := c.ConfirmTransaction(ctx, sig, bh.LastValidBlockHeight); err != nil {
		return sig, err
	}
	return sig, nil
}

// TransferLamports sends lamports from payer to to and waits for
// confirmation.
func (c *Client) TransferLamports(ctx context.Context, payer *Keypair, to PublicKey, lamports uint64) (Signature, error) {
	return c.SendAndConfirm(ctx, []Instruction{Transfer(payer.PublicKey(), to, lamports)}, payer)
}
