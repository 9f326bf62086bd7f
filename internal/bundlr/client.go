package bundlr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const currency = "solana"

var ErrNotEnoughFunds = errors.New("bundler balance too low for upload")

// StatusError is a non-success response from a node.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bundlr %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsPermanent reports whether retrying err against a node cannot help.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrNotEnoughFunds) || errors.Is(err, ErrUnsigned) || errors.Is(err, ErrInvalidDataItem) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}

// Client is an HTTP client for a Bundlr node.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the node at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// URL returns the node address.
func (c *Client) URL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("creating %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("bundlr %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading %s response: %w", op, err)
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		return nil, resp.StatusCode, fmt.Errorf("bundlr %s: %w", op, ErrNotEnoughFunds)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, resp.StatusCode, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, resp.StatusCode, nil
}

func parseAmount(op string, raw []byte) (uint64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s response %q: %w", op, s, err)
	}
	return n, nil
}

// NodeInfo is the subset of /info the tool reads.
type NodeInfo struct {
	Version   string            `json:"version"`
	Addresses map[string]string `json:"addresses"`
	Gateway   string            `json:"gateway"`
}

// Info fetches the node's deposit addresses.
func (c *Client) Info(ctx context.Context) (NodeInfo, error) {
	body, _, err := c.do(ctx, "info", http.MethodGet, "/info", nil, "")
	if err != nil {
		return NodeInfo{}, err
	}
	var info NodeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return NodeInfo{}, fmt.Errorf("parsing info response: %w", err)
	}
	return info, nil
}

// DepositAddress returns the node's Solana address.
func (c *Client) DepositAddress(ctx context.Context) (string, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return "", err
	}
	addr := info.Addresses[currency]
	if addr == "" {
		return "", fmt.Errorf("bundlr node %s has no %s address", c.baseURL, currency)
	}
	return addr, nil
}

// Price returns the lamports needed to store size bytes.
func (c *Client) Price(ctx context.Context, size int) (uint64, error) {
	body, _, err := c.do(ctx, "price", http.MethodGet, fmt.Sprintf("/price/%s/%d", currency, size), nil, "")
	if err != nil {
		return 0, err
	}
	return parseAmount("price", body)
}

// Balance returns the lamports loaded on the node for address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	q := url.Values{"address": {address}}
	body, _, err := c.do(ctx, "balance", http.MethodGet, "/account/balance/"+currency+"?"+q.Encode(), nil, "")
	if err != nil {
		return 0, err
	}
	var out struct {
		Balance json.Number `json:"balance"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("parsing balance response: %w", err)
	}
	return parseAmount("balance", []byte(out.Balance.String()))
}

// SubmitFundTransaction tells the node about a deposit transfer.
func (c *Client) SubmitFundTransaction(ctx context.Context, txID string) error {
	payload, err := json.Marshal(map[string]string{"tx_id": txID})
	if err != nil {
		return fmt.Errorf("marshaling fund request: %w", err)
	}
	_, _, err = c.do(ctx, "fund", http.MethodPost, "/account/balance/"+currency, bytes.NewReader(payload), "application/json")
	return err
}

// UploadResult is the node's receipt for an upload.
type UploadResult struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp,omitempty"`
	// AlreadyReceived is set when the node had the item before.
	AlreadyReceived bool `json:"-"`
}

// Upload posts a signed data item.
func (c *Client) Upload(ctx context.Context, item *DataItem) (UploadResult, error) {
	raw, err := item.Bytes()
	if err != nil {
		return UploadResult{}, err
	}
	id, err := item.ID()
	if err != nil {
		return UploadResult{}, err
	}
	body, status, err := c.do(ctx, "upload", http.MethodPost, "/tx/"+currency, bytes.NewReader(raw), "application/octet-stream")
	if err != nil {
		return UploadResult{}, err
	}
	res := UploadResult{ID: id, AlreadyReceived: status == http.StatusCreated}
	if len(body) > 0 && body[0] == '{' {
		_ = json.Unmarshal(body, &res)
	}
	if res.ID != id {
		return UploadResult{}, fmt.Errorf("bundlr upload: node returned id %s for item %s", res.ID, id)
	}
	return res, nil
}

// WithdrawalNonce returns the next withdrawal nonce for address.
func (c *Client) WithdrawalNonce(ctx context.Context, address string) (uint64, error) {
	q := url.Values{"address": {address}}
	body, _, err := c.do(ctx, "withdrawals", http.MethodGet, "/account/withdrawals/"+currency+"?"+q.Encode(), nil, "")
	if err != nil {
		return 0, err
	}
	return parseAmount("withdrawals", body)
}

// WithdrawalRequest is a signed request to return loaded funds.
type WithdrawalRequest struct {
	PublicKey     string `json:"publicKey"`
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	Nonce         uint64 `json:"nonce"`
	Signature     string `json:"signature"`
	SignatureType uint16 `json:"sigType"`
}

// Withdraw submits a signed withdrawal and returns the node's reply.
func (c *Client) Withdraw(ctx context.Context, req WithdrawalRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling withdrawal: %w", err)
	}
	body, _, err := c.do(ctx, "withdraw", http.MethodPost, "/account/withdraw/"+currency, bytes.NewReader(payload), "application/json")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
