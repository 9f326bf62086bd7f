package bundlr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/dshills/nftdrop/internal/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var depositAddress = solana.PublicKey{42}

// fakeNode is an in-memory Bundlr node.
type fakeNode struct {
	mu        sync.Mutex
	balance   uint64
	perByte   uint64
	uploads   map[string][]byte
	funded    []string
	withdraws []WithdrawalRequest
}

func newFakeNode(t *testing.T) (*fakeNode, *Client) {
	t.Helper()
	n := &fakeNode{perByte: 10, uploads: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "0.2.0",
			"addresses": map[string]string{"solana": depositAddress.String()},
		})
	})
	mux.HandleFunc("GET /price/solana/{size}", func(w http.ResponseWriter, r *http.Request) {
		size, _ := strconv.ParseUint(r.PathValue("size"), 10, 64)
		_, _ = io.WriteString(w, strconv.FormatUint(size*n.perByte, 10))
	})
	mux.HandleFunc("GET /account/balance/solana", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"balance": strconv.FormatUint(n.balance, 10)})
	})
	mux.HandleFunc("POST /account/balance/solana", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TxID string `json:"tx_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		n.mu.Lock()
		n.funded = append(n.funded, req.TxID)
		n.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /tx/solana", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		item, err := ParseDataItem(raw)
		if err != nil || item.Verify() != nil {
			http.Error(w, "invalid item", http.StatusBadRequest)
			return
		}
		id, _ := item.ID()
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.uploads[id]; ok {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, "Transaction already received")
			return
		}
		cost := uint64(len(raw)) * n.perByte
		if cost > n.balance {
			http.Error(w, "Not enough funds to send data", http.StatusPaymentRequired)
			return
		}
		n.balance -= cost
		n.uploads[id] = item.Data
		_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "timestamp": 1})
	})
	mux.HandleFunc("GET /account/withdrawals/solana", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "7")
	})
	mux.HandleFunc("POST /account/withdraw/solana", func(w http.ResponseWriter, r *http.Request) {
		var req WithdrawalRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		n.mu.Lock()
		n.withdraws = append(n.withdraws, req)
		n.mu.Unlock()
		_, _ = io.WriteString(w, `{"tx_id":"abc"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return n, NewClient(srv.URL + "/")
}

type fakeFunder struct {
	node  *fakeNode
	calls int
}

func (f *fakeFunder) TransferLamports(_ context.Context, _ *solana.Keypair, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	f.calls++
	if to != depositAddress {
		return solana.Signature{}, errors.New("wrong deposit address")
	}
	f.node.mu.Lock()
	f.node.balance += lamports
	f.node.mu.Unlock()
	return solana.Signature{byte(f.calls)}, nil
}

func TestClientPriceAndBalance(t *testing.T) {
	node, c := newFakeNode(t)
	node.balance = 99

	price, err := c.Price(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), price)

	bal, err := c.Balance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), bal)

	addr, err := c.DepositAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, depositAddress.String(), addr)
}

func TestAccountFundAndUpload(t *testing.T) {
	node, c := newFakeNode(t)
	funder := &fakeFunder{node: node}
	acct := NewAccount(c, funder, testSigner(t), zap.NewNop())
	ctx := context.Background()

	item, err := acct.CreateItem([]byte("image"), ContentTags("NB", "image/png"))
	require.NoError(t, err)

	_, err = acct.Upload(ctx, item)
	assert.ErrorIs(t, err, ErrNotEnoughFunds)
	assert.True(t, IsPermanent(err))

	tx, err := acct.Fund(ctx, uint64(item.Size())*node.perByte)
	require.NoError(t, err)
	assert.Equal(t, []string{tx}, node.funded)

	res, err := acct.Upload(ctx, item)
	require.NoError(t, err)
	id, _ := item.ID()
	assert.Equal(t, id, res.ID)
	assert.False(t, res.AlreadyReceived)

	res, err = acct.Upload(ctx, item)
	require.NoError(t, err)
	assert.True(t, res.AlreadyReceived)
	assert.Equal(t, id, res.ID)

	bal, err := acct.LoadedBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bal)
}

func TestAccountFundRequiresFunder(t *testing.T) {
	_, c := newFakeNode(t)
	acct := NewAccount(c, nil, testSigner(t), nil)
	_, err := acct.Fund(context.Background(), 10)
	assert.Error(t, err)
}

func TestAccountWithdraw(t *testing.T) {
	node, c := newFakeNode(t)
	signer := testSigner(t)
	acct := NewAccount(c, nil, signer, zap.NewNop())

	reply, err := acct.Withdraw(context.Background(), 5000)
	require.NoError(t, err)
	assert.Contains(t, reply, "abc")

	require.Len(t, node.withdraws, 1)
	req := node.withdraws[0]
	assert.Equal(t, "solana", req.Currency)
	assert.Equal(t, "5000", req.Amount)
	assert.Equal(t, uint64(7), req.Nonce)
	pub := signer.PublicKey()
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(pub.Bytes()), req.PublicKey)

	_, err = acct.Withdraw(context.Background(), 0)
	assert.Error(t, err)
}

func TestStatusErrorClassification(t *testing.T) {
	assert.False(t, IsPermanent(&StatusError{StatusCode: http.StatusServiceUnavailable}))
	assert.False(t, IsPermanent(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, IsPermanent(&StatusError{StatusCode: http.StatusBadRequest}))
	assert.False(t, IsPermanent(errors.New("connection reset")))
}
