package bundlr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/dshills/nftdrop/internal/solana"
	"go.uber.org/zap"
)

// Funder moves lamports on the chain the node accepts deposits on.
type Funder interface {
	TransferLamports(ctx context.Context, payer *solana.Keypair, to solana.PublicKey, lamports uint64) (solana.Signature, error)
}

// Account is a Bundlr node account backed by a Solana keypair.
type Account struct {
	node   *Client
	funder Funder
	signer *solana.Keypair
	log    *zap.Logger
}

// NewAccount binds signer to node. funder may be nil when the account is
// only used to read balances or upload.
func NewAccount(node *Client, funder Funder, signer *solana.Keypair, log *zap.Logger) *Account {
	if log == nil {
		log = zap.NewNop()
	}
	return &Account{node: node, funder: funder, signer: signer, log: log}
}

// Address returns the account's base58 address.
func (a *Account) Address() string { return a.signer.PublicKey().String() }

// CreateItem builds and signs a data item so its ID is known before upload.
func (a *Account) CreateItem(data []byte, tags []Tag) (*DataItem, error) {
	return CreateSigned(a.signer, data, tags)
}

// Price returns the lamports needed to store size bytes.
func (a *Account) Price(ctx context.Context, size int) (uint64, error) {
	return a.node.Price(ctx, size)
}

// LoadedBalance returns the lamports available on the node for uploads.
func (a *Account) LoadedBalance(ctx context.Context) (uint64, error) {
	return a.node.Balance(ctx, a.Address())
}

// Fund deposits lamports to the node and registers the deposit.
func (a *Account) Fund(ctx context.Context, lamports uint64) (string, error) {
	if a.funder == nil {
		return "", fmt.Errorf("bundlr fund: no funding client configured")
	}
	if lamports == 0 {
		return "", fmt.Errorf("bundlr fund: amount must be positive")
	}
	addr, err := a.node.DepositAddress(ctx)
	if err != nil {
		return "", err
	}
	to, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return "", fmt.Errorf("bundlr deposit address: %w", err)
	}
	sig, err := a.funder.TransferLamports(ctx, a.signer, to, lamports)
	if err != nil {
		if sig.IsZero() {
			return "", fmt.Errorf("sending deposit: %w", err)
		}
		// the transfer may still land; the node verifies it on submit
		a.log.Warn("deposit confirmation failed, submitting anyway",
			zap.String("tx", sig.String()), zap.Error(err))
	}
	a.log.Info("deposit sent",
		zap.String("tx", sig.String()),
		zap.Uint64("lamports", lamports),
		zap.String("node", a.node.URL()),
	)
	if err := a.node.SubmitFundTransaction(ctx, sig.String()); err != nil {
		return sig.String(), fmt.Errorf("registering deposit %s: %w", sig, err)
	}
	return sig.String(), nil
}

// Upload posts a signed item to the node.
func (a *Account) Upload(ctx context.Context, item *DataItem) (UploadResult, error) {
	res, err := a.node.Upload(ctx, item)
	if err != nil {
		return UploadResult{}, err
	}
	a.log.Debug("uploaded data item",
		zap.String("id", res.ID),
		zap.Int("bytes", item.Size()),
		zap.Bool("alreadyReceived", res.AlreadyReceived),
	)
	return res, nil
}

// Withdraw asks the node to return lamports of loaded balance.
func (a *Account) Withdraw(ctx context.Context, lamports uint64) (string, error) {
	if lamports == 0 {
		return "", fmt.Errorf("bundlr withdraw: amount must be positive")
	}
	nonce, err := a.node.WithdrawalNonce(ctx, a.Address())
	if err != nil {
		return "", err
	}
	pub := a.signer.PublicKey()
	amount := strconv.FormatUint(lamports, 10)
	nonceStr := strconv.FormatUint(nonce, 10)
	msg, err := deepHash([]any{currency, amount, nonceStr, pub.Bytes()})
	if err != nil {
		return "", err
	}
	sig := a.signer.Sign(msg[:])
	return a.node.Withdraw(ctx, WithdrawalRequest{
		PublicKey:     base64.RawURLEncoding.EncodeToString(pub.Bytes()),
		Currency:      currency,
		Amount:        amount,
		Nonce:         nonce,
		Signature:     base64.RawURLEncoding.EncodeToString(sig[:]),
		SignatureType: SignatureTypeEd25519,
	})
}
