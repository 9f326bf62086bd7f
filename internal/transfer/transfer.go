// Package transfer moves minted tokens from the update authority's wallet
// to another wallet, several tokens per transaction.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/dshills/nftdrop/internal/verify"
	"go.uber.org/zap"
)

// DefaultInstructionsPerTx is the number of tokens moved per transaction.
const DefaultInstructionsPerTx = 5

// Chain is the subset of the RPC client transfers use.
type Chain interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solana.AccountInfo, error)
	SendAndConfirm(ctx context.Context, instructions []solana.Instruction, signers ...*solana.Keypair) (solana.Signature, error)
}

// Settings is what a Transferrer needs from the configuration.
type Settings struct {
	// Sender owns the tokens and pays fees and rent.
	Sender            *solana.Keypair
	InstructionsPerTx int
	Retry             retry.Policy
}

// SettingsFromConfig extracts transfer settings from a validated config.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	sender, err := cfg.UpdateKeypair()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Sender:            sender,
		InstructionsPerTx: cfg.Transfer.InstructionsPerTx,
		Retry:             cfg.RetryPolicy(),
	}, nil
}

// BatchReport describes one batch.
type BatchReport struct {
	Items       int
	Transferred []string
	Signature   solana.Signature
}

// Report summarizes a transfer run.
type Report struct {
	Sender   solana.PublicKey
	Receiver solana.PublicKey
	Batches  []BatchReport
	// Skipped lists items the sender holds no token account for.
	Skipped []string
}

// Transferred counts the tokens moved.
func (r Report) Transferred() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b.Transferred)
	}
	return n
}

// Transferrer moves tokens.
type Transferrer struct {
	chain Chain
	cache *cache.Cache
	s     Settings
	log   *zap.Logger
}

// New returns a Transferrer.
func New(chain Chain, c *cache.Cache, s Settings, log *zap.Logger) *Transferrer {
	if s.InstructionsPerTx <= 0 {
		s.InstructionsPerTx = DefaultInstructionsPerTx
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transferrer{chain: chain, cache: c, s: s, log: log}
}

type item struct {
	name string
	mint solana.PublicKey
}

// Transfer sends the first amount items of the cache to receiver. Items
// the sender no longer holds are skipped, so an interrupted transfer can
// be rerun.
func (t *Transferrer) Transfer(ctx context.Context, amount int, receiver solana.PublicKey) (Report, error) {
	if t.chain == nil {
		return Report{}, &config.ConfigError{Problems: []string{"rpc endpoint is required to transfer (set RPC_URL)"}}
	}
	if amount <= 0 {
		return Report{}, fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if receiver.IsZero() {
		return Report{}, fmt.Errorf("transfer receiver is required")
	}
	sender := t.s.Sender.PublicKey()
	report := Report{Sender: sender, Receiver: receiver}
	t.log.Info("transferring", zap.String("sender", sender.String()), zap.String("receiver", receiver.String()), zap.Int("amount", amount))

	entries, err := t.cache.Items()
	if err != nil {
		return report, err
	}
	entries = entries[:min(amount, len(entries))]
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if !e.Minted() {
			return report, &cache.ConsistencyError{Path: t.cache.Path(), Name: e.Name, Field: cache.FieldMintAddress}
		}
		mint, err := solana.PublicKeyFromBase58(e.MintAddress)
		if err != nil {
			return report, fmt.Errorf("cache entry %q: %w", e.Name, err)
		}
		items = append(items, item{name: e.Name, mint: mint})
	}

	batches := verify.Partition(items, t.s.InstructionsPerTx)
	for i, batch := range batches {
		br, skipped, err := t.sendBatch(ctx, receiver, batch)
		report.Skipped = append(report.Skipped, skipped...)
		if err != nil {
			return report, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		report.Batches = append(report.Batches, br)
		if len(br.Transferred) > 0 {
			t.log.Info("batch complete", zap.Int("batch", i+1), zap.Int("of", len(batches)), zap.String("tx", br.Signature.String()))
		}
	}
	return report, nil
}

func (t *Transferrer) sendBatch(ctx context.Context, receiver solana.PublicKey, batch []item) (BatchReport, []string, error) {
	br := BatchReport{Items: len(batch)}
	var skipped []string
	err := retry.Do(ctx, t.s.Retry, t.log, "transfer batch", func(ctx context.Context) error {
		ixs, moved, skip, err := t.plan(ctx, receiver, batch)
		if err != nil {
			return err
		}
		skipped = skip
		if len(ixs) == 0 {
			return nil
		}
		sig, err := t.chain.SendAndConfirm(ctx, ixs, t.s.Sender)
		if err != nil {
			if solana.IsPermanent(err) {
				return retry.Permanent(err)
			}
			return err
		}
		br.Transferred = moved
		br.Signature = sig
		return nil
	})
	return br, skipped, err
}

func (t *Transferrer) exists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := t.chain.GetAccountInfo(ctx, account)
	if errors.Is(err, solana.ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

// plan builds, per item the sender still holds: the receiver's token
// account if missing, the transfer, and closing the emptied sender account.
func (t *Transferrer) plan(ctx context.Context, receiver solana.PublicKey, batch []item) ([]solana.Instruction, []string, []string, error) {
	sender := t.s.Sender.PublicKey()
	var ixs []solana.Instruction
	var moved, skipped []string
	for _, it := range batch {
		source, err := solana.FindAssociatedTokenAddress(sender, it.mint)
		if err != nil {
			return nil, nil, nil, err
		}
		held, err := t.exists(ctx, source)
		if err != nil {
			return nil, nil, nil, err
		}
		if !held {
			t.log.Info("token account empty, moving to next mint", zap.String("name", it.name))
			skipped = append(skipped, it.name)
			continue
		}
		createATA, dest, err := solana.CreateAssociatedTokenAccount(sender, receiver, it.mint)
		if err != nil {
			return nil, nil, nil, err
		}
		ok, err := t.exists(ctx, dest)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			ixs = append(ixs, createATA)
		}
		ixs = append(ixs,
			solana.TransferChecked(source, it.mint, dest, sender, 1, 0),
			solana.CloseAccount(source, sender, sender),
		)
		moved = append(moved, it.name)
	}
	return ixs, moved, skipped, nil
}
