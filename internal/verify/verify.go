// Package verify marks minted items as verified members of the collection.
//
// Verification state lives only on chain. Every run fetches each item's
// metadata account again and builds instructions for the items that still
// need them, so a rerun after success sends nothing.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/metaplex"
	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of items verified per transaction.
const DefaultBatchSize = config.MaxVerifyBatchSize

// ErrNoCollection means the collection token has not been minted.
var ErrNoCollection = errors.New("collection has no mint address; run create-collection first")

// StateError reports that verification cannot start from the current
// cache state.
type StateError struct {
	Err error
}

func (e *StateError) Error() string { return "verify: " + e.Err.Error() }

func (e *StateError) Unwrap() error { return e.Err }

// Chain is the subset of the RPC client the verifier uses.
type Chain interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solana.AccountInfo, error)
	SendAndConfirm(ctx context.Context, instructions []solana.Instruction, signers ...*solana.Keypair) (solana.Signature, error)
}

// Settings is what a Verifier needs from the configuration.
type Settings struct {
	// UpdateAuthority pays transaction fees.
	UpdateAuthority     *solana.Keypair
	CollectionAuthority *solana.Keypair
	Retry               retry.Policy
}

// SettingsFromConfig extracts verifier settings from a validated config.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	update, err := cfg.UpdateKeypair()
	if err != nil {
		return Settings{}, err
	}
	coll, err := cfg.CollectionKeypair()
	if err != nil {
		return Settings{}, err
	}
	return Settings{UpdateAuthority: update, CollectionAuthority: coll, Retry: cfg.RetryPolicy()}, nil
}

// Action is what an item needs.
type Action int

const (
	// Skip: already a verified member of the collection.
	Skip Action = iota
	// Verify: references the collection but unverified.
	Verify
	// SetAndVerify: has no collection reference yet.
	SetAndVerify
	// Foreign: verified as a member of some other collection.
	Foreign
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Verify:
		return "verify"
	case SetAndVerify:
		return "set-and-verify"
	case Foreign:
		return "foreign"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decide returns the action for an item with metadata md.
func Decide(md *metaplex.Metadata, collection solana.PublicKey) Action {
	ref, ok := md.CollectionRef()
	switch {
	case !ok:
		return SetAndVerify
	case ref.Key != collection && ref.Verified:
		return Foreign
	case ref.Key != collection:
		return SetAndVerify
	case ref.Verified:
		return Skip
	default:
		return Verify
	}
}

// Partition splits items into consecutive batches of at most size.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// Item is a minted cache entry.
type Item struct {
	Name string
	Mint solana.PublicKey
}

// BatchReport describes one batch.
type BatchReport struct {
	Items        int
	Instructions int
	Signature    solana.Signature
}

// Report summarizes a verification run.
type Report struct {
	Collection solana.PublicKey
	Batches    []BatchReport
	// Unminted lists cache entries skipped for lack of a mint address.
	Unminted []string
	// Foreign lists items verified in a different collection.
	Foreign []string
}

// Instructions is the number of instructions sent across all batches.
func (r Report) Instructions() int {
	n := 0
	for _, b := range r.Batches {
		n += b.Instructions
	}
	return n
}

// Transactions is the number of transactions sent.
func (r Report) Transactions() int {
	n := 0
	for _, b := range r.Batches {
		if b.Instructions > 0 {
			n++
		}
	}
	return n
}

// Verifier verifies collection membership.
type Verifier struct {
	chain Chain
	cache *cache.Cache
	s     Settings
	log   *zap.Logger
}

// New returns a Verifier.
func New(chain Chain, c *cache.Cache, s Settings, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{chain: chain, cache: c, s: s, log: log}
}

type collectionAccounts struct {
	mint     solana.PublicKey
	metadata solana.PublicKey
	edition  solana.PublicKey
}

// VerifyCollection verifies every minted item in cache order, batchSize
// items per transaction. Metadata accounts of a batch are fetched
// concurrently; batches run one after another. Batches with nothing to do
// send no transaction.
func (v *Verifier) VerifyCollection(ctx context.Context, batchSize int) (Report, error) {
	if v.chain == nil {
		return Report{}, &config.ConfigError{Problems: []string{"rpc endpoint is required to verify (set RPC_URL)"}}
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > config.MaxVerifyBatchSize {
		return Report{}, &config.ConfigError{Problems: []string{
			fmt.Sprintf("batch size %d exceeds the %d items that fit in one transaction", batchSize, config.MaxVerifyBatchSize),
		}}
	}
	coll, err := v.collection()
	if err != nil {
		return Report{}, err
	}
	report := Report{Collection: coll.mint}

	entries, err := v.cache.Items()
	if err != nil {
		return report, err
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if !e.Minted() {
			v.log.Warn("skipping unminted item", zap.String("name", e.Name))
			report.Unminted = append(report.Unminted, e.Name)
			continue
		}
		mint, err := solana.PublicKeyFromBase58(e.MintAddress)
		if err != nil {
			return report, fmt.Errorf("cache entry %q: %w", e.Name, err)
		}
		items = append(items, Item{Name: e.Name, Mint: mint})
	}

	batches := Partition(items, batchSize)
	for i, batch := range batches {
		br, foreign, err := v.verifyBatch(ctx, coll, batch)
		report.Foreign = append(report.Foreign, foreign...)
		if err != nil {
			return report, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		report.Batches = append(report.Batches, br)
		if br.Instructions == 0 {
			v.log.Info("batch already verified", zap.Int("batch", i+1), zap.Int("of", len(batches)))
			continue
		}
		v.log.Info("batch verified",
			zap.Int("batch", i+1),
			zap.Int("of", len(batches)),
			zap.Int("instructions", br.Instructions),
			zap.String("tx", br.Signature.String()),
		)
	}
	return report, nil
}

func (v *Verifier) collection() (collectionAccounts, error) {
	e, ok, err := v.cache.Lookup(cache.CollectionName)
	if err != nil {
		return collectionAccounts{}, err
	}
	if !ok || !e.Minted() {
		return collectionAccounts{}, &StateError{Err: ErrNoCollection}
	}
	mint, err := solana.PublicKeyFromBase58(e.MintAddress)
	if err != nil {
		return collectionAccounts{}, &StateError{Err: fmt.Errorf("collection mint address: %w", err)}
	}
	metadata, err := metaplex.MetadataAddress(mint)
	if err != nil {
		return collectionAccounts{}, err
	}
	edition, err := metaplex.MasterEditionAddress(mint)
	if err != nil {
		return collectionAccounts{}, err
	}
	return collectionAccounts{mint: mint, metadata: metadata, edition: edition}, nil
}

// verifyBatch fetches, plans and sends one batch, retrying the whole
// cycle. A retry after a transaction landed finds nothing left to do and
// reports the submission that landed.
func (v *Verifier) verifyBatch(ctx context.Context, coll collectionAccounts, batch []Item) (BatchReport, []string, error) {
	br := BatchReport{Items: len(batch)}
	var foreign []string
	var submitted BatchReport
	err := retry.Do(ctx, v.s.Retry, v.log, "verify batch", func(ctx context.Context) error {
		ixs, f, err := v.plan(ctx, coll, batch)
		if err != nil {
			return err
		}
		foreign = f
		if len(ixs) == 0 {
			br.Instructions = submitted.Instructions
			br.Signature = submitted.Signature
			return nil
		}
		br.Instructions = len(ixs)
		sig, err := v.chain.SendAndConfirm(ctx, ixs, v.s.UpdateAuthority, v.s.CollectionAuthority)
		submitted.Instructions = len(ixs)
		if !sig.IsZero() {
			submitted.Signature = sig
		}
		if err != nil {
			if solana.IsPermanent(err) {
				return retry.Permanent(err)
			}
			return err
		}
		br.Signature = sig
		return nil
	})
	return br, foreign, err
}

// plan fetches the metadata of every item in batch concurrently and
// returns the instructions the batch needs, in batch order.
func (v *Verifier) plan(ctx context.Context, coll collectionAccounts, batch []Item) ([]solana.Instruction, []string, error) {
	planned := make([]*solana.Instruction, len(batch))
	actions := make([]Action, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(batch))
	for i, it := range batch {
		g.Go(func() error {
			metadata, err := metaplex.MetadataAddress(it.Mint)
			if err != nil {
				return err
			}
			info, err := v.chain.GetAccountInfo(gctx, metadata)
			if err != nil {
				err = fmt.Errorf("metadata of %s (%s): %w", it.Name, it.Mint, err)
				if solana.IsPermanent(err) || errors.Is(err, solana.ErrAccountNotFound) {
					return retry.Permanent(err)
				}
				return err
			}
			md, err := metaplex.DecodeMetadata(info.Data)
			if err != nil {
				return retry.Permanent(fmt.Errorf("metadata of %s: %w", it.Name, err))
			}
			actions[i] = Decide(md, coll.mint)
			accts := metaplex.VerifyCollectionAccounts{
				Metadata:                metadata,
				CollectionAuthority:     v.s.CollectionAuthority.PublicKey(),
				Payer:                   v.s.UpdateAuthority.PublicKey(),
				CollectionMint:          coll.mint,
				Collection:              coll.metadata,
				CollectionMasterEdition: coll.edition,
			}
			switch actions[i] {
			case Verify:
				ix := metaplex.VerifySizedCollectionItem(accts)
				planned[i] = &ix
			case SetAndVerify:
				ix := metaplex.SetAndVerifySizedCollectionItem(accts, md.UpdateAuthority)
				planned[i] = &ix
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var ixs []solana.Instruction
	var foreign []string
	for i, ix := range planned {
		if actions[i] == Foreign {
			v.log.Warn("item is verified in another collection", zap.String("name", batch[i].Name))
			foreign = append(foreign, batch[i].Name)
		}
		if ix != nil {
			ixs = append(ixs, *ix)
		}
	}
	return ixs, foreign, nil
}
