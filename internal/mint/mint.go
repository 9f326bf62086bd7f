// Package mint creates one-of-one tokens with Metaplex metadata for the
// uploaded assets and records their mint addresses in the cache.
//
// A mint keypair is generated per call and reused across retries, so a
// transaction that landed after a confirmation timeout is detected by
// looking the mint account up before sending again. A process that exits
// between submission and the cache write does not have that information:
// rerunning it mints a second token for the same asset. The minter logs the
// submitted signature and mint address whenever it gives up after a
// submission so the operator can check the chain before rerunning.
package mint

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/metaplex"
	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/dshills/nftdrop/internal/upload"
	"go.uber.org/zap"
)

// Chain is the subset of the RPC client the minter uses.
type Chain interface {
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solana.AccountInfo, error)
	SendAndConfirm(ctx context.Context, instructions []solana.Instruction, signers ...*solana.Keypair) (solana.Signature, error)
}

// Settings is what a Minter needs from the configuration.
type Settings struct {
	// Authority pays for the mint and is its mint, freeze and update
	// authority.
	Authority             *solana.Keypair
	ItemDestination       solana.PublicKey
	CollectionDestination solana.PublicKey
	// SellerFeeBasisPoints and Creators apply when a metadata file omits them.
	SellerFeeBasisPoints uint16
	Creators             []asset.Creator
	IsMutable            bool
	Retry                retry.Policy
}

// SettingsFromConfig extracts minter settings from a validated config.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	authority, err := cfg.CollectionKeypair()
	if err != nil {
		return Settings{}, err
	}
	items, err := cfg.Destination(false)
	if err != nil {
		return Settings{}, err
	}
	coll, err := cfg.Destination(true)
	if err != nil {
		return Settings{}, err
	}
	creators := make([]asset.Creator, len(cfg.Collection.Creators))
	for i, c := range cfg.Collection.Creators {
		creators[i] = asset.Creator{Address: c.Address, Share: c.Share}
	}
	return Settings{
		Authority:             authority,
		ItemDestination:       items,
		CollectionDestination: coll,
		SellerFeeBasisPoints:  uint16(cfg.Collection.SellerFeeBasisPoints),
		Creators:              creators,
		IsMutable:             cfg.Collection.Mutable(),
		Retry:                 cfg.RetryPolicy(),
	}, nil
}

// Options selects what MintItem mints.
type Options struct {
	IsCollection bool
	Overwrite    bool
}

// Minter mints tokens for cache entries.
type Minter struct {
	chain Chain
	cache *cache.Cache
	s     Settings
	log   *zap.Logger

	newKeypair func() (*solana.Keypair, error)
}

// New returns a Minter. chain may be nil, in which case every mint fails
// with a configuration error.
func New(chain Chain, c *cache.Cache, s Settings, log *zap.Logger) *Minter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Minter{chain: chain, cache: c, s: s, log: log, newKeypair: solana.NewKeypair}
}

// MintItem mints the token for cacheName described by the metadata file at
// metadataPath and records it. An entry that already has a mint address is
// returned unchanged unless opts.Overwrite is set.
func (m *Minter) MintItem(ctx context.Context, metadataPath, cacheName string, opts Options) (solana.PublicKey, error) {
	if m.chain == nil {
		return solana.PublicKey{}, &config.ConfigError{Problems: []string{"rpc endpoint is required to mint (set RPC_URL)"}}
	}
	if m.s.Authority == nil {
		return solana.PublicKey{}, &config.ConfigError{Problems: []string{"collection authority secret is required to mint"}}
	}

	entry, err := m.cache.Get(cacheName)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !opts.Overwrite && entry.Minted() {
		mint, err := solana.PublicKeyFromBase58(entry.MintAddress)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("cache entry %q: %w", cacheName, err)
		}
		m.log.Info("already minted", zap.String("name", cacheName), zap.String("mint", entry.MintAddress))
		return mint, nil
	}
	if entry.JSONURL == "" {
		return solana.PublicKey{}, &cache.ConsistencyError{Path: m.cache.Path(), Name: cacheName, Field: cache.FieldJSONURL}
	}

	var collection *metaplex.Collection
	if !opts.IsCollection {
		ce, err := m.cache.Get(cache.CollectionName, cache.FieldMintAddress)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("minting %s before the collection: %w", cacheName, err)
		}
		key, err := solana.PublicKeyFromBase58(ce.MintAddress)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("collection mint address: %w", err)
		}
		collection = &metaplex.Collection{Key: key}
	}

	doc, err := asset.LoadDocument(metadataPath)
	if err != nil {
		return solana.PublicKey{}, err
	}
	data, err := m.metadataData(doc, entry.JSONURL, collection)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", metadataPath, err)
	}

	mintKey, err := m.newKeypair()
	if err != nil {
		return solana.PublicKey{}, err
	}
	dest := m.s.ItemDestination
	if opts.IsCollection {
		dest = m.s.CollectionDestination
	}

	var rent uint64
	err = retry.Do(ctx, m.s.Retry, m.log, "rent exemption", func(ctx context.Context) error {
		var err error
		rent, err = m.chain.GetMinimumBalanceForRentExemption(ctx, solana.MintSize)
		return classify(err)
	})
	if err != nil {
		return solana.PublicKey{}, err
	}

	ixs, err := Instructions(InstructionParams{
		Authority:    m.s.Authority.PublicKey(),
		Mint:         mintKey.PublicKey(),
		Destination:  dest,
		Rent:         rent,
		Data:         data,
		IsMutable:    m.s.IsMutable,
		IsCollection: opts.IsCollection,
	})
	if err != nil {
		return solana.PublicKey{}, err
	}

	sig, err := m.submit(ctx, cacheName, mintKey, ixs)
	if err != nil {
		return solana.PublicKey{}, err
	}
	m.log.Info("mint done",
		zap.String("name", cacheName),
		zap.String("tx", sig.String()),
		zap.String("mint", mintKey.PublicKey().String()),
	)

	entry = cache.Entry{MintAddress: mintKey.PublicKey().String()}
	if !sig.IsZero() {
		entry.TxHash = sig.String()
	}
	if _, err := m.cache.Merge(cacheName, entry); err != nil {
		m.log.Error("minted but the cache write failed; record the mint by hand before rerunning",
			zap.String("name", cacheName),
			zap.String("mint", mintKey.PublicKey().String()),
			zap.Error(err),
		)
		return mintKey.PublicKey(), fmt.Errorf("recording mint of %s: %w", cacheName, err)
	}
	return mintKey.PublicKey(), nil
}

// submit sends ixs until they are confirmed. After a failed attempt that
// got as far as submission the mint account is checked first: if it exists
// the earlier transaction landed and is not sent again.
func (m *Minter) submit(ctx context.Context, name string, mintKey *solana.Keypair, ixs []solana.Instruction) (solana.Signature, error) {
	var sig solana.Signature
	attempted := false
	err := retry.Do(ctx, m.s.Retry, m.log, "mint "+name, func(ctx context.Context) error {
		if attempted {
			landed, err := m.mintExists(ctx, mintKey.PublicKey())
			if err != nil {
				return err
			}
			if landed {
				m.log.Warn("mint account exists, earlier attempt landed",
					zap.String("name", name),
					zap.String("mint", mintKey.PublicKey().String()),
					zap.String("tx", sig.String()),
				)
				return nil
			}
		}
		attempted = true
		s, err := m.chain.SendAndConfirm(ctx, ixs, m.s.Authority, mintKey)
		if !s.IsZero() {
			sig = s
		}
		return classify(err)
	})
	if err != nil && !sig.IsZero() {
		m.log.Warn("giving up after a submitted transaction; check the mint on chain before rerunning",
			zap.String("name", name),
			zap.String("tx", sig.String()),
			zap.String("mint", mintKey.PublicKey().String()),
		)
	}
	return sig, err
}

func (m *Minter) mintExists(ctx context.Context, mint solana.PublicKey) (bool, error) {
	info, err := m.chain.GetAccountInfo(ctx, mint)
	if errors.Is(err, solana.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Owner == solana.TokenProgramID, nil
}

func classify(err error) error {
	if err != nil && solana.IsPermanent(err) {
		return retry.Permanent(err)
	}
	return err
}

// metadataData builds the on-chain metadata from a metadata document.
// Creators matching the authority are marked verified since it signs.
func (m *Minter) metadataData(doc *asset.Document, uri string, collection *metaplex.Collection) (metaplex.DataV2, error) {
	fee, ok := doc.SellerFeeBasisPoints()
	if !ok || fee == 0 {
		fee = m.s.SellerFeeBasisPoints
	}
	creators, err := doc.CreatorsOr(m.s.Creators)
	if err != nil {
		return metaplex.DataV2{}, err
	}
	authority := m.s.Authority.PublicKey()
	list := make([]metaplex.Creator, 0, len(creators))
	for _, c := range creators {
		addr, err := solana.PublicKeyFromBase58(c.Address)
		if err != nil {
			return metaplex.DataV2{}, fmt.Errorf("creator %q: %w", c.Address, err)
		}
		if c.Share < 0 || c.Share > 100 {
			return metaplex.DataV2{}, fmt.Errorf("%w: creator %s share %d", metaplex.ErrInvalidData, c.Address, c.Share)
		}
		list = append(list, metaplex.Creator{
			Address:  addr,
			Verified: addr == authority,
			Share:    uint8(c.Share),
		})
	}
	data := metaplex.DataV2{
		Name:                 doc.Name(),
		Symbol:               doc.Symbol(),
		URI:                  uri,
		SellerFeeBasisPoints: fee,
		Collection:           collection,
	}
	if len(list) > 0 {
		data.Creators = &list
	}
	return data, data.Validate()
}

// InstructionParams are the inputs of Instructions.
type InstructionParams struct {
	Authority    solana.PublicKey
	Mint         solana.PublicKey
	Destination  solana.PublicKey
	Rent         uint64
	Data         metaplex.DataV2
	IsMutable    bool
	IsCollection bool
}

// Instructions returns the seven instructions that mint a one-of-one
// token: create and initialize the mint, create the destination's token
// account, mint one token into it, create the metadata and master edition
// accounts, and finalize the metadata.
func Instructions(p InstructionParams) ([]solana.Instruction, error) {
	metadata, err := metaplex.MetadataAddress(p.Mint)
	if err != nil {
		return nil, err
	}
	edition, err := metaplex.MasterEditionAddress(p.Mint)
	if err != nil {
		return nil, err
	}
	createATA, ata, err := solana.CreateAssociatedTokenAccount(p.Authority, p.Destination, p.Mint)
	if err != nil {
		return nil, err
	}
	createMetadata, err := metaplex.CreateMetadataAccountV3(metaplex.CreateMetadataAccountV3Accounts{
		Metadata:        metadata,
		Mint:            p.Mint,
		MintAuthority:   p.Authority,
		Payer:           p.Authority,
		UpdateAuthority: p.Authority,
	}, p.Data, p.IsMutable, p.IsCollection)
	if err != nil {
		return nil, err
	}
	var maxSupply uint64
	createEdition, err := metaplex.CreateMasterEditionV3(metaplex.CreateMasterEditionV3Accounts{
		Edition:         edition,
		Mint:            p.Mint,
		UpdateAuthority: p.Authority,
		MintAuthority:   p.Authority,
		Payer:           p.Authority,
		Metadata:        metadata,
	}, &maxSupply)
	if err != nil {
		return nil, err
	}
	data := p.Data
	primarySale := false
	isMutable := p.IsMutable
	authority := p.Authority
	update, err := metaplex.UpdateMetadataAccountV2(metadata, p.Authority, metaplex.UpdateMetadataAccountV2Args{
		Data:                &data,
		NewUpdateAuthority:  &authority,
		PrimarySaleHappened: &primarySale,
		IsMutable:           &isMutable,
	})
	if err != nil {
		return nil, err
	}
	freeze := p.Authority
	return []solana.Instruction{
		solana.CreateAccount(p.Authority, p.Mint, p.Rent, solana.MintSize, solana.TokenProgramID),
		solana.InitializeMint(p.Mint, 0, p.Authority, &freeze),
		createATA,
		solana.MintToChecked(p.Mint, ata, p.Authority, 1, 0),
		createMetadata,
		createEdition,
		update,
	}, nil
}

// Minted is one result of MintAll.
type Minted struct {
	Name string
	Mint solana.PublicKey
}

// MintAll mints every item pair in dir in name order, skipping the
// collection pair. It stops at the first failure.
func (m *Minter) MintAll(ctx context.Context, dir string) ([]Minted, error) {
	pairs, err := asset.ScanDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Minted, 0, len(pairs))
	for _, p := range pairs {
		mint, err := m.MintItem(ctx, p.JSONPath, p.Name, Options{})
		if err != nil {
			return out, fmt.Errorf("minting %s: %w", p.Name, err)
		}
		out = append(out, Minted{Name: p.Name, Mint: mint})
	}
	return out, nil
}

// PairUploader uploads one asset pair.
type PairUploader interface {
	UploadPair(ctx context.Context, imagePath, jsonPath string, overwrite bool) (upload.Result, error)
}

// CreateCollection uploads the collection pair in dir and mints the
// collection token.
func (m *Minter) CreateCollection(ctx context.Context, up PairUploader, dir string, overwrite bool) (solana.PublicKey, error) {
	p := asset.CollectionPair(dir)
	m.log.Info("uploading collection pair", zap.String("dir", dir))
	if _, err := up.UploadPair(ctx, p.ImagePath, p.JSONPath, overwrite); err != nil {
		return solana.PublicKey{}, err
	}
	return m.MintItem(ctx, p.JSONPath, cache.CollectionName, Options{IsCollection: true, Overwrite: overwrite})
}
