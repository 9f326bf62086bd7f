package mint

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/metaplex"
	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/dshills/nftdrop/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sent struct {
	ixs     []solana.Instruction
	signers []solana.PublicKey
}

type fakeChain struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*solana.AccountInfo
	sends    []sent

	failSends       int
	landThenTimeout int
	// landThenLose lands the mint but loses the response.
	landThenLose int
	permanent    error
}

func newFakeChain() *fakeChain {
	return &fakeChain{accounts: map[solana.PublicKey]*solana.AccountInfo{}}
}

func (f *fakeChain) GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error) {
	return 1_461_600, nil
}

func (f *fakeChain) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solana.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.accounts[account]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	return info, nil
}

func (f *fakeChain) SendAndConfirm(ctx context.Context, ixs []solana.Instruction, signers ...*solana.Keypair) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{ixs: ixs}
	for _, k := range signers {
		s.signers = append(s.signers, k.PublicKey())
	}
	f.sends = append(f.sends, s)

	if f.permanent != nil {
		return solana.Signature{}, f.permanent
	}
	if f.failSends > 0 {
		f.failSends--
		return solana.Signature{}, &solana.HTTPError{StatusCode: 503, Body: "unavailable"}
	}
	mint := ixs[0].Accounts[1].PublicKey
	f.accounts[mint] = &solana.AccountInfo{Owner: solana.TokenProgramID}
	if f.landThenLose > 0 {
		f.landThenLose--
		return solana.Signature{}, &solana.HTTPError{StatusCode: 504, Body: "gateway timeout"}
	}
	var sig solana.Signature
	sig[0] = byte(len(f.sends))
	if f.landThenTimeout > 0 {
		f.landThenTimeout--
		return sig, solana.ErrBlockhashExpired
	}
	return sig, nil
}

func (f *fakeChain) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func mustKeypair(t *testing.T) *solana.Keypair {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	return kp
}

type fixture struct {
	dir      string
	chain    *fakeChain
	cache    *cache.Cache
	minter   *Minter
	settings Settings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	chain := newFakeChain()
	c := cache.Open(filepath.Join(dir, ".cache", "data.json"))
	s := Settings{
		Authority:             mustKeypair(t),
		ItemDestination:       mustKeypair(t).PublicKey(),
		CollectionDestination: mustKeypair(t).PublicKey(),
		SellerFeeBasisPoints:  800,
		IsMutable:             true,
		Retry:                 retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
	s.Creators = []asset.Creator{{Address: s.Authority.PublicKey().String(), Share: 100}}
	return &fixture{
		dir:      dir,
		chain:    chain,
		cache:    c,
		minter:   New(chain, c, s, zap.NewNop()),
		settings: s,
	}
}

// uploaded writes a metadata file and records it as uploaded.
func (f *fixture) uploaded(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name+".json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"Number `+name+`","symbol":"NB","properties":{}}`), 0o644))
	_, err := f.cache.Merge(name, cache.Entry{
		ImageURL:    "https://arweave.net/img-" + name,
		JSONURL:     "https://arweave.net/json-" + name,
		ManifestURL: "https://arweave.net/man-" + name,
	})
	require.NoError(t, err)
	return path
}

func (f *fixture) mintCollection(t *testing.T) solana.PublicKey {
	t.Helper()
	path := f.uploaded(t, cache.CollectionName)
	mint, err := f.minter.MintItem(context.Background(), path, cache.CollectionName, Options{IsCollection: true})
	require.NoError(t, err)
	return mint
}

func TestMintItemRequiresRPC(t *testing.T) {
	f := newFixture(t)
	m := New(nil, f.cache, f.settings, nil)
	_, err := m.MintItem(context.Background(), "x.json", "0", Options{})
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMintItemMissingEntry(t *testing.T) {
	f := newFixture(t)
	_, err := f.minter.MintItem(context.Background(), "0.json", "0", Options{})
	var ce *cache.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "0", ce.Name)
	assert.Empty(t, ce.Field)
	assert.Zero(t, f.chain.sendCount())
}

func TestMintItemMissingJSONURL(t *testing.T) {
	f := newFixture(t)
	_, err := f.cache.Merge("0", cache.Entry{ImageURL: "https://arweave.net/img"})
	require.NoError(t, err)

	_, err = f.minter.MintItem(context.Background(), "0.json", "0", Options{})
	var ce *cache.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cache.FieldJSONURL, ce.Field)
}

func TestMintItemNeedsCollection(t *testing.T) {
	f := newFixture(t)
	path := f.uploaded(t, "0")

	_, err := f.minter.MintItem(context.Background(), path, "0", Options{})
	var ce *cache.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cache.CollectionName, ce.Name)
	assert.Zero(t, f.chain.sendCount())
}

func TestMintItemIsIdempotent(t *testing.T) {
	f := newFixture(t)
	collection := f.mintCollection(t)
	path := f.uploaded(t, "0")

	first, err := f.minter.MintItem(context.Background(), path, "0", Options{})
	require.NoError(t, err)
	second, err := f.minter.MintItem(context.Background(), path, "0", Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, f.chain.sendCount(), "one transaction for the collection, one for the item")

	entry, err := f.cache.Get("0", cache.FieldMintAddress)
	require.NoError(t, err)
	assert.Equal(t, first.String(), entry.MintAddress)
	assert.NotEmpty(t, entry.TxHash)
	assert.Equal(t, "https://arweave.net/json-0", entry.JSONURL)

	itemTx := f.chain.sends[1]
	assert.Equal(t, []solana.PublicKey{f.settings.Authority.PublicKey(), first}, itemTx.signers)
	assert.True(t, bytes.Contains(itemTx.ixs[4].Data, collection.Bytes()), "metadata references the collection")
}

func TestMintItemOverwrite(t *testing.T) {
	f := newFixture(t)
	f.mintCollection(t)
	path := f.uploaded(t, "0")

	first, err := f.minter.MintItem(context.Background(), path, "0", Options{})
	require.NoError(t, err)
	second, err := f.minter.MintItem(context.Background(), path, "0", Options{Overwrite: true})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entry, err := f.cache.Get("0")
	require.NoError(t, err)
	assert.Equal(t, second.String(), entry.MintAddress)
}

func TestMintRetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.chain.failSends = 2
	f.mintCollection(t)
	assert.Equal(t, 3, f.chain.sendCount())
}

func TestMintDetectsLandedTransaction(t *testing.T) {
	f := newFixture(t)
	f.chain.landThenTimeout = 1
	mint := f.mintCollection(t)
	assert.Equal(t, 1, f.chain.sendCount())

	entry, err := f.cache.Get(cache.CollectionName, cache.FieldMintAddress)
	require.NoError(t, err)
	assert.Equal(t, mint.String(), entry.MintAddress)
	assert.Equal(t, solana.Signature{1}.String(), entry.TxHash)
}

func TestMintLostResponseLeavesTxHashEmpty(t *testing.T) {
	f := newFixture(t)
	f.chain.landThenLose = 1
	mint := f.mintCollection(t)
	assert.Equal(t, 1, f.chain.sendCount())

	entry, err := f.cache.Get(cache.CollectionName)
	require.NoError(t, err)
	assert.Equal(t, mint.String(), entry.MintAddress)
	assert.Empty(t, entry.TxHash)
}

func TestMintReusesKeypairAcrossRetries(t *testing.T) {
	f := newFixture(t)
	f.chain.failSends = 1
	f.mintCollection(t)
	require.Equal(t, 2, f.chain.sendCount())
	assert.Equal(t, f.chain.sends[0].signers[1], f.chain.sends[1].signers[1])
}

func TestMintStopsOnPermanentError(t *testing.T) {
	f := newFixture(t)
	f.chain.permanent = &solana.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Attempt to debit an account but found no record of a prior credit.",
	}
	path := f.uploaded(t, cache.CollectionName)

	_, err := f.minter.MintItem(context.Background(), path, cache.CollectionName, Options{IsCollection: true})
	var rpcErr *solana.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 1, f.chain.sendCount())

	entry, err := f.cache.Get(cache.CollectionName)
	require.NoError(t, err)
	assert.False(t, entry.Minted())
}

func TestInstructions(t *testing.T) {
	authority := mustKeypair(t).PublicKey()
	mint := mustKeypair(t).PublicKey()
	dest := mustKeypair(t).PublicKey()

	ixs, err := Instructions(InstructionParams{
		Authority:   authority,
		Mint:        mint,
		Destination: dest,
		Rent:        42,
		Data:        metaplex.DataV2{Name: "Number 0", Symbol: "NB", URI: "https://arweave.net/x"},
		IsMutable:   true,
	})
	require.NoError(t, err)
	require.Len(t, ixs, 7)

	programs := make([]solana.PublicKey, len(ixs))
	for i, ix := range ixs {
		programs[i] = ix.ProgramID
	}
	assert.Equal(t, []solana.PublicKey{
		solana.SystemProgramID,
		solana.TokenProgramID,
		solana.AssociatedTokenProgramID,
		solana.TokenProgramID,
		metaplex.ProgramID,
		metaplex.ProgramID,
		metaplex.ProgramID,
	}, programs)

	ata, err := solana.FindAssociatedTokenAddress(dest, mint)
	require.NoError(t, err)
	assert.Equal(t, ata, ixs[2].Accounts[1].PublicKey)
	assert.Equal(t, ata, ixs[3].Accounts[1].PublicKey)

	metadata, err := metaplex.MetadataAddress(mint)
	require.NoError(t, err)
	edition, err := metaplex.MasterEditionAddress(mint)
	require.NoError(t, err)
	assert.Equal(t, metadata, ixs[4].Accounts[0].PublicKey)
	assert.Equal(t, edition, ixs[5].Accounts[0].PublicKey)
	assert.Equal(t, metadata, ixs[6].Accounts[0].PublicKey)
}

func TestCreatorVerifiedOnlyForAuthority(t *testing.T) {
	f := newFixture(t)
	other := mustKeypair(t).PublicKey()
	path := filepath.Join(f.dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"C","symbol":"NB","seller_fee_basis_points":500,"properties":{"creators":[`+
		`{"address":"`+f.settings.Authority.PublicKey().String()+`","share":60},`+
		`{"address":"`+other.String()+`","share":40}]}}`), 0o644))
	doc, err := asset.LoadDocument(path)
	require.NoError(t, err)

	data, err := f.minter.metadataData(doc, "https://arweave.net/c", nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), data.SellerFeeBasisPoints)
	require.NotNil(t, data.Creators)
	creators := *data.Creators
	require.Len(t, creators, 2)
	assert.True(t, creators[0].Verified)
	assert.False(t, creators[1].Verified)
	assert.Equal(t, uint8(40), creators[1].Share)
	assert.Nil(t, data.Collection)
}

type fakeUploader struct {
	cache *cache.Cache
	calls int
}

func (u *fakeUploader) UploadPair(ctx context.Context, imagePath, jsonPath string, overwrite bool) (upload.Result, error) {
	u.calls++
	name := asset.NameFromPath(imagePath)
	e, err := u.cache.Merge(name, cache.Entry{
		ImageURL:    "https://arweave.net/img",
		JSONURL:     "https://arweave.net/json",
		ManifestURL: "https://arweave.net/man",
	})
	return upload.Result{Name: name, ImageURL: e.ImageURL, JSONURL: e.JSONURL, ManifestURL: e.ManifestURL}, err
}

func TestCreateCollection(t *testing.T) {
	f := newFixture(t)
	p := asset.CollectionPair(f.dir)
	require.NoError(t, os.WriteFile(p.JSONPath, []byte(`{"name":"Numbers","symbol":"NB"}`), 0o644))
	up := &fakeUploader{cache: f.cache}

	mint, err := f.minter.CreateCollection(context.Background(), up, f.dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)

	entry, err := f.cache.Get(cache.CollectionName, cache.FieldMintAddress)
	require.NoError(t, err)
	assert.Equal(t, mint.String(), entry.MintAddress)
	assert.Equal(t, f.settings.CollectionDestination, ata(t, f.chain.sends[0].ixs[2]))
}

// ata returns the wallet of a create-associated-token-account instruction.
func ata(t *testing.T, ix solana.Instruction) solana.PublicKey {
	t.Helper()
	require.Equal(t, solana.AssociatedTokenProgramID, ix.ProgramID)
	return ix.Accounts[2].PublicKey
}
