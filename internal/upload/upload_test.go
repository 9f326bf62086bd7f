package upload

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/bundlr"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStorage struct {
	mu         sync.Mutex
	signer     *solana.Keypair
	perByte    uint64
	balance    uint64
	failUpload int
	calls      int
	funded     []uint64
	uploaded   []*bundlr.DataItem
}

func newFakeStorage(t *testing.T) *fakeStorage {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	return &fakeStorage{signer: kp, perByte: 10}
}

func (f *fakeStorage) CreateItem(data []byte, tags []bundlr.Tag) (*bundlr.DataItem, error) {
	return bundlr.CreateSigned(f.signer, data, tags)
}

func (f *fakeStorage) Price(ctx context.Context, size int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return uint64(size) * f.perByte, nil
}

func (f *fakeStorage) LoadedBalance(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.balance, nil
}

func (f *fakeStorage) Fund(ctx context.Context, lamports uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.funded = append(f.funded, lamports)
	f.balance += lamports
	return "fundtx", nil
}

func (f *fakeStorage) Upload(ctx context.Context, item *bundlr.DataItem) (bundlr.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failUpload > 0 {
		f.failUpload--
		return bundlr.UploadResult{}, &bundlr.StatusError{Op: "upload", StatusCode: 503, Body: "busy"}
	}
	id, err := item.ID()
	if err != nil {
		return bundlr.UploadResult{}, err
	}
	f.uploaded = append(f.uploaded, item)
	return bundlr.UploadResult{ID: id}, nil
}

func (f *fakeStorage) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func writeAssets(t *testing.T, dir, name, metadata string) asset.Pair {
	t.Helper()
	p := asset.PairFor(dir, name)
	require.NoError(t, os.WriteFile(p.ImagePath, []byte("\x89PNG image "+name), 0o644))
	require.NoError(t, os.WriteFile(p.JSONPath, []byte(metadata), 0o644))
	return p
}

const sampleMetadata = `{"name":"Number #0","symbol":"NB","seller_fee_basis_points":800,"properties":{}}`

func setup(t *testing.T) (*Uploader, *fakeStorage, *cache.Cache, string) {
	t.Helper()
	dir := t.TempDir()
	store := newFakeStorage(t)
	c := cache.Open(filepath.Join(dir, ".cache", "data.json"))
	u := New(store, c, Options{
		AppName:  "Numbers Collection",
		Creators: []asset.Creator{{Address: "9JdV5XY6sTESp9NUcx7uVPXG8J1ypPxdr5LNsCTgFtEi", Share: 100}},
		Retry:    fastPolicy(),
	}, zap.NewNop())
	return u, store, c, dir
}

func TestUploadPair(t *testing.T) {
	u, store, c, dir := setup(t)
	p := writeAssets(t, dir, "0", sampleMetadata)

	res, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "0", res.Name)
	assert.Equal(t, "Number #0", res.EditionName)
	require.Len(t, store.uploaded, 3)

	ids := make([]string, 3)
	for i, it := range store.uploaded {
		require.NoError(t, it.Verify())
		ids[i], err = it.ID()
		require.NoError(t, err)
	}
	assert.Equal(t, GatewayURL+ids[0], res.ImageURL)
	assert.Equal(t, GatewayURL+ids[1], res.JSONURL)
	assert.Equal(t, GatewayURL+ids[2], res.ManifestURL)

	assert.Equal(t, []bundlr.Tag{
		{Name: "App-Name", Value: "Numbers Collection"},
		{Name: "Content-Type", Value: asset.JSONContentType},
	}, store.uploaded[1].Tags)

	var meta struct {
		Image      string `json:"image"`
		Properties struct {
			Files    []asset.File    `json:"files"`
			Creators []asset.Creator `json:"creators"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(store.uploaded[1].Data, &meta))
	assert.Equal(t, res.ImageURL, meta.Image)
	assert.Equal(t, []asset.File{{Type: asset.ImageContentType, URI: res.ImageURL}}, meta.Properties.Files)
	assert.Equal(t, "9JdV5XY6sTESp9NUcx7uVPXG8J1ypPxdr5LNsCTgFtEi", meta.Properties.Creators[0].Address)

	var manifest bundlr.Manifest
	require.NoError(t, json.Unmarshal(store.uploaded[2].Data, &manifest))
	got, ok := manifest.Lookup("image.png")
	require.True(t, ok)
	assert.Equal(t, ids[0], got)
	got, ok = manifest.Lookup("metadata.json")
	require.True(t, ok)
	assert.Equal(t, ids[1], got)

	entry, err := c.Get("0")
	require.NoError(t, err)
	assert.Equal(t, res.ImageURL, entry.ImageURL)
	assert.Equal(t, res.ManifestURL, entry.ManifestURL)
}

func TestUploadPairIsIdempotent(t *testing.T) {
	u, store, _, dir := setup(t)
	p := writeAssets(t, dir, "1", sampleMetadata)

	first, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)
	calls := store.networkCalls()

	second, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)
	assert.Equal(t, calls, store.networkCalls())
	assert.Len(t, store.uploaded, 3)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	second.Cached = false
	assert.Equal(t, first, second, "results differ only in Cached")
}

func TestUploadPairOverwrite(t *testing.T) {
	u, store, _, dir := setup(t)
	p := writeAssets(t, dir, "1", sampleMetadata)

	_, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)
	_, err = u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, true)
	require.NoError(t, err)
	assert.Len(t, store.uploaded, 6)
}

func TestUploadPairMissingImage(t *testing.T) {
	u, store, c, dir := setup(t)
	p := writeAssets(t, dir, "2", sampleMetadata)
	require.NoError(t, os.Remove(p.ImagePath))

	_, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	var missing *MissingFileError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, p.ImagePath, missing.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Zero(t, store.networkCalls())

	_, statErr := os.Stat(c.Path())
	assert.True(t, os.IsNotExist(statErr), "cache file should not be created")
}

func TestFundsOnlyShortfall(t *testing.T) {
	u, store, _, dir := setup(t)
	store.balance = 100
	p := writeAssets(t, dir, "3", sampleMetadata)

	_, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)

	size := 0
	for _, it := range store.uploaded {
		size += len(it.Data)
	}
	need := uint64(size) * store.perByte * 3 / 2
	require.Len(t, store.funded, 1)
	assert.Equal(t, need-100, store.funded[0])
}

func TestNoFundingWhenBalanceSuffices(t *testing.T) {
	u, store, _, dir := setup(t)
	store.balance = 1 << 40
	p := writeAssets(t, dir, "4", sampleMetadata)

	_, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)
	assert.Empty(t, store.funded)
}

func TestUploadRetriesTemporaryFailures(t *testing.T) {
	u, store, _, dir := setup(t)
	store.balance = 1 << 40
	store.failUpload = 2
	p := writeAssets(t, dir, "5", sampleMetadata)

	_, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	require.NoError(t, err)
	assert.Len(t, store.uploaded, 3)
}

func TestUploadGivesUp(t *testing.T) {
	u, store, c, dir := setup(t)
	store.balance = 1 << 40
	store.failUpload = 10
	p := writeAssets(t, dir, "6", sampleMetadata)

	_, err := u.UploadPair(context.Background(), p.ImagePath, p.JSONPath, false)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	_, ok, err := c.Lookup("6")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadAll(t *testing.T) {
	u, store, c, dir := setup(t)
	store.balance = 1 << 40
	for _, n := range []string{"10", "2", "0", "1"} {
		writeAssets(t, dir, n, `{"name":"Number #`+n+`","symbol":"NB","properties":{}}`)
	}
	writeAssets(t, dir, asset.CollectionName, `{"name":"Numbers","symbol":"NB"}`)

	results, err := u.UploadAll(context.Background(), dir)
	require.NoError(t, err)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"0", "1", "2", "10"}, names)

	items, err := c.Items()
	require.NoError(t, err)
	assert.Len(t, items, 4)
	_, ok, err := c.Lookup(cache.CollectionName)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadCollection(t *testing.T) {
	u, store, c, dir := setup(t)
	store.balance = 1 << 40
	writeAssets(t, dir, asset.CollectionName, `{"name":"Numbers","symbol":"NB"}`)

	res, err := u.UploadCollection(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, cache.CollectionName, res.Name)
	entry, err := c.Get(cache.CollectionName)
	require.NoError(t, err)
	assert.True(t, entry.Uploaded())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "Numbers Collection", opts.AppName)
	assert.Equal(t, uint64(150), opts.BufferNum)
	assert.Equal(t, uint64(100), opts.BufferDen)
	require.Len(t, opts.Creators, 1)
	assert.Equal(t, 100, opts.Creators[0].Share)
	assert.Equal(t, 5, opts.Retry.MaxAttempts)
}
