// Package upload stores asset pairs on Arweave through a Bundlr node and
// records the resulting URLs in the cache.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dshills/nftdrop/internal/asset"
	"github.com/dshills/nftdrop/internal/bundlr"
	"github.com/dshills/nftdrop/internal/cache"
	"github.com/dshills/nftdrop/internal/config"
	"github.com/dshills/nftdrop/internal/retry"
	"github.com/dshills/nftdrop/internal/solana"
	"go.uber.org/zap"
)

// GatewayURL prefixes data item IDs to form public URLs.
const GatewayURL = "https://arweave.net/"

// MissingFileError reports an asset file that does not exist.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("asset file not found: %s", e.Path)
}

func (e *MissingFileError) Unwrap() error { return fs.ErrNotExist }

// Storage is the bundler account the uploader pays from and posts to.
type Storage interface {
	CreateItem(data []byte, tags []bundlr.Tag) (*bundlr.DataItem, error)
	Price(ctx context.Context, size int) (uint64, error)
	LoadedBalance(ctx context.Context) (uint64, error)
	Fund(ctx context.Context, lamports uint64) (string, error)
	Upload(ctx context.Context, item *bundlr.DataItem) (bundlr.UploadResult, error)
}

// Options configures an Uploader.
type Options struct {
	// AppName is sent as the App-Name tag on every item.
	AppName string
	// Creators fill properties.creators when a metadata file has none.
	Creators []asset.Creator
	// BufferNum/BufferDen scale the quoted price before funding.
	BufferNum, BufferDen uint64
	Retry                retry.Policy
}

// OptionsFromConfig builds uploader options from a validated config.
func OptionsFromConfig(cfg config.Config) Options {
	creators := make([]asset.Creator, len(cfg.Collection.Creators))
	for i, c := range cfg.Collection.Creators {
		creators[i] = asset.Creator{Address: c.Address, Share: c.Share}
	}
	num, den := cfg.PriceBuffer()
	return Options{
		AppName:   cfg.Collection.Name,
		Creators:  creators,
		BufferNum: num,
		BufferDen: den,
		Retry:     cfg.RetryPolicy(),
	}
}

// Result is what one pair upload produced.
type Result struct {
	Name        string
	ImageURL    string
	JSONURL     string
	ManifestURL string
	EditionName string
	// Cached is set when the entry was already complete and nothing was
	// sent. It describes the call, not the upload: a rerun over a complete
	// entry returns the same result apart from Cached.
	Cached bool
}

func resultFrom(name string, e cache.Entry, cached bool) Result {
	return Result{
		Name:        name,
		ImageURL:    e.ImageURL,
		JSONURL:     e.JSONURL,
		ManifestURL: e.ManifestURL,
		EditionName: e.EditionName,
		Cached:      cached,
	}
}

// Uploader uploads image/metadata pairs.
type Uploader struct {
	store Storage
	cache *cache.Cache
	opts  Options
	log   *zap.Logger
}

// New returns an Uploader. A zero price buffer means 3/2.
func New(store Storage, c *cache.Cache, opts Options, log *zap.Logger) *Uploader {
	if opts.BufferNum == 0 || opts.BufferDen == 0 {
		opts.BufferNum, opts.BufferDen = 3, 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{store: store, cache: c, opts: opts, log: log}
}

func checkFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingFileError{Path: path}
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return nil
}

// UploadPair uploads the image at imagePath and the metadata at jsonPath,
// rewritten to point at the image, plus a path manifest indexing both. The
// cache key is the image name without its extension. A complete cache entry
// is returned as is unless overwrite is set.
func (u *Uploader) UploadPair(ctx context.Context, imagePath, jsonPath string, overwrite bool) (Result, error) {
	for _, p := range []string{imagePath, jsonPath} {
		if err := checkFile(p); err != nil {
			return Result{}, err
		}
	}
	name := asset.NameFromPath(imagePath)

	if !overwrite {
		entry, ok, err := u.cache.Lookup(name)
		if err != nil {
			return Result{}, err
		}
		if ok && entry.Uploaded() {
			u.log.Info("already uploaded", zap.String("name", name))
			return resultFrom(name, entry, true), nil
		}
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("reading image: %w", err)
	}
	doc, err := asset.LoadDocument(jsonPath)
	if err != nil {
		return Result{}, err
	}

	imageItem, err := u.store.CreateItem(image, bundlr.ContentTags(u.opts.AppName, asset.ImageContentType))
	if err != nil {
		return Result{}, fmt.Errorf("signing image: %w", err)
	}
	imageID, err := imageItem.ID()
	if err != nil {
		return Result{}, err
	}
	imageURL := GatewayURL + imageID

	rewritten, err := doc.WithImage(imageURL, asset.ImageContentType, u.opts.Creators)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", jsonPath, err)
	}
	metadata, err := rewritten.Marshal()
	if err != nil {
		return Result{}, err
	}
	jsonItem, err := u.store.CreateItem(metadata, bundlr.ContentTags(u.opts.AppName, asset.JSONContentType))
	if err != nil {
		return Result{}, fmt.Errorf("signing metadata: %w", err)
	}
	jsonID, err := jsonItem.ID()
	if err != nil {
		return Result{}, err
	}

	manifest, err := bundlr.AssetManifest(imageID, jsonID).Marshal()
	if err != nil {
		return Result{}, err
	}
	manifestItem, err := u.store.CreateItem(manifest, bundlr.ContentTags(u.opts.AppName, bundlr.ManifestContentType))
	if err != nil {
		return Result{}, fmt.Errorf("signing manifest: %w", err)
	}
	manifestID, err := manifestItem.ID()
	if err != nil {
		return Result{}, err
	}

	items := []*bundlr.DataItem{imageItem, jsonItem, manifestItem}
	size := 0
	for _, it := range items {
		size += len(it.Data)
	}
	u.log.Info("total content size", zap.String("name", name), zap.Int("bytes", size))

	if err := u.ensureFunds(ctx, size); err != nil {
		return Result{}, err
	}

	for _, it := range items {
		if err := u.upload(ctx, it); err != nil {
			return Result{}, err
		}
	}

	entry, err := u.cache.Merge(name, cache.Entry{
		ImageURL:    imageURL,
		JSONURL:     GatewayURL + jsonID,
		ManifestURL: GatewayURL + manifestID,
		EditionName: doc.Name(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("recording upload of %s: %w", name, err)
	}
	u.log.Info("uploaded pair",
		zap.String("name", name),
		zap.String("image", entry.ImageURL),
		zap.String("json", entry.JSONURL),
	)
	return resultFrom(name, entry, false), nil
}

// ensureFunds tops up the node balance to the buffered price of size bytes.
func (u *Uploader) ensureFunds(ctx context.Context, size int) error {
	var price uint64
	err := retry.Do(ctx, u.opts.Retry, u.log, "bundlr price", func(ctx context.Context) error {
		var err error
		price, err = u.store.Price(ctx, size)
		return classify(err)
	})
	if err != nil {
		return err
	}
	need := price * u.opts.BufferNum / u.opts.BufferDen
	u.log.Info("upload cost with buffer",
		zap.Int("bytes", size),
		zap.Float64("sol", float64(need)/solana.LamportsPerSOL),
	)

	var balance uint64
	err = retry.Do(ctx, u.opts.Retry, u.log, "bundlr balance", func(ctx context.Context) error {
		var err error
		balance, err = u.store.LoadedBalance(ctx)
		return classify(err)
	})
	if err != nil {
		return err
	}
	if balance >= need {
		u.log.Info("bundler balance is sufficient", zap.Float64("sol", float64(balance)/solana.LamportsPerSOL))
		return nil
	}

	u.log.Info("funding bundler",
		zap.Float64("balance", float64(balance)/solana.LamportsPerSOL),
		zap.Uint64("lamports", need-balance),
	)
	// A deposit is not retried: a timed out transfer may still have landed.
	tx, err := u.store.Fund(ctx, need-balance)
	if err != nil {
		return fmt.Errorf("funding bundler: %w", err)
	}
	u.log.Info("funded bundler", zap.String("tx", tx))
	return nil
}

func (u *Uploader) upload(ctx context.Context, item *bundlr.DataItem) error {
	id, err := item.ID()
	if err != nil {
		return err
	}
	return retry.Do(ctx, u.opts.Retry, u.log, "upload "+id, func(ctx context.Context) error {
		_, err := u.store.Upload(ctx, item)
		return classify(err)
	})
}

func classify(err error) error {
	if err != nil && bundlr.IsPermanent(err) {
		return retry.Permanent(err)
	}
	return err
}

// UploadAll uploads every item pair in dir in name order, skipping the
// collection pair. It stops at the first failure.
func (u *Uploader) UploadAll(ctx context.Context, dir string) ([]Result, error) {
	pairs, err := asset.ScanDir(dir)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(pairs))
	for i, p := range pairs {
		u.log.Info("uploading pair", zap.Int("number", i), zap.String("name", p.Name))
		res, err := u.UploadPair(ctx, p.ImagePath, p.JSONPath, false)
		if err != nil {
			return results, fmt.Errorf("pair %s: %w", p.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// UploadCollection uploads the reserved collection pair from dir.
func (u *Uploader) UploadCollection(ctx context.Context, dir string, overwrite bool) (Result, error) {
	p := asset.CollectionPair(dir)
	return u.UploadPair(ctx, p.ImagePath, p.JSONPath, overwrite)
}
