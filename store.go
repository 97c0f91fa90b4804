package blobindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/transparencytube/blobindex/cache"
	"github.com/transparencytube/blobindex/cache/disk"
	"github.com/transparencytube/blobindex/internal/codec"
	"github.com/transparencytube/blobindex/internal/jsonl"
	"github.com/transparencytube/blobindex/internal/manifest"
	"github.com/transparencytube/blobindex/internal/pathutil"
	"github.com/transparencytube/blobindex/key"
	"github.com/transparencytube/blobindex/source"
	bihttp "github.com/transparencytube/blobindex/source/http"
)

// Store answers filtered queries over one versioned dataset. It loads the
// manifest once at Open, then fetches only the shards whose key bounds can
// hold matching rows.
//
// Decoded shards are cached for the life of the Store and shared by
// concurrent queries. A Store is safe for concurrent use.
type Store[R any] struct {
	dataset string
	version string
	prefix  string // dataset/version

	manifest *manifest.Manifest
	columns  map[string]Column
	keyOf    KeyFunc[R]

	manifests source.Source
	rows      source.Source

	cache   cache.Cache[[]R]
	loads   singleflight.Group
	limiter *rate.Limiter
	timeout time.Duration

	logger  *slog.Logger
	metrics *metrics
}

// Open loads the manifest of dataset and returns a Store whose rows are
// decoded as R and keyed by keyOf.
//
// The manifest is read from the origin, bypassing intermediate caches. Any
// failure to fetch, decompress or decode it is logged and returned wrapped
// in ErrManifest; Open does not retry.
func Open[R any](ctx context.Context, dataset string, keyOf KeyFunc[R], opts ...Option) (*Store[R], error) {
	if keyOf == nil {
		return nil, fmt.Errorf("%w: nil key function", ErrInvalidOption)
	}
	return open(ctx, dataset, keyOf, opts)
}

func open[R any](ctx context.Context, dataset string, keyOf KeyFunc[R], opts []Option) (*Store[R], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := pathutil.Validate(dataset); err != nil {
		return nil, fmt.Errorf("%w: dataset %q: %w", ErrInvalidOption, dataset, err)
	}
	if err := pathutil.Validate(cfg.version); err != nil {
		return nil, fmt.Errorf("%w: version %q: %w", ErrInvalidOption, cfg.version, err)
	}

	s := &Store[R]{
		dataset: dataset,
		version: cfg.version,
		prefix:  pathutil.Join(dataset, cfg.version),
		keyOf:   keyOf,
		limiter: cfg.limiter,
		timeout: cfg.timeout,
		logger:  cfg.logger,
	}

	switch shards := cfg.cache.(type) {
	case nil:
		if cfg.noCache {
			s.cache = cache.Nop[[]R]{}
		} else {
			s.cache = cache.NewMemory[[]R]()
		}
	case cache.Cache[[]R]:
		s.cache = shards
	default:
		return nil, fmt.Errorf("%w: cache type %T does not hold rows of this store", ErrInvalidOption, cfg.cache)
	}

	var err error
	if s.manifests, s.rows, err = cfg.sources(); err != nil {
		return nil, err
	}
	if cfg.registry != nil {
		if s.metrics, err = newMetrics(cfg.registry); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	if err := s.loadManifest(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store[R]) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

func (s *Store[R]) loadManifest(ctx context.Context) error {
	name := pathutil.Join(s.prefix, manifest.FileName)
	m, err := s.readManifest(ctx, name)
	if err != nil {
		s.log().Error("load manifest failed",
			"dataset", s.dataset,
			"source", s.manifests.SourceID(),
			"file", name,
			"error", err)
		return fmt.Errorf("%w: %s: %w", ErrManifest, name, err)
	}

	for _, d := range m.CheckOrder() {
		s.log().Warn("manifest shard out of order",
			"dataset", s.dataset,
			"index", d.Index,
			"file", d.File,
			"reason", d.Reason)
	}

	s.manifest = m
	s.columns = m.ColumnsByName()
	s.log().Debug("manifest loaded",
		"dataset", s.dataset,
		"version", s.version,
		"shards", len(m.KeyFiles),
		"columns", len(m.Cols))
	return nil
}

func (s *Store[R]) readManifest(ctx context.Context, name string) (*manifest.Manifest, error) {
	rc, err := s.manifests.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dr, _, err := codec.NewReader(rc)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	return manifest.Decode(dr)
}

// loadShard returns the decoded rows of file, from the cache when
// possible. Concurrent loads of the same file share one fetch. The shared
// fetch is detached from the cancellation of the caller that started it,
// so each waiter gives up only on its own ctx.
func (s *Store[R]) loadShard(ctx context.Context, file string) ([]R, error) {
	start := time.Now()
	if rows, ok := s.cache.Get(file); ok {
		s.metrics.fetch(s.dataset, fetchHit, start)
		s.log().Debug("shard cache hit", "dataset", s.dataset, "file", file)
		return rows, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(file, func() (any, error) {
		if rows, ok := s.cache.Get(file); ok {
			return shardFetch[R]{rows: rows, cached: true}, nil
		}
		rows, err := s.fetchShard(fetchCtx, file)
		if err != nil {
			return nil, err
		}
		s.cache.Put(file, rows)
		return shardFetch[R]{rows: rows}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		s.metrics.fetch(s.dataset, fetchFailed, start)
		s.log().Warn("load shard failed",
			"dataset", s.dataset,
			"file", file,
			"error", res.Err)
		return nil, res.Err
	}

	f, _ := res.Val.(shardFetch[R])
	if f.cached {
		s.metrics.fetch(s.dataset, fetchHit, start)
		s.log().Debug("shard cache hit", "dataset", s.dataset, "file", file)
		return f.rows, nil
	}
	s.metrics.fetch(s.dataset, fetchLoaded, start)
	s.log().Debug("shard loaded",
		"dataset", s.dataset,
		"file", file,
		"rows", len(f.rows),
		"elapsed", time.Since(start))
	return f.rows, nil
}

// shardFetch is the value shared by a singleflight shard load.
type shardFetch[R any] struct {
	rows   []R
	cached bool
}

func (s *Store[R]) fetchShard(ctx context.Context, file string) ([]R, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return readJSONL[R](ctx, s.rows, pathutil.Join(s.prefix, file))
}

// readJSONL fetches name from src and decodes it as JSON lines.
func readJSONL[T any](ctx context.Context, src source.Source, name string) ([]T, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dr, _, err := codec.NewReader(rc)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	rows, err := jsonl.Decode[T](dr)
	if err != nil {
		return nil, err
	}
	// A slow body can outlive the deadline between reads.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Dataset returns the dataset name.
func (s *Store[R]) Dataset() string { return s.dataset }

// Version returns the dataset version.
func (s *Store[R]) Version() string { return s.version }

// BaseURL returns the location of the dataset version on the origin,
// ending in a slash.
func (s *Store[R]) BaseURL() string {
	return strings.TrimSuffix(s.manifests.SourceID(), "/") + "/" + s.prefix + "/"
}

// KeyFiles returns the shards in manifest order.
func (s *Store[R]) KeyFiles() []KeyFile {
	return slices.Clone(s.manifest.KeyFiles)
}

// Columns returns the dataset columns keyed by name.
func (s *Store[R]) Columns() map[string]Column {
	return maps.Clone(s.columns)
}

// Column returns the named column.
func (s *Store[R]) Column(name string) (Column, bool) {
	c, ok := s.columns[name]
	return c, ok
}

// KeyFields returns the names of the index key fields declared by the
// manifest.
func (s *Store[R]) KeyFields() []string {
	return s.manifest.KeyFields()
}

// Disorders reports shards whose bounds break the sort order. Queries
// stay correct against well-formed producers only.
func (s *Store[R]) Disorders() []Disorder {
	return s.manifest.CheckOrder()
}

// Key returns the index key of row.
func (s *Store[R]) Key(row R) key.Key {
	return s.keyOf(row)
}

// sources resolves the manifest and row sources from the configuration.
func (c *config) sources() (manifests, rows source.Source, err error) {
	manifests = c.manifests
	if manifests == nil {
		if c.root == "" {
			return nil, nil, ErrNoSource
		}
		if manifests, err = c.rootSource(c.root, true); err != nil {
			return nil, nil, err
		}
	}

	rows = c.rows
	switch {
	case rows != nil:
	case c.useCDN && c.cdnRoot != "":
		rows, err = c.rootSource(c.cdnRoot, false)
	case c.root != "":
		rows, err = c.rootSource(c.root, false)
	default:
		rows = manifests
	}
	if err != nil {
		return nil, nil, err
	}

	if c.diskDir != "" {
		dc, err := disk.New(c.diskDir, disk.WithMaxBytes(c.diskMax))
		if err != nil {
			return nil, nil, fmt.Errorf("open disk cache: %w", err)
		}
		rows = dc.Wrap(rows)
	}
	return manifests, rows, nil
}

// rootSource builds a Source for an http(s) URL or a local directory.
func (c *config) rootSource(root string, noCache bool) (source.Source, error) {
	if strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://") {
		opts := []bihttp.Option{
			bihttp.WithRetries(c.retries),
			bihttp.WithLogger(c.logger),
		}
		if c.client != nil {
			opts = append(opts, bihttp.WithClient(c.client))
		}
		if noCache {
			opts = append(opts, bihttp.WithNoCache())
		}
		src, err := bihttp.NewSource(root, opts...)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	dir, err := source.NewDir(strings.TrimPrefix(root, "file://"))
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: root %s: %w", ErrNoSource, root, err)
		}
		return nil, err
	}
	return dir, nil
}
