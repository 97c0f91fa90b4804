package blobindex

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/transparencytube/blobindex/cache"
	"github.com/transparencytube/blobindex/source"
)

// DefaultVersion is the dataset version used when WithVersion is not given.
const DefaultVersion = "v2"

// Option configures a Store.
type Option func(*config) error

type config struct {
	root      string
	cdnRoot   string
	useCDN    bool
	version   string
	client    *http.Client
	retries   int
	logger    *slog.Logger
	cache     any // cache.Cache[[]R], checked against R in Open
	noCache   bool
	diskDir   string
	diskMax   int64
	timeout   time.Duration
	limiter   *rate.Limiter
	registry  prometheus.Registerer
	manifests source.Source
	rows      source.Source
}

func defaultConfig() config {
	return config{
		useCDN:  true,
		version: DefaultVersion,
	}
}

// --- Location Options ---

// WithRoot sets the origin root. Manifests are always read from the
// origin. The root is an http(s) URL or a local directory path.
func WithRoot(root string) Option {
	return func(c *config) error {
		c.root = root
		return nil
	}
}

// WithCDNRoot sets the root from which row shards are read when CDN use is
// enabled.
func WithCDNRoot(root string) Option {
	return func(c *config) error {
		c.cdnRoot = root
		return nil
	}
}

// WithCDN enables or disables reading row shards from the CDN root.
// Enabled by default; without a CDN root it has no effect.
func WithCDN(enabled bool) Option {
	return func(c *config) error {
		c.useCDN = enabled
		return nil
	}
}

// WithVersion sets the dataset version path segment. Defaults to "v2".
func WithVersion(version string) Option {
	return func(c *config) error {
		if version == "" {
			return fmt.Errorf("%w: empty version", ErrInvalidOption)
		}
		c.version = version
		return nil
	}
}

// WithSources reads the manifest from manifests and row shards from rows,
// bypassing WithRoot and WithCDNRoot. Either may be nil to keep the
// root-derived source for that role.
func WithSources(manifests, rows source.Source) Option {
	return func(c *config) error {
		c.manifests = manifests
		c.rows = rows
		return nil
	}
}

// --- Transport Options ---

// WithHTTPClient sets the HTTP client used for URL roots.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) error {
		c.client = client
		return nil
	}
}

// WithRetries retries transient HTTP failures up to n times with backoff.
// Disabled by default.
func WithRetries(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("%w: negative retries", ErrInvalidOption)
		}
		c.retries = n
		return nil
	}
}

// WithFetchTimeout bounds each shard fetch, including decompression and
// decoding. Zero means no timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return fmt.Errorf("%w: negative fetch timeout", ErrInvalidOption)
		}
		c.timeout = d
		return nil
	}
}

// WithRateLimit caps shard fetches at perSecond with the given burst.
// Cache hits are not limited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *config) error {
		if perSecond <= 0 || burst <= 0 {
			return fmt.Errorf("%w: rate limit must be positive", ErrInvalidOption)
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// --- Cache Options ---

// WithCache sets the decoded shard cache, keyed by shard file name. R must
// match the store's row type, e.g. WithCache[Row](cache.NewMemory[[]Row]()).
// By default each store has its own unbounded memory cache.
func WithCache[R any](shards cache.Cache[[]R]) Option {
	return func(c *config) error {
		if shards == nil {
			return fmt.Errorf("%w: nil cache", ErrInvalidOption)
		}
		c.cache = shards
		c.noCache = false
		return nil
	}
}

// WithoutCache disables the decoded shard cache, so every query fetches
// its candidate shards again.
func WithoutCache() Option {
	return func(c *config) error {
		c.noCache = true
		c.cache = nil
		return nil
	}
}

// WithDiskCache persists raw row shards under dir, bounded by maxBytes
// (0 = unlimited). Manifests are never cached on disk.
func WithDiskCache(dir string, maxBytes int64) Option {
	return func(c *config) error {
		if dir == "" {
			return fmt.Errorf("%w: empty disk cache dir", ErrInvalidOption)
		}
		c.diskDir = dir
		c.diskMax = maxBytes
		return nil
	}
}

// --- Observability Options ---

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics registers the store's collectors with reg. Stores sharing a
// registry share collectors, labelled by dataset.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) error {
		c.registry = reg
		return nil
	}
}
