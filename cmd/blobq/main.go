// Command blobq queries an indexed blob dataset from the command line, or
// serves queries over HTTP.
//
// One-shot query, printing matching rows as JSON lines:
//
//	blobq -root https://data.example.com/results -dataset video_stats -eq channelId=UC123
//
// Range query over the newest shards first:
//
//	blobq -root ./export -dataset video_stats -from '{"upload":"2021-01-01"}' -to '{"upload":"2021-06-30"}' -desc -limit 100
//
// Query server:
//
//	blobq -root https://data.example.com/results -serve :8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/transparencytube/blobindex"
	"github.com/transparencytube/blobindex/source"
	minioSource "github.com/transparencytube/blobindex/source/minio"
	"github.com/transparencytube/blobindex/source/oci"
	s3Source "github.com/transparencytube/blobindex/source/s3"
)

type config struct {
	root        string
	cdnRoot     string
	noCDN       bool
	dataset     string
	version     string
	filter      filterSpec
	parallelism int
	limit       int
	retries     int
	timeout     time.Duration
	cacheDir    string
	cacheMax    int64
	s3Bucket    string
	s3Region    string
	minioAddr   string
	minioBucket string
	minioTLS    bool
	ociRef      string
	ociPlain    bool
	logLevel    string
	serve       string
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "blobq:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.logLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "blobq:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("blobq failed", "error", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("blobq", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var eq, where stringList
	fs.StringVar(&cfg.root, "root", "", "origin root: http(s) URL or local directory (key prefix with -s3-bucket or -minio-bucket)")
	fs.StringVar(&cfg.cdnRoot, "cdn-root", "", "CDN root for row shards")
	fs.BoolVar(&cfg.noCDN, "no-cdn", false, "read row shards from the origin even if -cdn-root is set")
	fs.StringVar(&cfg.dataset, "dataset", "", "dataset name (required unless -serve)")
	fs.StringVar(&cfg.version, "version", blobindex.DefaultVersion, "dataset version")
	fs.Var(&eq, "eq", "equality constraint name=value; repeat to add fields (value parsed as JSON, else string)")
	fs.Var(&where, "where", "equality clause as a JSON object; repeatable")
	fs.StringVar(&cfg.filter.from, "from", "", "range lower bound as a JSON object")
	fs.StringVar(&cfg.filter.to, "to", "", "range upper bound as a JSON object")
	fs.BoolVar(&cfg.filter.or, "or", false, "match rows satisfying any clause instead of all")
	fs.BoolVar(&cfg.filter.desc, "desc", false, "visit shards in descending key order")
	fs.IntVar(&cfg.parallelism, "parallelism", blobindex.DefaultParallelism, "shards fetched concurrently per batch")
	fs.IntVar(&cfg.limit, "limit", 0, "stop after this many rows (0 = all)")
	fs.IntVar(&cfg.retries, "retries", 0, "HTTP retries for transient failures")
	fs.DurationVar(&cfg.timeout, "timeout", 0, "per-shard fetch timeout (0 = none)")
	fs.StringVar(&cfg.cacheDir, "cache-dir", "", "persist raw shards in this directory")
	fs.Int64Var(&cfg.cacheMax, "cache-max-bytes", 1<<30, "disk cache size limit")
	fs.StringVar(&cfg.s3Bucket, "s3-bucket", "", "read from this S3 bucket using the default AWS credential chain")
	fs.StringVar(&cfg.s3Region, "s3-region", "", "S3 region override")
	fs.StringVar(&cfg.minioAddr, "minio-endpoint", "", "MinIO endpoint host:port (credentials from MINIO_ACCESS_KEY and MINIO_SECRET_KEY)")
	fs.StringVar(&cfg.minioBucket, "minio-bucket", "", "MinIO bucket")
	fs.BoolVar(&cfg.minioTLS, "minio-tls", true, "use TLS for MinIO")
	fs.StringVar(&cfg.ociRef, "oci", "", "read from an OCI artifact reference, e.g. ghcr.io/org/data:latest")
	fs.BoolVar(&cfg.ociPlain, "oci-plain-http", false, "use plain HTTP for the OCI registry")
	fs.StringVar(&cfg.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.serve, "serve", "", "serve queries over HTTP on this address instead of querying once")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	cfg.filter.eq = eq
	cfg.filter.where = where

	if cfg.serve == "" && cfg.dataset == "" {
		return config{}, errors.New("-dataset is required")
	}
	if cfg.s3Bucket != "" && cfg.minioBucket != "" {
		return config{}, errors.New("-s3-bucket and -minio-bucket are mutually exclusive")
	}
	if cfg.minioBucket != "" && cfg.minioAddr == "" {
		return config{}, errors.New("-minio-bucket requires -minio-endpoint")
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("-log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// storeOptions translates the configuration into store options.
func storeOptions(ctx context.Context, cfg *config, logger *slog.Logger) ([]blobindex.Option, error) {
	opts := []blobindex.Option{
		blobindex.WithLogger(logger),
		blobindex.WithVersion(cfg.version),
		blobindex.WithCDN(!cfg.noCDN),
		blobindex.WithRetries(cfg.retries),
		blobindex.WithFetchTimeout(cfg.timeout),
	}
	if cfg.cacheDir != "" {
		opts = append(opts, blobindex.WithDiskCache(cfg.cacheDir, cfg.cacheMax))
	}

	src, err := objectSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if src != nil {
		return append(opts, blobindex.WithSources(src, src)), nil
	}

	if cfg.root == "" {
		return nil, errors.New("one of -root, -s3-bucket, -minio-bucket or -oci is required")
	}
	opts = append(opts, blobindex.WithRoot(cfg.root))
	if cfg.cdnRoot != "" {
		opts = append(opts, blobindex.WithCDNRoot(cfg.cdnRoot))
	}
	return opts, nil
}

// objectSource returns the object-store source selected by flags, or nil
// when the dataset is addressed by -root alone.
func objectSource(ctx context.Context, cfg *config) (source.Source, error) {
	prefix := strings.Trim(cfg.root, "/")
	switch {
	case cfg.s3Bucket != "":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.s3Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.s3Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.retries > 0 {
				o.RetryMaxAttempts = cfg.retries + 1
			}
		})
		return s3Source.NewSource(client, cfg.s3Bucket, prefix), nil

	case cfg.minioBucket != "":
		client, err := minio.New(cfg.minioAddr, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: cfg.minioTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioSource.NewSource(client, cfg.minioBucket, prefix), nil

	case cfg.ociRef != "":
		src, err := oci.NewRemoteSource(cfg.ociRef, oci.WithPlainHTTP(cfg.ociPlain))
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, nil
}

func run(ctx context.Context, cfg config, logger *slog.Logger, stdout io.Writer) error {
	opts, err := storeOptions(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	if cfg.serve != "" {
		reg := prometheus.NewRegistry()
		srv := newServer(logger, reg, append(opts, blobindex.WithMetrics(reg))...)
		return srv.listen(ctx, cfg.serve)
	}
	return query(ctx, cfg, opts, stdout)
}

// query runs one query and writes the matching rows as JSON lines.
func query(ctx context.Context, cfg config, opts []blobindex.Option, stdout io.Writer) error {
	filters, err := cfg.filter.filters()
	if err != nil {
		return err
	}

	store, err := blobindex.OpenRecords(ctx, cfg.dataset, opts...)
	if err != nil {
		return err
	}
	res, err := store.Query(ctx, filters, cfg.filter.options(cfg.parallelism, cfg.limit))
	if err != nil {
		return err
	}

	rows := res.Rows
	if cfg.limit > 0 && len(rows) > cfg.limit {
		rows = rows[:cfg.limit]
	}
	enc := json.NewEncoder(stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("%d of %d shards failed: %w", len(res.Failed), res.Scanned, err)
	}
	return nil
}
