// Package oci provides a Source that reads dataset files packaged as the
// titled layers of an OCI artifact.
//
// Each layer's org.opencontainers.image.title annotation is the file name
// relative to the source root, e.g. "results/v2/index.json.gz". Layer
// content is verified against its descriptor digest while it is read.
package oci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/transparencytube/blobindex/internal/pathutil"
	"github.com/transparencytube/blobindex/source"
)

// ErrDigestMismatch is returned when layer content does not match its digest.
var ErrDigestMismatch = errors.New("oci: digest mismatch")

// Source serves the titled layers of one artifact manifest.
type Source struct {
	target oras.ReadOnlyTarget
	ref    string
	id     string

	mu     sync.Mutex
	loaded bool
	layers map[string]ocispec.Descriptor
	err    error
}

// Option configures a Source.
type Option func(*config)

type config struct {
	plainHTTP bool
	userAgent string
	credStore credentials.Store
	sourceID  string
}

// WithPlainHTTP talks to the registry over plain HTTP.
func WithPlainHTTP(plain bool) Option {
	return func(c *config) {
		c.plainHTTP = plain
	}
}

// WithUserAgent sets the User-Agent header for registry requests.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		c.userAgent = ua
	}
}

// WithCredentials resolves registry credentials from store.
// Without it requests are anonymous.
func WithCredentials(store credentials.Store) Option {
	return func(c *config) {
		c.credStore = store
	}
}

// WithSourceID overrides the source identifier (the reference by default).
func WithSourceID(id string) Option {
	return func(c *config) {
		c.sourceID = id
	}
}

// NewSource reads the artifact tagged or digested as ref from target.
func NewSource(target oras.ReadOnlyTarget, ref string, opts ...Option) *Source {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := cfg.sourceID
	if id == "" {
		id = "oci://" + ref
	}
	return &Source{target: target, ref: ref, id: id}
}

// NewRemoteSource reads the artifact at a full registry reference such as
// "ghcr.io/org/datasets:2024-06".
func NewRemoteSource(ref string, opts ...Option) (*Source, error) {
	cfg := config{userAgent: "blobindex/1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", ref, err)
	}
	repo.PlainHTTP = cfg.plainHTTP
	repo.Client = &auth.Client{
		Client: retry.DefaultClient,
		Cache:  auth.NewCache(),
		Credential: func(ctx context.Context, hostport string) (auth.Credential, error) {
			if cfg.credStore == nil {
				return auth.EmptyCredential, nil
			}
			return cfg.credStore.Get(ctx, hostport)
		},
		Header: http.Header{
			"User-Agent": []string{cfg.userAgent},
		},
	}

	tag := repo.Reference.Reference
	if tag == "" {
		return nil, fmt.Errorf("reference %q: missing tag or digest", ref)
	}
	id := cfg.sourceID
	if id == "" {
		id = "oci://" + ref
	}
	return &Source{target: repo, ref: tag, id: id}, nil
}

// SourceID returns the configured identifier.
func (s *Source) SourceID() string {
	return s.id
}

// Names returns the titles of all layers in the artifact.
func (s *Source) Names(ctx context.Context) ([]string, error) {
	layers, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	return names, nil
}

// Open fetches the layer titled name.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := pathutil.Validate(name); err != nil {
		return nil, err
	}
	layers, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	desc, ok := layers[name]
	if !ok {
		return nil, fmt.Errorf("%s: layer %q: %w", s.id, name, source.ErrNotFound)
	}
	rc, err := s.target.Fetch(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch %s: %w", s.id, desc.Digest, err)
	}
	return &verifyReader{
		rc:       rc,
		verifier: desc.Digest.Verifier(),
		digest:   desc.Digest,
		size:     desc.Size,
	}, nil
}

// index resolves the reference and maps layer titles to descriptors once.
// A failure is sticky for the lifetime of the Source unless it came from
// the caller's context ending, in which case the next call retries.
func (s *Source) index(ctx context.Context) (map[string]ocispec.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.layers, s.err
	}

	layers, err := s.load(ctx)
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	s.layers, s.err, s.loaded = layers, err, true
	return layers, err
}

func (s *Source) load(ctx context.Context) (map[string]ocispec.Descriptor, error) {
	root, err := s.target.Resolve(ctx, s.ref)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve: %w", s.id, err)
	}
	data, err := content.FetchAll(ctx, s.target, root)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch manifest: %w", s.id, err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%s: decode manifest: %w", s.id, err)
	}

	layers := make(map[string]ocispec.Descriptor, len(manifest.Layers))
	for _, layer := range manifest.Layers {
		title := layer.Annotations[ocispec.AnnotationTitle]
		if title == "" {
			continue
		}
		layers[pathutil.Join(title)] = layer
	}
	return layers, nil
}

// verifyReader checks size and digest once the layer has been read fully.
type verifyReader struct {
	rc       io.ReadCloser
	verifier digest.Verifier
	digest   digest.Digest
	size     int64
	read     int64
}

func (v *verifyReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	if n > 0 {
		v.read += int64(n)
		_, _ = v.verifier.Write(p[:n])
	}
	if errors.Is(err, io.EOF) {
		if v.read != v.size || !v.verifier.Verified() {
			return n, fmt.Errorf("%w: %s", ErrDigestMismatch, v.digest)
		}
	}
	return n, err
}

func (v *verifyReader) Close() error {
	return v.rc.Close()
}
