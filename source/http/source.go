// Package http provides a Source that reads dataset files over HTTP from an
// origin server or a CDN.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/transparencytube/blobindex/internal/pathutil"
	"github.com/transparencytube/blobindex/source"
)

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

// Source reads files below a root URL.
// It satisfies source.Source.
type Source struct {
	root         *url.URL
	client       *nethttp.Client
	headers      nethttp.Header
	sourceID     string
	retries      int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	logger       *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithNoCache asks every cache between the client and the origin to
// revalidate, so a manifest is never served stale.
func WithNoCache() Option {
	return func(s *Source) {
		WithHeader("Cache-Control", "no-cache")(s)
		WithHeader("Pragma", "no-cache")(s)
	}
}

// WithSourceID overrides the default source identifier (the root URL).
func WithSourceID(id string) Option {
	return func(s *Source) {
		s.sourceID = id
	}
}

// WithRetries retries failed requests up to n times with exponential
// backoff. Connection errors, 429 and 5xx responses are retried; 404 is
// not. Zero disables retries, which is the default.
func WithRetries(n int) Option {
	return func(s *Source) {
		s.retries = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(s *Source) {
		s.retryWaitMin = minWait
		s.retryWaitMax = maxWait
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource creates a Source rooted at root, an absolute http or https URL.
func NewSource(root string, opts ...Option) (*Source, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("parse root %q: %w", root, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("root %q: scheme must be http or https", root)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("root %q: missing host", root)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""

	s := &Source{
		root:   u,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.sourceID == "" {
		s.sourceID = u.String()
	}
	if s.retries > 0 {
		s.client = s.retryingClient()
	}
	return s, nil
}

// retryingClient wraps the configured client with retryablehttp.
func (s *Source) retryingClient() *nethttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = s.client
	rc.RetryMax = s.retries
	rc.Logger = nil
	if s.logger != nil {
		rc.Logger = s.logger
	}
	if s.retryWaitMin > 0 {
		rc.RetryWaitMin = s.retryWaitMin
	}
	if s.retryWaitMax > 0 {
		rc.RetryWaitMax = s.retryWaitMax
	}
	// Return the last response instead of a generic "giving up" error so
	// status codes survive.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// URL returns the absolute URL of the named file.
func (s *Source) URL(name string) string {
	return s.root.JoinPath(strings.Split(name, "/")...).String()
}

// SourceID returns the root URL unless overridden with WithSourceID.
func (s *Source) SourceID() string {
	return s.sourceID
}

// Open issues a GET for the named file and returns the response body.
// A 404 or 410 response yields an error matching source.ErrNotFound; any
// other non-2xx status yields a *StatusError.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := pathutil.Validate(name); err != nil {
		return nil, err
	}
	target := s.URL(name)
	req, err := s.newRequest(ctx, target)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.Body, nil
	case resp.StatusCode == nethttp.StatusNotFound || resp.StatusCode == nethttp.StatusGone:
		drain(resp.Body)
		return nil, fmt.Errorf("fetch %s: %w", target, source.ErrNotFound)
	default:
		drain(resp.Body)
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// newRequest creates a GET request with the configured headers.
func (s *Source) newRequest(ctx context.Context, target string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, target, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return req, nil
}

// drain discards and closes a response body to enable connection reuse.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10)) //nolint:errcheck // best-effort drain for connection reuse
	_ = body.Close()
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
