// Package minio provides a Source backed by MinIO or any other
// S3-compatible object store reachable through minio-go.
package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/transparencytube/blobindex/internal/pathutil"
	"github.com/transparencytube/blobindex/source"
)

// Source reads dataset files from objects under a key prefix.
type Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewSource creates a Source for bucket. rootPrefix is prepended to every
// file name.
func NewSource(client *minio.Client, bucket, rootPrefix string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
		prefix: pathutil.Join(rootPrefix),
	}
}

func (s *Source) key(name string) string {
	return pathutil.Join(s.prefix, name)
}

// Open fetches the object for name.
//
// minio-go defers the request until the first read, so Open stats the
// object first to surface a missing key as source.ErrNotFound.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := pathutil.Validate(name); err != nil {
		return nil, err
	}
	key := s.key(name)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, s.mapError(key, err)
	}
	return obj, nil
}

// SourceID returns a URL naming the endpoint, bucket and prefix.
func (s *Source) SourceID() string {
	id := s.client.EndpointURL().String() + "/" + s.bucket
	if s.prefix != "" {
		id += "/" + s.prefix
	}
	return id
}

func (s *Source) mapError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return fmt.Errorf("%s/%s: %w", s.bucket, key, source.ErrNotFound)
	default:
		return fmt.Errorf("%s/%s: %w", s.bucket, key, err)
	}
}
