// Package s3 provides a Source backed by an Amazon S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/transparencytube/blobindex/internal/pathutil"
	"github.com/transparencytube/blobindex/source"
)

// Client is the subset of the S3 API the source needs. *s3.Client
// satisfies it.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source reads dataset files from objects under a key prefix.
type Source struct {
	client Client
	bucket string
	prefix string
}

// NewSource creates a Source for bucket. rootPrefix is prepended to every
// file name (e.g. "transparency/").
func NewSource(client Client, bucket, rootPrefix string) *Source {
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
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := pathutil.Validate(name); err != nil {
		return nil, err
	}
	key := s.key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, source.ErrNotFound)
		}
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, source.ErrNotFound)
		}
		return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// SourceID returns an s3:// URL for the bucket and prefix.
func (s *Source) SourceID() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}
