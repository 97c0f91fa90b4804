//go:build integration

package integration

import (
	"bytes"
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencytube/blobindex"
	"github.com/transparencytube/blobindex/key"
	minioSource "github.com/transparencytube/blobindex/source/minio"
)

// uploadDataset writes the standard dataset under prefix in bucket.
func uploadDataset(tb testing.TB, client *minio.Client, bucket, prefix string) {
	tb.Helper()
	ctx := context.Background()
	for name, data := range datasetFiles(tb) {
		_, err := client.PutObject(ctx, bucket, prefix+"/"+name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/gzip",
		})
		require.NoError(tb, err, "PutObject(%q)", name)
	}
}

func openMinio(tb testing.TB, bucket, prefix string, opts ...blobindex.Option) (*blobindex.Store[blobindex.Record], *minio.Client) {
	tb.Helper()
	client := newMinioClient(tb, getMinio(tb), bucket)
	uploadDataset(tb, client, bucket, prefix)

	src := minioSource.NewSource(client, bucket, prefix)
	opts = append([]blobindex.Option{blobindex.WithSources(src, src)}, opts...)
	store, err := blobindex.OpenRecords(context.Background(), testDataset, opts...)
	require.NoError(tb, err, "OpenRecords")
	return store, client
}

func TestMinio_EqualityQuery(t *testing.T) {
	t.Parallel()

	store, _ := openMinio(t, "datasets", "eq")
	assert.Equal(t, []string{"channelId", "upload"}, store.KeyFields())

	res, err := store.Query(context.Background(), []blobindex.Filter{blobindex.Match("channelId", "UC1")}, blobindex.QueryOptions[blobindex.Record]{})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 2, res.Candidates)
	assertViews(t, res.Rows, 100, 250, 80)
}

func TestMinio_RangeQueryDescending(t *testing.T) {
	t.Parallel()

	store, _ := openMinio(t, "datasets", "range")
	rows, err := store.RowsWith(context.Background(),
		[]blobindex.Filter{blobindex.Range(key.Of("channelId", "UC2"), key.Of("channelId", "UC3"))},
		blobindex.QueryOptions[blobindex.Record]{Order: blobindex.Desc, Parallelism: 1},
	)
	require.NoError(t, err)
	assertViews(t, rows, 7, 9, 12)
}

func TestMinio_MissingShard(t *testing.T) {
	t.Parallel()

	store, client := openMinio(t, "datasets", "missing")
	require.NoError(t, client.RemoveObject(context.Background(), "datasets",
		"missing/"+testDataset+"/v2/2.jsonl.gz", minio.RemoveObjectOptions{}))

	res, err := store.Query(context.Background(), nil, blobindex.QueryOptions[blobindex.Record]{})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2.jsonl.gz", res.Failed[0].File)
	require.ErrorIs(t, res.Err(), blobindex.ErrNotFound)
	assertViews(t, res.Rows, 100, 250, 80, 12)
}

func TestMinio_MissingManifest(t *testing.T) {
	t.Parallel()

	client := newMinioClient(t, getMinio(t), "empty")
	src := minioSource.NewSource(client, "empty", "")
	_, err := blobindex.OpenRecords(context.Background(), testDataset, blobindex.WithSources(src, src))
	require.ErrorIs(t, err, blobindex.ErrManifest)
	require.ErrorIs(t, err, blobindex.ErrNotFound)
}

func TestMinio_DiskCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, client := openMinio(t, "datasets", "disk", blobindex.WithDiskCache(dir, 1<<20), blobindex.WithoutCache())

	rows, err := store.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 6)

	// Shards are served from disk once the bucket no longer has them.
	for _, s := range standardShards {
		require.NoError(t, client.RemoveObject(context.Background(), "datasets",
			"disk/"+testDataset+"/v2/"+s.file, minio.RemoveObjectOptions{}))
	}
	rows, err = store.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}
