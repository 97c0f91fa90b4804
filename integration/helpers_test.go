//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/transparencytube/blobindex"
	"github.com/transparencytube/blobindex/key"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
	testDataset   = "video_stats"
)

// --- Container Setup ---

var (
	registryOnce sync.Once
	registryAddr string
	registryErr  error

	minioOnce sync.Once
	minioAddr string
	minioErr  error
)

func skipWithoutDocker(tb testing.TB) {
	tb.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
}

// getRegistry returns the shared registry address, starting the container if needed.
func getRegistry(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	registryOnce.Do(func() {
		registryAddr, registryErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "registry:2",
			ExposedPorts: []string{"5000/tcp"},
			WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "5000/tcp")
	})
	if registryErr != nil {
		tb.Fatalf("start registry container: %v", registryErr)
	}
	return registryAddr
}

// getMinio returns the shared MinIO address, starting the container if needed.
func getMinio(tb testing.TB) string {
	tb.Helper()
	skipWithoutDocker(tb)

	minioOnce.Do(func() {
		minioAddr, minioErr = startContainer(context.Background(), testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStatusCodeMatcher(isOKStatus),
		}, "9000/tcp")
	})
	if minioErr != nil {
		tb.Fatalf("start minio container: %v", minioErr)
	}
	return minioAddr
}

// startContainer starts req and returns the host:port of port.
// Container cleanup is handled by the testcontainers Reaper.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("resolve port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// newMinioClient returns a client for the test MinIO server with bucket created.
func newMinioClient(tb testing.TB, addr, bucket string) *minio.Client {
	tb.Helper()
	client, err := minio.New(addr, &minio.Options{
		Creds:  credentials.NewStaticV4(minioUser, minioPassword, ""),
		Secure: false,
	})
	require.NoError(tb, err, "create minio client")

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(tb, err, "BucketExists")
	if !exists {
		require.NoError(tb, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}), "MakeBucket")
	}
	return client
}

// --- Test Data Helpers ---

// fixtureShard is one shard of the standard dataset.
type fixtureShard struct {
	file string
	rows []blobindex.Record
}

// standardShards is a dataset of three monthly shards keyed by channelId
// then upload.
var standardShards = []fixtureShard{
	{"0.jsonl.gz", []blobindex.Record{
		{"channelId": "UC1", "upload": "2021-01-03", "views": 100.0},
		{"channelId": "UC1", "upload": "2021-01-20", "views": 250.0},
	}},
	{"1.jsonl.gz", []blobindex.Record{
		{"channelId": "UC1", "upload": "2021-02-11", "views": 80.0},
		{"channelId": "UC2", "upload": "2021-01-05", "views": 12.0},
	}},
	{"2.jsonl.gz", []blobindex.Record{
		{"channelId": "UC3", "upload": "2021-03-01", "views": 7.0},
		{"channelId": "UC3", "upload": "2021-03-09", "views": 9.0},
	}},
}

// datasetFiles returns the gzipped manifest and shards of standardShards,
// named relative to the store root.
func datasetFiles(tb testing.TB) map[string][]byte {
	tb.Helper()

	type keyFile struct {
		File  string  `json:"file"`
		First key.Key `json:"first"`
		Last  key.Key `json:"last"`
	}
	m := struct {
		KeyFiles []keyFile          `json:"keyFiles"`
		Cols     []blobindex.Column `json:"cols"`
	}{
		Cols: []blobindex.Column{
			{Name: "channelId", InIndex: true},
			{Name: "upload", InIndex: true},
			{Name: "views"},
		},
	}

	prefix := testDataset + "/" + blobindex.DefaultVersion + "/"
	files := make(map[string][]byte)
	for _, s := range standardShards {
		first, last := s.rows[0], s.rows[len(s.rows)-1]
		m.KeyFiles = append(m.KeyFiles, keyFile{
			File:  s.file,
			First: blobindex.RecordKey(first, "channelId", "upload"),
			Last:  blobindex.RecordKey(last, "channelId", "upload"),
		})
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, r := range s.rows {
			require.NoError(tb, enc.Encode(r))
		}
		files[prefix+s.file] = gzipBytes(tb, buf.Bytes())
	}
	data, err := json.Marshal(m)
	require.NoError(tb, err)
	files[prefix+"index.json.gz"] = gzipBytes(tb, data)
	return files
}

func gzipBytes(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// --- Assertion Helpers ---

// assertViews verifies the views column of rows, in order.
func assertViews(tb testing.TB, rows []blobindex.Record, expected ...float64) {
	tb.Helper()
	got := make([]float64, len(rows))
	for i, r := range rows {
		got[i], _ = r["views"].(float64)
	}
	require.Equal(tb, expected, got, "views")
}
