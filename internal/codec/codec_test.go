package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "{\"d\":\"2021-01-01\"}\n{\"d\":\"2021-01-02\"}\n"

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func lz4Bytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   func(t *testing.T) []byte
		format Format
	}{
		{name: "plain", data: func(*testing.T) []byte { return []byte(payload) }, format: Plain},
		{name: "gzip", data: func(t *testing.T) []byte { return gzipBytes(t, payload) }, format: Gzip},
		{name: "zstd", data: func(t *testing.T) []byte { return zstdBytes(t, payload) }, format: Zstd},
		{name: "lz4", data: func(t *testing.T) []byte { return lz4Bytes(t, payload) }, format: LZ4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc, format, err := NewReader(bytes.NewReader(tt.data(t)))
			require.NoError(t, err)
			defer rc.Close()

			assert.Equal(t, tt.format, format)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
		})
	}
}

func TestNewReaderShortInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "{", "{}"} {
		rc, format, err := NewReader(bytes.NewReader([]byte(in)))
		require.NoError(t, err)
		assert.Equal(t, Plain, format)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, in, string(got))
		require.NoError(t, rc.Close())
	}
}

func TestNewReaderCorruptGzip(t *testing.T) {
	t.Parallel()

	_, format, err := NewReader(bytes.NewReader([]byte{0x1f, 0x8b, 0x00, 0x00}))
	assert.Equal(t, Gzip, format)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestZstdDecoderReuse(t *testing.T) {
	t.Parallel()

	for range 3 {
		rc, _, err := NewReader(bytes.NewReader(zstdBytes(t, payload)))
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, string(got))
		require.NoError(t, rc.Close())
		require.NoError(t, rc.Close(), "second Close must be harmless")
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Plain, Detect(nil))
	assert.Equal(t, Gzip, Detect([]byte{0x1f, 0x8b}))
	assert.Equal(t, Zstd, Detect([]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}))
	assert.Equal(t, LZ4, Detect([]byte{0x04, 0x22, 0x4d, 0x18}))
	assert.Equal(t, "zstd", Zstd.String())
}
