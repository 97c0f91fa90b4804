// Package codec detects and undoes the compression applied to dataset files.
//
// Files are served as gzip in practice, but a CDN or HTTP client may already
// have removed the gzip layer by the time the bytes arrive. The format is
// therefore sniffed from the leading magic bytes rather than trusted from
// the file name.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies a compression format.
type Format uint8

// Supported formats.
const (
	Plain Format = iota
	Gzip
	Zstd
	LZ4
)

func (f Format) String() string {
	switch f {
	case Plain:
		return "plain"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ErrCorrupt is returned when a compressed stream cannot be opened.
var ErrCorrupt = errors.New("codec: corrupt stream")

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Detect returns the format indicated by the leading bytes of a stream.
func Detect(prefix []byte) Format {
	switch {
	case bytes.HasPrefix(prefix, magicZstd):
		return Zstd
	case bytes.HasPrefix(prefix, magicLZ4):
		return LZ4
	case bytes.HasPrefix(prefix, magicGzip):
		return Gzip
	default:
		return Plain
	}
}

// NewReader returns a reader yielding the decompressed content of r along
// with the detected format. Closing the returned reader releases decoder
// resources; it does not close r.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	br := bufio.NewReader(r)
	prefix, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, Plain, err
	}

	format := Detect(prefix)
	switch format {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return zr, format, nil
	case Zstd:
		dec, release, err := zstdDecoders.get(br)
		if err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return &zstdReadCloser{dec: dec, release: release}, format, nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(br)), format, nil
	default:
		return io.NopCloser(br), format, nil
	}
}

// zstdPool keeps decoders for reuse; a zstd decoder is comparatively
// expensive to build.
type zstdPool struct {
	pool sync.Pool
}

var zstdDecoders = &zstdPool{}

func (p *zstdPool) get(r io.Reader) (*zstd.Decoder, func(), error) {
	if v, ok := p.pool.Get().(*zstd.Decoder); ok && v != nil {
		if err := v.Reset(r); err != nil {
			v.Close()
			return nil, nil, err
		}
		return v, func() { p.put(v) }, nil
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { p.put(dec) }, nil
}

func (p *zstdPool) put(dec *zstd.Decoder) {
	if err := dec.Reset(nil); err != nil {
		dec.Close()
		return
	}
	p.pool.Put(dec)
}

type zstdReadCloser struct {
	dec     *zstd.Decoder
	release func()
	once    sync.Once
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.once.Do(z.release)
	return nil
}
