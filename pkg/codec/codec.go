// Package codec provides the streaming frame compressors that wrap the
// index and records artifacts.
//
// Every codec is a symmetric pair: a writer that frames and compresses a
// stream of unknown length, and a reader that decompresses it
// incrementally until EOF.
package codec

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// ErrUnknownCodec is returned when an unsupported codec name is requested
	ErrUnknownCodec = errors.New("unknown compression codec")
)

// Codec names.
const (
	NameLZ4    = "lz4"
	NameZstd   = "zstd"
	NameSnappy = "snappy"
	NameS2     = "s2"
	NameNone   = "none"
)

// Default is the codec used when none is configured.
const Default = NameLZ4

// Codec is a streaming compressor.
type Codec interface {
	// Name identifies the codec in configuration and manifests.
	Name() string
	// NewWriter returns a writer compressing into w. Close must be called
	// to flush the final frame; it does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader returns a reader decompressing r until EOF. Close
	// releases decoder resources; it does not close r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

var registry = map[string]Codec{
	NameLZ4:    lz4Codec{},
	NameZstd:   zstdCodec{},
	NameSnappy: snappyCodec{},
	NameS2:     s2Codec{},
	NameNone:   noneCodec{},
}

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names lists the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lz4Codec uses the LZ4 frame format.
type lz4Codec struct{}

func (lz4Codec) Name() string { return NameLZ4 }

func (lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return NameZstd }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZSTD encoder: %w", err)
	}
	return enc, nil
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZSTD decoder: %w", err)
	}
	return &zstdReadCloser{dec}, nil
}

// zstdReadCloser wraps a zstd.Decoder to implement io.ReadCloser
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// snappyCodec uses the snappy framing format.
type snappyCodec struct{}

func (snappyCodec) Name() string { return NameSnappy }

func (snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

type s2Codec struct{}

func (s2Codec) Name() string { return NameS2 }

func (s2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(w), nil
}

func (s2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

// noneCodec stores the stream as is.
type noneCodec struct{}

func (noneCodec) Name() string { return NameNone }

func (noneCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noneCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// nopWriteCloser is an io.WriteCloser with a no-op Close method
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
