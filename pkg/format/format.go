// Package format encodes and decodes the three artifacts that persist a
// database: the bloom artifact, the index artifact and one records
// artifact per block.
//
// Every integer is an unsigned 64-bit little-endian value.
//
//	bloom:   block_count, then per block 1008 little-endian 128-bit words
//	index:   block_count, then per block distinct_word_count and per word
//	         word_len, word_bytes, ordinal_count, ordinal...
//	records: record_count, then per record byte_len, utf8_bytes
//
// Compression is not handled here; callers wrap the index and records
// streams in a codec.
package format

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/766974616c79/zeta/pkg/bloom"
	"github.com/766974616c79/zeta/pkg/index"
)

var (
	// ErrCorruption indicates an artifact does not match the layout
	ErrCorruption = errors.New("artifact corruption detected")
)

// preallocLimit caps slice preallocation from untrusted counts.
const preallocLimit = 1024

// encoder writes little-endian fields with a sticky error.
type encoder struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: bufio.NewWriterSize(w, 64*1024)}
}

func (e *encoder) u64(v uint64) {
	if e.err != nil {
		return
	}
	binary.LittleEndian.PutUint64(e.buf[:], v)
	_, e.err = e.w.Write(e.buf[:])
}

func (e *encoder) bytes(s string) {
	e.u64(uint64(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

func (e *encoder) flush() error {
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

// decoder reads little-endian fields. Any short read is corruption.
type decoder struct {
	r   *bufio.Reader
	buf [8]byte
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

func (d *decoder) u64(field string) (uint64, error) {
	if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
		return 0, truncated(field, err)
	}
	return binary.LittleEndian.Uint64(d.buf[:]), nil
}

// text reads a length-prefixed UTF-8 string. The body is read through a
// limit so a corrupt length cannot force a large allocation up front.
func (d *decoder) text(field string) (string, error) {
	n, err := d.u64(field + " length")
	if err != nil {
		return "", err
	}
	if n > math.MaxInt64 {
		return "", fmt.Errorf("%w: %s length %d exceeds remaining bytes", ErrCorruption, field, n)
	}
	data, err := io.ReadAll(io.LimitReader(d.r, int64(n)))
	if err != nil {
		return "", truncated(field, err)
	}
	if uint64(len(data)) != n {
		return "", fmt.Errorf("%w: %s length %d exceeds remaining %d bytes", ErrCorruption, field, n, len(data))
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrCorruption, field)
	}
	return string(data), nil
}

// end verifies nothing follows the declared content.
func (d *decoder) end() error {
	if _, err := d.r.ReadByte(); err == nil {
		return fmt.Errorf("%w: trailing bytes after artifact content", ErrCorruption)
	} else if err != io.EOF {
		return err
	}
	return nil
}

func truncated(field string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: truncated reading %s", ErrCorruption, field)
	}
	return fmt.Errorf("reading %s: %w", field, err)
}

func capHint(n uint64) int {
	if n > preallocLimit {
		return preallocLimit
	}
	return int(n)
}

// WriteBloom writes the bloom artifact for filters in block order.
func WriteBloom(w io.Writer, filters []*bloom.Filter) error {
	enc := newEncoder(w)
	enc.u64(uint64(len(filters)))
	for _, f := range filters {
		for _, word := range f.Words()[:bloom.Words64] {
			enc.u64(word)
		}
	}
	return enc.flush()
}

// ReadBloom reads a bloom artifact, returning one filter per block.
func ReadBloom(r io.Reader) ([]*bloom.Filter, error) {
	dec := newDecoder(r)
	count, err := dec.u64("block count")
	if err != nil {
		return nil, err
	}

	filters := make([]*bloom.Filter, 0, capHint(count))
	for i := uint64(0); i < count; i++ {
		words := make([]uint64, bloom.Words64)
		if err := binary.Read(dec.r, binary.LittleEndian, words); err != nil {
			return nil, truncated(fmt.Sprintf("bloom filter of block %d", i), err)
		}
		f, err := bloom.FromWords(words)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
		}
		filters = append(filters, f)
	}

	if err := dec.end(); err != nil {
		return nil, err
	}
	return filters, nil
}

// WriteIndex writes the index artifact for indexes in block order. Words
// are written in ascending byte order.
func WriteIndex(w io.Writer, indexes []*index.Inverted) error {
	enc := newEncoder(w)
	enc.u64(uint64(len(indexes)))
	for _, ix := range indexes {
		enc.u64(uint64(ix.Len()))
		err := ix.Range(func(word string, ordinals []uint32) error {
			enc.bytes(word)
			enc.u64(uint64(len(ordinals)))
			for _, ord := range ordinals {
				enc.u64(uint64(ord))
			}
			return enc.err
		})
		if err != nil {
			return err
		}
	}
	return enc.flush()
}

// ReadIndex reads an index artifact, returning one index per block.
func ReadIndex(r io.Reader) ([]*index.Inverted, error) {
	dec := newDecoder(r)
	count, err := dec.u64("block count")
	if err != nil {
		return nil, err
	}

	indexes := make([]*index.Inverted, 0, capHint(count))
	for b := uint64(0); b < count; b++ {
		ix, err := readBlockIndex(dec, b)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, ix)
	}

	if err := dec.end(); err != nil {
		return nil, err
	}
	return indexes, nil
}

func readBlockIndex(dec *decoder, block uint64) (*index.Inverted, error) {
	words, err := dec.u64(fmt.Sprintf("word count of block %d", block))
	if err != nil {
		return nil, err
	}

	ix := index.New()
	for i := uint64(0); i < words; i++ {
		word, err := dec.text("word")
		if err != nil {
			return nil, fmt.Errorf("word %d of block %d: %w", i, block, err)
		}
		if ix.Contains(word) {
			return nil, fmt.Errorf("%w: duplicate word %q in block %d", ErrCorruption, word, block)
		}

		n, err := dec.u64("ordinal count")
		if err != nil {
			return nil, fmt.Errorf("word %q of block %d: %w", word, block, err)
		}
		ordinals := make([]uint32, 0, capHint(n))
		for j := uint64(0); j < n; j++ {
			ord, err := dec.u64("ordinal")
			if err != nil {
				return nil, fmt.Errorf("word %q of block %d: %w", word, block, err)
			}
			if ord > math.MaxUint32 {
				return nil, fmt.Errorf("%w: ordinal %d of %q out of range", ErrCorruption, ord, word)
			}
			ordinals = append(ordinals, uint32(ord))
		}
		if err := ix.Set(word, ordinals); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
		}
	}
	return ix, nil
}

// WriteRecords writes a records artifact.
func WriteRecords(w io.Writer, records []string) error {
	enc := newEncoder(w)
	enc.u64(uint64(len(records)))
	for _, rec := range records {
		enc.bytes(rec)
	}
	return enc.flush()
}

// ReadRecords reads a records artifact.
func ReadRecords(r io.Reader) ([]string, error) {
	dec := newDecoder(r)
	count, err := dec.u64("record count")
	if err != nil {
		return nil, err
	}

	records := make([]string, 0, capHint(count))
	for i := uint64(0); i < count; i++ {
		rec, err := dec.text("record")
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}

	if err := dec.end(); err != nil {
		return nil, err
	}
	return records, nil
}
