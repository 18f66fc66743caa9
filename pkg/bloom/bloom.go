// Package bloom implements the per-block membership filter.
//
// Each filter is a fixed 128,966 bit vector probed at three positions
// derived from one MurmurHash3 x64-128 digest with Kirsch-Mitzenmacher
// double hashing. The digest's high half seeds a 128-bit accumulator and
// the low half is the step added between probes; each probe position is
// the accumulator modulo the filter size.
//
// The persisted layout is 1008 little-endian 128-bit words. The in-memory
// vector keeps 2016 64-bit words, which is the same byte sequence.
package bloom

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/bits-and-blooms/bitset"
	"github.com/spaolacci/murmur3"
)

const (
	// Size is the number of addressable bits in a filter.
	Size = 128_966
	// Hashes is the number of probes per word.
	Hashes = 3
	// Words128 is the number of 128-bit words in the persisted form.
	Words128 = (Size + 127) / 128
	// Words64 is the number of 64-bit words backing a filter.
	Words64 = Words128 * 2
	// EncodedSize is the byte size of one persisted filter.
	EncodedSize = Words128 * 16
)

// Filter is a bloom filter. Bits are only ever set.
type Filter struct {
	bits *bitset.BitSet
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{bits: bitset.From(make([]uint64, Words64))}
}

// FromWords wraps a persisted bit vector. words must hold exactly
// Words64 entries, low half of each 128-bit word first.
func FromWords(words []uint64) (*Filter, error) {
	if len(words) != Words64 {
		return nil, fmt.Errorf("bloom: got %d words, expected %d", len(words), Words64)
	}
	return &Filter{bits: bitset.From(words)}, nil
}

// Words exposes the backing 64-bit words for serialization. The slice
// aliases the filter and must not be modified.
func (f *Filter) Words() []uint64 {
	return f.bits.Words()
}

// Insert adds word to the filter.
func (f *Filter) Insert(word string) {
	p := newProbe(word)
	for i := 0; i < Hashes; i++ {
		f.bits.Set(p.position())
		p.next()
	}
}

// Test returns false only if word was never inserted.
func (f *Filter) Test(word string) bool {
	p := newProbe(word)
	for i := 0; i < Hashes; i++ {
		if !f.bits.Test(p.position()) {
			return false
		}
		p.next()
	}
	return true
}

// Count returns the number of set bits.
func (f *Filter) Count() uint {
	return f.bits.Count()
}

// FillRatio returns the fraction of bits set.
func (f *Filter) FillRatio() float64 {
	return float64(f.Count()) / Size
}

// EstimatedFalsePositiveRate estimates the false positive rate from the
// current fill ratio.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return math.Pow(f.FillRatio(), Hashes)
}

// TheoreticalFalsePositiveRate is (1 - e^(-kn/m))^k for n distinct words.
func TheoreticalFalsePositiveRate(n int) float64 {
	return math.Pow(1-math.Exp(-float64(Hashes*n)/Size), Hashes)
}

// probe walks the Kirsch-Mitzenmacher sequence with a 128-bit
// accumulator (hi:lo) and a 64-bit step.
type probe struct {
	hi, lo uint64
	step   uint64
}

func newProbe(word string) probe {
	h1, h2 := murmur3.Sum128([]byte(word))
	return probe{lo: h2, step: h1}
}

func (p *probe) position() uint {
	return uint(bits.Rem64(p.hi, p.lo, Size))
}

func (p *probe) next() {
	var carry uint64
	p.lo, carry = bits.Add64(p.lo, p.step, 0)
	p.hi += carry
}
