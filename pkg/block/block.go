// Package block implements one fixed-capacity block of records together
// with its bloom filter and inverted index.
//
// A block is either resident, holding its records in memory, or cold,
// holding only the bloom filter and index read at load time. A cold block
// becomes resident the first time a query needs its records.
package block

import (
	"fmt"

	"github.com/766974616c79/zeta/pkg/bloom"
	"github.com/766974616c79/zeta/pkg/format"
	"github.com/766974616c79/zeta/pkg/index"
	"github.com/766974616c79/zeta/pkg/text"
)

// RecordSource loads the records of a block by id.
type RecordSource interface {
	ReadRecords(id int) ([]string, error)
}

// state is either cold or *resident.
type state interface {
	isState()
}

type cold struct{}

type resident struct {
	records []string
}

func (cold) isState()      {}
func (*resident) isState() {}

// Block holds up to the database's block capacity of records.
type Block struct {
	id    int
	bloom *bloom.Filter
	index *index.Inverted
	state state
}

// New creates an empty resident block.
func New(id int) *Block {
	return &Block{
		id:    id,
		bloom: bloom.New(),
		index: index.New(),
		state: &resident{},
	}
}

// NewCold creates a block whose records are still on disk.
func NewCold(id int, f *bloom.Filter, ix *index.Inverted) *Block {
	return &Block{
		id:    id,
		bloom: f,
		index: ix,
		state: cold{},
	}
}

// ID returns the block's position in the database.
func (b *Block) ID() int { return b.id }

// Bloom returns the block's bloom filter.
func (b *Block) Bloom() *bloom.Filter { return b.bloom }

// Index returns the block's inverted index.
func (b *Block) Index() *index.Inverted { return b.index }

// Resident reports whether the records are in memory.
func (b *Block) Resident() bool {
	_, ok := b.state.(*resident)
	return ok
}

// Len returns the record count. It is only known for resident blocks.
func (b *Block) Len() (int, bool) {
	r, ok := b.state.(*resident)
	if !ok {
		return 0, false
	}
	return len(r.records), true
}

// Insert appends record and indexes each of its words under the new
// ordinal. It panics on a cold block; callers materialize first.
func (b *Block) Insert(record string) uint32 {
	r, ok := b.state.(*resident)
	if !ok {
		panic(fmt.Sprintf("block %d: insert into a cold block", b.id))
	}

	ordinal := uint32(len(r.records))
	for _, word := range text.Words(record) {
		b.bloom.Insert(word)
		b.index.Insert(word, ordinal)
	}
	r.records = append(r.records, record)
	return ordinal
}

// MayContain reports whether word might occur in the block.
func (b *Block) MayContain(word string) bool {
	return b.bloom.Test(word)
}

// MayContainAll reports whether every word might occur in the block.
func (b *Block) MayContainAll(words []string) bool {
	for _, word := range words {
		if !b.bloom.Test(word) {
			return false
		}
	}
	return true
}

// Materialize reads the block's records from src. It does nothing for a
// resident block. On error the block stays cold.
func (b *Block) Materialize(src RecordSource) error {
	if b.Resident() {
		return nil
	}

	records, err := src.ReadRecords(b.id)
	if err != nil {
		return fmt.Errorf("block %d: %w", b.id, err)
	}

	if max, ok := b.index.MaxOrdinal(); ok && int(max) >= len(records) {
		return fmt.Errorf("block %d: %w: index references ordinal %d of %d records",
			b.id, format.ErrCorruption, max, len(records))
	}

	b.state = &resident{records: records}
	return nil
}

// Record returns the record at ordinal. The block must be resident.
func (b *Block) Record(ordinal uint32) (string, bool) {
	r, ok := b.state.(*resident)
	if !ok || int(ordinal) >= len(r.records) {
		return "", false
	}
	return r.records[ordinal], true
}

// Records returns the resident records, or nil for a cold block. The
// slice must not be modified.
func (b *Block) Records() []string {
	if r, ok := b.state.(*resident); ok {
		return r.records
	}
	return nil
}

// Lookup returns the records containing word in ascending ordinal order.
// The block must be resident.
func (b *Block) Lookup(word string) []string {
	ordinals, ok := b.index.Lookup(word)
	if !ok {
		return nil
	}
	r, ok := b.state.(*resident)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(ordinals))
	for _, ord := range ordinals {
		out = append(out, r.records[ord])
	}
	return out
}
