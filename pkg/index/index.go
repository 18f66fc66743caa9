// Package index implements the per-block inverted index mapping each word
// to the sorted, duplicate-free ordinals of the records that contain it.
package index

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Inverted is a word → ordinals index for one block.
type Inverted struct {
	postings map[string]*roaring.Bitmap
}

// New creates an empty index.
func New() *Inverted {
	return &Inverted{postings: make(map[string]*roaring.Bitmap)}
}

// Insert records that the record at ordinal contains word. Repeated
// inserts of the same pair are ignored.
func (ix *Inverted) Insert(word string, ordinal uint32) {
	bm, ok := ix.postings[word]
	if !ok {
		ix.postings[word] = roaring.BitmapOf(ordinal)
		return
	}
	bm.CheckedAdd(ordinal)
}

// Set replaces the posting list of word. ordinals must be strictly
// ascending.
func (ix *Inverted) Set(word string, ordinals []uint32) error {
	for i := 1; i < len(ordinals); i++ {
		if ordinals[i] <= ordinals[i-1] {
			return fmt.Errorf("ordinals for %q not strictly ascending at %d", word, i)
		}
	}
	bm := roaring.New()
	bm.AddMany(ordinals)
	ix.postings[word] = bm
	return nil
}

// Lookup returns the ordinals of records containing word in ascending
// order, or false if word never occurred in the block.
func (ix *Inverted) Lookup(word string) ([]uint32, bool) {
	bm, ok := ix.postings[word]
	if !ok {
		return nil, false
	}
	return bm.ToArray(), true
}

// Contains reports whether word occurs in the block.
func (ix *Inverted) Contains(word string) bool {
	_, ok := ix.postings[word]
	return ok
}

// Intersect returns the ordinals of records containing every word, in
// ascending order. An empty word list yields nothing.
func (ix *Inverted) Intersect(words []string) []uint32 {
	if len(words) == 0 {
		return nil
	}
	bms := make([]*roaring.Bitmap, 0, len(words))
	for _, w := range words {
		bm, ok := ix.postings[w]
		if !ok {
			return nil
		}
		bms = append(bms, bm)
	}
	if len(bms) == 1 {
		return bms[0].ToArray()
	}
	return roaring.FastAnd(bms...).ToArray()
}

// Len returns the number of distinct words.
func (ix *Inverted) Len() int {
	return len(ix.postings)
}

// Words returns the distinct words in ascending byte order.
func (ix *Inverted) Words() []string {
	words := make([]string, 0, len(ix.postings))
	for w := range ix.postings {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Range calls fn for every word in ascending byte order with its
// ordinals. Iteration stops at the first error.
func (ix *Inverted) Range(fn func(word string, ordinals []uint32) error) error {
	for _, w := range ix.Words() {
		if err := fn(w, ix.postings[w].ToArray()); err != nil {
			return err
		}
	}
	return nil
}

// MaxOrdinal returns the largest ordinal referenced by any word, or false
// if the index is empty.
func (ix *Inverted) MaxOrdinal() (uint32, bool) {
	var (
		max   uint32
		found bool
	)
	for _, bm := range ix.postings {
		if bm.IsEmpty() {
			continue
		}
		if m := bm.Maximum(); !found || m > max {
			max = m
			found = true
		}
	}
	return max, found
}
