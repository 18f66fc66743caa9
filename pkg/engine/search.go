package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/766974616c79/zeta/pkg/block"
	"github.com/766974616c79/zeta/pkg/stats"
	"github.com/766974616c79/zeta/pkg/telemetry"
	"github.com/766974616c79/zeta/pkg/text"
)

// MatchMode selects how the words of a search combine.
type MatchMode int

const (
	// MatchAny returns, per word, every record containing it. A record
	// matching several query words is returned once per word.
	MatchAny MatchMode = iota
	// MatchAll returns each record containing every query word once.
	MatchAll
)

func (m MatchMode) String() string {
	switch m {
	case MatchAny:
		return "any"
	case MatchAll:
		return "all"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// Hit is one search result.
type Hit struct {
	Block   int
	Ordinal uint32
	Text    string
}

// Query returns the records matching any word of q, newest block first
// and, within a block, word by word in query order with ascending
// ordinals. Blocks whose bloom filter rules out any query word are
// skipped without touching disk.
func (e *Engine) Query(q string) ([]string, error) {
	hits, err := e.search(q, MatchAny, stats.OpQuery, telemetry.OpTypeQuery)
	if err != nil {
		return nil, err
	}

	results := make([]string, len(hits))
	for i, h := range hits {
		results[i] = h.Text
	}
	return results, nil
}

// Search is Query with a choice of mode and positional results.
func (e *Engine) Search(q string, mode MatchMode) ([]Hit, error) {
	return e.search(q, mode, stats.OpSearch, telemetry.OpTypeSearch)
}

func (e *Engine) search(q string, mode MatchMode, op stats.OperationType, spanOp string) (hits []Hit, err error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if mode != MatchAny && mode != MatchAll {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMatchMode, int(mode))
	}

	ctx, done := e.metrics.startOperation(context.Background(), spanOp,
		attribute.String(telemetry.AttrMatchMode, mode.String()))
	defer func() { done(err) }()
	start := time.Now()

	words := text.Words(q)
	if len(words) == 0 {
		return nil, nil
	}
	distinct := text.Unique(words)

	for i := len(e.blocks) - 1; i >= 0; i-- {
		b := e.blocks[i]

		skip := !b.MayContainAll(distinct)
		e.stats.TrackBlockProbe(skip)
		e.metrics.recordProbe(ctx, b.ID(), skip)
		if skip {
			continue
		}

		if err = e.materialize(ctx, b); err != nil {
			e.stats.TrackError(string(op) + "_error")
			return nil, err
		}

		switch mode {
		case MatchAny:
			for _, w := range words {
				ordinals, _ := b.Index().Lookup(w)
				hits = appendHits(hits, b, ordinals)
			}
		case MatchAll:
			hits = appendHits(hits, b, b.Index().Intersect(distinct))
		}
	}

	e.stats.TrackOperationWithLatency(op, uint64(time.Since(start).Nanoseconds()))
	return hits, nil
}

func appendHits(hits []Hit, b *block.Block, ordinals []uint32) []Hit {
	for _, ord := range ordinals {
		rec, _ := b.Record(ord)
		hits = append(hits, Hit{Block: b.ID(), Ordinal: ord, Text: rec})
	}
	return hits
}
