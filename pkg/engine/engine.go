// Package engine is the database: an append-only sequence of blocks with
// word queries answered newest block first.
//
// An Engine is not safe for concurrent use. Callers that share one across
// goroutines must serialize access themselves.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/766974616c79/zeta/pkg/block"
	"github.com/766974616c79/zeta/pkg/bloom"
	"github.com/766974616c79/zeta/pkg/common/log"
	"github.com/766974616c79/zeta/pkg/config"
	"github.com/766974616c79/zeta/pkg/format"
	"github.com/766974616c79/zeta/pkg/index"
	"github.com/766974616c79/zeta/pkg/stats"
	"github.com/766974616c79/zeta/pkg/storage"
	"github.com/766974616c79/zeta/pkg/telemetry"
)

// Engine holds the blocks of one database. Block 0 is the oldest; only the
// last block accepts inserts.
type Engine struct {
	cfg     *config.Config
	store   *storage.Store
	blocks  []*block.Block
	logger  log.Logger
	stats   stats.Collector
	metrics *engineMetrics
	tel     telemetry.Telemetry

	closed atomic.Bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger. The storage layer logs through a child of it.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStats sets the statistics collector
func WithStats(collector stats.Collector) Option {
	return func(e *Engine) {
		e.stats = collector
	}
}

// WithTelemetry sets the telemetry sink. Close shuts it down.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(e *Engine) {
		e.tel = tel
	}
}

// New opens an empty engine rooted at root with the default configuration.
func New(root string, opts ...Option) (*Engine, error) {
	return Open(config.NewDefaultConfig(root), opts...)
}

// Open creates an empty engine for cfg. Nothing is read from disk until
// Load is called.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: log.GetDefaultLogger(),
		stats:  stats.NewAtomicCollector(),
		tel:    telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newEngineMetrics(e.tel)

	store, err := storage.New(cfg,
		storage.WithLogger(e.logger.WithField("component", telemetry.ComponentStorage)),
		storage.WithStats(e.stats),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	e.store = store
	e.logger = e.logger.WithField("component", telemetry.ComponentEngine)

	return e, nil
}

// Root returns the storage root directory
func (e *Engine) Root() string {
	return e.store.Root()
}

// Len returns the number of blocks.
func (e *Engine) Len() int {
	return len(e.blocks)
}

// Insert appends text to the tail block, starting a new block when the
// tail is full. A cold tail left by Load is read from disk first so that
// ordinals continue where the saved block ended; that read is the only
// way Insert can fail besides a closed engine.
func (e *Engine) Insert(text string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	start := time.Now()

	tail, err := e.writableTail()
	if err != nil {
		e.stats.TrackError("insert_error")
		return err
	}
	tail.Insert(text)

	e.stats.TrackOperationWithLatency(stats.OpInsert, uint64(time.Since(start).Nanoseconds()))
	return nil
}

func (e *Engine) writableTail() (*block.Block, error) {
	if len(e.blocks) > 0 {
		tail := e.blocks[len(e.blocks)-1]
		if err := e.materialize(context.Background(), tail); err != nil {
			return nil, err
		}
		if n, _ := tail.Len(); n < e.cfg.BlockCapacity {
			return tail, nil
		}
	}

	tail := block.New(len(e.blocks))
	e.blocks = append(e.blocks, tail)
	e.stats.TrackBlockCreated()
	e.logger.Info("Created block %d", tail.ID())
	return tail, nil
}

// materialize makes b resident, reading its records through the store.
func (e *Engine) materialize(ctx context.Context, b *block.Block) (err error) {
	if b.Resident() {
		return nil
	}
	start := time.Now()
	_, done := e.metrics.startOperation(ctx, telemetry.OpTypeMaterialize, attribute.Int(telemetry.AttrBlockID, b.ID()))
	defer func() { done(err) }()

	if err = b.Materialize(e.store); err != nil {
		e.stats.TrackError("materialize_error")
		e.logger.Error("Failed to materialize block %d: %v", b.ID(), err)
		return err
	}

	n, _ := b.Len()
	e.stats.TrackMaterialization(uint64(n))
	e.stats.TrackOperationWithLatency(stats.OpMaterialize, uint64(time.Since(start).Nanoseconds()))
	e.logger.Debug("Materialized block %d with %d records", b.ID(), n)
	return nil
}

// Load replaces the in-memory blocks with the saved bloom and index
// artifacts. Every loaded block starts cold. On error the in-memory state
// is unchanged.
func (e *Engine) Load() (err error) {
	if e.closed.Load() {
		return ErrClosed
	}
	_, done := e.metrics.startOperation(context.Background(), telemetry.OpTypeLoad)
	defer func() { done(err) }()

	start := e.stats.StartLoad()

	manifest, err := e.store.OpenManifest()
	if err != nil {
		return e.loadFailed(err)
	}

	filters, err := e.store.ReadBloom()
	if err != nil {
		return e.loadFailed(err)
	}

	indexes, err := e.store.ReadIndex()
	if err != nil {
		return e.loadFailed(err)
	}

	if len(indexes) != len(filters) {
		return e.loadFailed(fmt.Errorf("%w: index artifact has %d blocks, bloom artifact has %d",
			format.ErrCorruption, len(indexes), len(filters)))
	}

	if manifest != nil {
		if manifest.BlockCount != len(filters) {
			return e.loadFailed(fmt.Errorf("%w: manifest records %d blocks, artifacts hold %d",
				format.ErrCorruption, manifest.BlockCount, len(filters)))
		}
		if manifest.BlockCapacity != e.cfg.BlockCapacity {
			e.logger.Warn("Saved with block capacity %d, configured %d", manifest.BlockCapacity, e.cfg.BlockCapacity)
		}
	}

	blocks := make([]*block.Block, len(filters))
	for i := range filters {
		blocks[i] = block.NewCold(i, filters[i], indexes[i])
	}
	e.blocks = blocks

	e.stats.FinishLoad(start, uint64(len(blocks)), manifest != nil)
	e.stats.TrackOperationWithLatency(stats.OpLoad, uint64(time.Since(start).Nanoseconds()))
	e.logger.Info("Loaded %d blocks from %s", len(blocks), e.Root())
	return nil
}

func (e *Engine) loadFailed(err error) error {
	e.stats.TrackError("load_error")
	e.logger.Error("Load failed: %v", err)
	return err
}

// Save writes the bloom artifact, the index artifact and one records
// artifact per block, then the manifest. Cold blocks are read first so
// their records are written back. Save stops at the first error.
func (e *Engine) Save() (err error) {
	if e.closed.Load() {
		return ErrClosed
	}
	ctx, done := e.metrics.startOperation(context.Background(), telemetry.OpTypeSave,
		attribute.String(telemetry.AttrCodec, e.cfg.Codec))
	defer func() { done(err) }()

	start := time.Now()
	if err = e.save(ctx); err != nil {
		e.stats.TrackError("save_error")
		e.logger.Error("Save failed: %v", err)
		return err
	}

	e.stats.TrackOperationWithLatency(stats.OpSave, uint64(time.Since(start).Nanoseconds()))
	e.logger.Info("Saved %d blocks to %s", len(e.blocks), e.Root())
	return nil
}

func (e *Engine) save(ctx context.Context) error {
	for _, b := range e.blocks {
		if err := e.materialize(ctx, b); err != nil {
			return err
		}
	}

	if err := e.store.BeginSave(); err != nil {
		return err
	}

	filters := make([]*bloom.Filter, len(e.blocks))
	indexes := make([]*index.Inverted, len(e.blocks))
	for i, b := range e.blocks {
		filters[i] = b.Bloom()
		indexes[i] = b.Index()
	}

	if err := e.store.WriteBloom(filters); err != nil {
		return err
	}
	if err := e.store.WriteIndex(indexes); err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.SaveWorkers)
	for _, b := range e.blocks {
		id, records := b.ID(), b.Records()
		g.Go(func() error {
			return e.store.WriteRecords(id, records)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return e.store.CommitSave(len(e.blocks))
}

// BlockInfo describes one block for diagnostics.
type BlockInfo struct {
	ID       int
	Resident bool
	// Records is -1 while the block is cold
	Records int
	Words   int
	// BloomFill is the fraction of bloom bits set
	BloomFill float64
}

// Blocks describes every block, oldest first.
func (e *Engine) Blocks() []BlockInfo {
	infos := make([]BlockInfo, len(e.blocks))
	for i, b := range e.blocks {
		n, ok := b.Len()
		if !ok {
			n = -1
		}
		infos[i] = BlockInfo{
			ID:        b.ID(),
			Resident:  b.Resident(),
			Records:   n,
			Words:     b.Index().Len(),
			BloomFill: b.Bloom().FillRatio(),
		}
	}
	return infos
}

// Stats returns the collector's statistics plus the current block layout.
func (e *Engine) Stats() map[string]interface{} {
	s := e.stats.GetStats()

	resident := 0
	for _, b := range e.blocks {
		if b.Resident() {
			resident++
		}
	}
	s["blocks"] = len(e.blocks)
	s["resident_blocks"] = resident
	s["codec"] = e.cfg.Codec
	s["root"] = e.Root()
	return s
}

// Close releases the blocks and shuts down telemetry. Unsaved records are
// lost. Closing twice is a no-op.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}

	e.blocks = nil
	if err := e.metrics.shutdown(context.Background()); err != nil {
		e.stats.TrackError("close_error")
		return fmt.Errorf("failed to shut down telemetry: %w", err)
	}
	return nil
}
