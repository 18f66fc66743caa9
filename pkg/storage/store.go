// Package storage owns the on-disk side of a database: where artifacts
// live, how they are compressed, written atomically and checksummed.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/766974616c79/zeta/pkg/bloom"
	"github.com/766974616c79/zeta/pkg/codec"
	"github.com/766974616c79/zeta/pkg/common/log"
	"github.com/766974616c79/zeta/pkg/config"
	"github.com/766974616c79/zeta/pkg/format"
	"github.com/766974616c79/zeta/pkg/index"
	"github.com/766974616c79/zeta/pkg/stats"
)

var (
	// ErrChecksumMismatch indicates an artifact differs from the digest
	// recorded in the manifest
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")
)

// Store reads and writes the artifacts under one storage root.
//
// Reads use the codec named by the last loaded manifest, or the configured
// codec when there is none. Writes always use the configured codec.
type Store struct {
	cfg    *config.Config
	logger log.Logger
	stats  stats.Collector

	readCodec  codec.Codec
	writeCodec codec.Codec
	manifest   *config.Manifest

	mu        sync.Mutex
	checksums map[string]uint64
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store's logger
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStats sets the collector that receives byte counts and errors
func WithStats(collector stats.Collector) Option {
	return func(s *Store) {
		s.stats = collector
	}
}

// New creates a store for cfg.
func New(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := codec.Get(cfg.Codec)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:        cfg,
		logger:     log.GetDefaultLogger().WithField("component", "storage"),
		stats:      stats.NewAtomicCollector(),
		readCodec:  c,
		writeCodec: c,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the storage root directory
func (s *Store) Root() string {
	return s.cfg.Root
}

// Manifest returns the manifest from the last OpenManifest, or nil.
func (s *Store) Manifest() *config.Manifest {
	return s.manifest
}

// OpenManifest loads the manifest if one exists and switches reads to its
// codec. A missing manifest is not an error: it returns nil and reads fall
// back to the configured codec without checksum verification.
func (s *Store) OpenManifest() (*config.Manifest, error) {
	m, err := config.LoadManifest(s.cfg.Root)
	if errors.Is(err, config.ErrManifestNotFound) {
		s.logger.Warn("No manifest under %s, using codec %s", s.cfg.Root, s.writeCodec.Name())
		s.manifest = nil
		s.readCodec = s.writeCodec
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c, err := codec.Get(m.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidManifest, err)
	}

	s.manifest = m
	s.readCodec = c
	return m, nil
}

func (s *Store) bloomName() string { return s.cfg.BloomFile }
func (s *Store) indexName() string { return s.cfg.IndexFile }

// recordsName is slash-separated on every platform since it doubles as
// the manifest checksum key.
func (s *Store) recordsName(id int) string {
	return path.Join(s.cfg.BlocksDir, strconv.Itoa(id)+".zeta")
}

func (s *Store) pathOf(name string) string {
	return filepath.Join(s.cfg.Root, filepath.FromSlash(name))
}

// ReadBloom reads the bloom artifact.
func (s *Store) ReadBloom() ([]*bloom.Filter, error) {
	data, err := s.readArtifact(s.bloomName())
	if err != nil {
		return nil, err
	}

	filters, err := format.ReadBloom(bytes.NewReader(data))
	if err != nil {
		return nil, s.decodeError(s.bloomName(), err)
	}
	return filters, nil
}

// ReadIndex reads the index artifact.
func (s *Store) ReadIndex() ([]*index.Inverted, error) {
	var indexes []*index.Inverted
	err := s.readCompressed(s.indexName(), func(r io.Reader) error {
		var err error
		indexes, err = format.ReadIndex(r)
		return err
	})
	return indexes, err
}

// ReadRecords reads the records artifact for block id.
func (s *Store) ReadRecords(id int) ([]string, error) {
	var records []string
	err := s.readCompressed(s.recordsName(id), func(r io.Reader) error {
		var err error
		records, err = format.ReadRecords(r)
		return err
	})
	return records, err
}

func (s *Store) readCompressed(name string, decode func(io.Reader) error) error {
	data, err := s.readArtifact(name)
	if err != nil {
		return err
	}

	rc, err := s.readCodec.NewReader(bytes.NewReader(data))
	if err != nil {
		return s.decodeError(name, err)
	}
	defer rc.Close()

	if err := decode(rc); err != nil {
		return s.decodeError(name, err)
	}
	return nil
}

// readArtifact loads a whole artifact and verifies it against the manifest.
func (s *Store) readArtifact(name string) ([]byte, error) {
	data, err := os.ReadFile(s.pathOf(name))
	if err != nil {
		s.stats.TrackError("read_error")
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	s.stats.TrackBytes(false, uint64(len(data)))

	if s.manifest != nil && s.cfg.VerifyChecksums {
		if want, ok := s.manifest.Checksums[name]; ok {
			if got := xxhash.Sum64(data); got != want {
				s.stats.TrackError("checksum_mismatch")
				return nil, fmt.Errorf("%w: %s has %016x, manifest records %016x", ErrChecksumMismatch, name, got, want)
			}
		}
	}
	return data, nil
}

// decodeError reports every failure to decode bytes already in memory as
// corruption, codec errors included.
func (s *Store) decodeError(name string, err error) error {
	s.stats.TrackError("corruption")
	if errors.Is(err, format.ErrCorruption) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%w: %s: %v", format.ErrCorruption, name, err)
}

// BeginSave prepares the root for a new set of artifacts. The old manifest
// is removed first so a save that fails part way is never mistaken for a
// complete one.
func (s *Store) BeginSave() error {
	if err := config.RemoveManifest(s.cfg.Root); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.BlocksPath(), 0755); err != nil {
		return fmt.Errorf("failed to create blocks directory: %w", err)
	}

	s.mu.Lock()
	s.checksums = make(map[string]uint64)
	s.mu.Unlock()
	return nil
}

// WriteBloom writes the bloom artifact. It is never compressed.
func (s *Store) WriteBloom(filters []*bloom.Filter) error {
	return s.writeArtifact(s.bloomName(), false, func(w io.Writer) error {
		return format.WriteBloom(w, filters)
	})
}

// WriteIndex writes the index artifact through the configured codec.
func (s *Store) WriteIndex(indexes []*index.Inverted) error {
	return s.writeArtifact(s.indexName(), true, func(w io.Writer) error {
		return format.WriteIndex(w, indexes)
	})
}

// WriteRecords writes block id's records artifact through the configured
// codec. It is safe to call concurrently for different blocks.
func (s *Store) WriteRecords(id int, records []string) error {
	return s.writeArtifact(s.recordsName(id), true, func(w io.Writer) error {
		return format.WriteRecords(w, records)
	})
}

// CommitSave writes the manifest describing the artifacts written since
// BeginSave. Reads switch to the new manifest.
func (s *Store) CommitSave(blockCount int) error {
	m := config.NewManifest(s.cfg, blockCount)

	s.mu.Lock()
	for name, sum := range s.checksums {
		m.Checksums[name] = sum
	}
	s.mu.Unlock()

	if err := m.Save(s.cfg.Root); err != nil {
		return err
	}

	s.manifest = m
	s.readCodec = s.writeCodec
	return nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func (s *Store) writeArtifact(name string, compressed bool, encode func(io.Writer) error) error {
	af, err := createArtifactFile(s.pathOf(name), s.cfg.AtomicSave)
	if err != nil {
		s.stats.TrackError("write_error")
		return err
	}

	hasher := xxhash.New()
	counter := &countingWriter{}
	out := io.MultiWriter(af, hasher, counter)

	if err := s.encode(out, compressed, encode); err != nil {
		af.Abort()
		s.stats.TrackError("write_error")
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := af.Commit(s.cfg.SyncOnSave); err != nil {
		s.stats.TrackError("write_error")
		return err
	}

	s.stats.TrackBytes(true, uint64(counter.n))

	s.mu.Lock()
	if s.checksums != nil {
		s.checksums[name] = hasher.Sum64()
	}
	s.mu.Unlock()

	s.logger.Debug("Wrote %s (%d bytes)", name, counter.n)
	return nil
}

func (s *Store) encode(w io.Writer, compressed bool, encode func(io.Writer) error) error {
	if !compressed {
		return encode(w)
	}

	cw, err := s.writeCodec.NewWriter(w)
	if err != nil {
		return err
	}
	if err := encode(cw); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}
