package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/766974616c79/zeta/pkg/bloom"
	"github.com/766974616c79/zeta/pkg/codec"
	"github.com/766974616c79/zeta/pkg/common/log"
	"github.com/766974616c79/zeta/pkg/config"
	"github.com/766974616c79/zeta/pkg/format"
	"github.com/766974616c79/zeta/pkg/index"
	"github.com/766974616c79/zeta/pkg/stats"
)

func newTestStore(t *testing.T, root string, mutate func(*config.Config)) *Store {
	t.Helper()
	cfg := config.NewDefaultConfig(root)
	cfg.SyncOnSave = false
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg, WithLogger(log.NewNopLogger()))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

// saveFixture writes two blocks: ["the quick fox"] and ["the lazy dog", "a dog"].
func saveFixture(t *testing.T, s *Store) {
	t.Helper()

	blocks := [][]string{
		{"the quick fox"},
		{"the lazy dog", "a dog"},
	}
	filters := make([]*bloom.Filter, len(blocks))
	indexes := make([]*index.Inverted, len(blocks))
	for i, records := range blocks {
		filters[i] = bloom.New()
		indexes[i] = index.New()
		for ord, rec := range records {
			for _, w := range strings.Fields(rec) {
				filters[i].Insert(w)
				indexes[i].Insert(w, uint32(ord))
			}
		}
	}

	if err := s.BeginSave(); err != nil {
		t.Fatalf("BeginSave failed: %v", err)
	}
	if err := s.WriteBloom(filters); err != nil {
		t.Fatalf("WriteBloom failed: %v", err)
	}
	if err := s.WriteIndex(indexes); err != nil {
		t.Fatalf("WriteIndex failed: %v", err)
	}
	for i, records := range blocks {
		if err := s.WriteRecords(i, records); err != nil {
			t.Fatalf("WriteRecords(%d) failed: %v", i, err)
		}
	}
	if err := s.CommitSave(len(blocks)); err != nil {
		t.Fatalf("CommitSave failed: %v", err)
	}
}

func TestStoreRoundTripAllCodecs(t *testing.T) {
	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			s := newTestStore(t, root, func(c *config.Config) { c.Codec = name })
			saveFixture(t, s)

			reader := newTestStore(t, root, func(c *config.Config) { c.Codec = name })
			m, err := reader.OpenManifest()
			if err != nil {
				t.Fatalf("OpenManifest failed: %v", err)
			}
			if m == nil || m.Codec != name || m.BlockCount != 2 {
				t.Fatalf("unexpected manifest %+v", m)
			}
			for _, artifact := range []string{"bloom.zeta", "indexes.zeta", "blocks/0.zeta", "blocks/1.zeta"} {
				if _, ok := m.Checksums[artifact]; !ok {
					t.Errorf("manifest is missing a checksum for %s", artifact)
				}
			}

			filters, err := reader.ReadBloom()
			if err != nil {
				t.Fatalf("ReadBloom failed: %v", err)
			}
			if len(filters) != 2 || !filters[0].Test("fox") || !filters[1].Test("lazy") {
				t.Errorf("bloom filters did not survive the round trip")
			}

			indexes, err := reader.ReadIndex()
			if err != nil {
				t.Fatalf("ReadIndex failed: %v", err)
			}
			if got, _ := indexes[1].Lookup("dog"); !reflect.DeepEqual(got, []uint32{0, 1}) {
				t.Errorf("expected dog -> [0 1], got %v", got)
			}

			records, err := reader.ReadRecords(1)
			if err != nil {
				t.Fatalf("ReadRecords failed: %v", err)
			}
			if !reflect.DeepEqual(records, []string{"the lazy dog", "a dog"}) {
				t.Errorf("unexpected records %q", records)
			}
		})
	}
}

func TestStoreReadsWithManifestCodec(t *testing.T) {
	root := t.TempDir()
	saveFixture(t, newTestStore(t, root, func(c *config.Config) { c.Codec = codec.NameZstd }))

	// Configured for lz4, but the manifest says zstd
	reader := newTestStore(t, root, nil)
	if _, err := reader.OpenManifest(); err != nil {
		t.Fatalf("OpenManifest failed: %v", err)
	}
	records, err := reader.ReadRecords(0)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if !reflect.DeepEqual(records, []string{"the quick fox"}) {
		t.Errorf("unexpected records %q", records)
	}
}

func TestStoreWithoutManifest(t *testing.T) {
	root := t.TempDir()
	saveFixture(t, newTestStore(t, root, nil))
	if err := config.RemoveManifest(root); err != nil {
		t.Fatalf("failed to remove manifest: %v", err)
	}

	reader := newTestStore(t, root, nil)
	m, err := reader.OpenManifest()
	if err != nil || m != nil {
		t.Fatalf("expected no manifest and no error, got %v, %v", m, err)
	}
	if _, err := reader.ReadIndex(); err != nil {
		t.Errorf("expected the configured codec to read the index, got %v", err)
	}
}

func TestStoreMissingArtifact(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)

	if _, err := s.ReadBloom(); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist for bloom, got %v", err)
	}
	if _, err := s.ReadRecords(3); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist for records, got %v", err)
	}
}

func TestStoreChecksumMismatch(t *testing.T) {
	root := t.TempDir()
	saveFixture(t, newTestStore(t, root, nil))

	bloomPath := filepath.Join(root, "bloom.zeta")
	data, err := os.ReadFile(bloomPath)
	if err != nil {
		t.Fatalf("failed to read bloom artifact: %v", err)
	}
	data[8+100] ^= 0xff
	if err := os.WriteFile(bloomPath, data, 0644); err != nil {
		t.Fatalf("failed to rewrite bloom artifact: %v", err)
	}

	collector := stats.NewAtomicCollector()
	cfg := config.NewDefaultConfig(root)
	verifying, err := New(cfg, WithLogger(log.NewNopLogger()), WithStats(collector))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if _, err := verifying.OpenManifest(); err != nil {
		t.Fatalf("OpenManifest failed: %v", err)
	}
	if _, err := verifying.ReadBloom(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
	if errs := collector.GetStats()["errors"].(map[string]uint64); errs["checksum_mismatch"] != 1 {
		t.Errorf("expected one checksum_mismatch error, got %v", errs)
	}

	// The bit flip is still a well-formed bloom artifact
	lenient := newTestStore(t, root, func(c *config.Config) { c.VerifyChecksums = false })
	if _, err := lenient.OpenManifest(); err != nil {
		t.Fatalf("OpenManifest failed: %v", err)
	}
	if _, err := lenient.ReadBloom(); err != nil {
		t.Errorf("expected read without verification to succeed, got %v", err)
	}
}

func TestStoreCorruptCompressedArtifact(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "indexes.zeta"), []byte("definitely not a frame"), 0644); err != nil {
		t.Fatalf("failed to write index artifact: %v", err)
	}

	s := newTestStore(t, root, nil)
	if _, err := s.ReadIndex(); !errors.Is(err, format.ErrCorruption) {
		t.Errorf("expected ErrCorruption, got %v", err)
	}
}

func TestStoreBeginSaveRemovesManifest(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root, nil)
	saveFixture(t, s)

	if err := s.BeginSave(); err != nil {
		t.Fatalf("BeginSave failed: %v", err)
	}
	if _, err := config.LoadManifest(root); !errors.Is(err, config.ErrManifestNotFound) {
		t.Errorf("expected manifest removed at the start of a save, got %v", err)
	}
}

func TestStoreAtomicWritesLeaveNoTempFiles(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		root := t.TempDir()
		s := newTestStore(t, root, func(c *config.Config) { c.AtomicSave = atomic })
		saveFixture(t, s)

		for _, dir := range []string{root, filepath.Join(root, "blocks")} {
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("failed to list %s: %v", dir, err)
			}
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".tmp") {
					t.Errorf("atomic=%v: leftover temp file %s", atomic, e.Name())
				}
			}
		}
	}
}

func TestStoreTracksBytes(t *testing.T) {
	root := t.TempDir()
	collector := stats.NewAtomicCollector()
	cfg := config.NewDefaultConfig(root)
	cfg.SyncOnSave = false
	s, err := New(cfg, WithLogger(log.NewNopLogger()), WithStats(collector))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	saveFixture(t, s)

	info, err := os.Stat(filepath.Join(root, "bloom.zeta"))
	if err != nil {
		t.Fatalf("failed to stat bloom artifact: %v", err)
	}
	if info.Size() != 8+2*bloom.EncodedSize {
		t.Errorf("expected bloom artifact of %d bytes, got %d", 8+2*bloom.EncodedSize, info.Size())
	}

	written := collector.GetStats()["total_bytes_written"].(uint64)
	if written < uint64(info.Size()) {
		t.Errorf("expected at least %d bytes written, got %d", info.Size(), written)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewDefaultConfig(t.TempDir())
	cfg.Codec = "brotli"
	if _, err := New(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
