package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest describes the artifacts written by the last successful save.
// Checksums maps artifact paths relative to the storage root to their
// xxhash64 digests.
type Manifest struct {
	Version       int               `json:"version"`
	Timestamp     int64             `json:"timestamp"`
	Codec         string            `json:"codec"`
	BlockCapacity int               `json:"block_capacity"`
	BlockCount    int               `json:"block_count"`
	Checksums     map[string]uint64 `json:"checksums,omitempty"`
}

// NewManifest creates a manifest for a save using cfg.
func NewManifest(cfg *Config, blockCount int) *Manifest {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return &Manifest{
		Version:       CurrentManifestVersion,
		Timestamp:     time.Now().Unix(),
		Codec:         cfg.Codec,
		BlockCapacity: cfg.BlockCapacity,
		BlockCount:    blockCount,
		Checksums:     make(map[string]uint64),
	}
}

// Validate checks the manifest fields.
func (m *Manifest) Validate() error {
	if m.Version <= 0 || m.Version > CurrentManifestVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
	}
	if m.Codec == "" {
		return fmt.Errorf("%w: codec not specified", ErrInvalidManifest)
	}
	if m.BlockCapacity <= 0 {
		return fmt.Errorf("%w: block capacity must be positive", ErrInvalidManifest)
	}
	if m.BlockCount < 0 {
		return fmt.Errorf("%w: negative block count", ErrInvalidManifest)
	}
	return nil
}

// LoadManifest loads the manifest from the storage root
func LoadManifest(root string) (*Manifest, error) {
	manifestPath := filepath.Join(root, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Save persists the manifest under root, replacing any previous one
func (m *Manifest) Save(root string) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(root, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// RemoveManifest deletes the manifest under root if present.
func RemoveManifest(root string) error {
	err := os.Remove(filepath.Join(root, DefaultManifestFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}
