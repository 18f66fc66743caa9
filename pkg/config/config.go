package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/766974616c79/zeta/pkg/codec"
)

const (
	DefaultManifestFileName = "MANIFEST"
	CurrentManifestVersion  = 1

	DefaultBloomFile     = "bloom.zeta"
	DefaultIndexFile     = "indexes.zeta"
	DefaultBlocksDir     = "blocks"
	DefaultBlockCapacity = 8192
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

type Config struct {
	Version int `json:"version" yaml:"version"`

	// Storage layout
	Root      string `json:"root" yaml:"root"`
	BloomFile string `json:"bloom_file" yaml:"bloom_file"`
	IndexFile string `json:"index_file" yaml:"index_file"`
	BlocksDir string `json:"blocks_dir" yaml:"blocks_dir"`

	// Block configuration
	BlockCapacity int `json:"block_capacity" yaml:"block_capacity"`

	// Persistence configuration
	Codec           string `json:"codec" yaml:"codec"`
	AtomicSave      bool   `json:"atomic_save" yaml:"atomic_save"`
	SyncOnSave      bool   `json:"sync_on_save" yaml:"sync_on_save"`
	SaveWorkers     int    `json:"save_workers" yaml:"save_workers"`
	VerifyChecksums bool   `json:"verify_checksums" yaml:"verify_checksums"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(root string) *Config {
	return &Config{
		Version: CurrentManifestVersion,

		Root:      root,
		BloomFile: DefaultBloomFile,
		IndexFile: DefaultIndexFile,
		BlocksDir: DefaultBlocksDir,

		BlockCapacity: DefaultBlockCapacity,

		Codec:           codec.Default,
		AtomicSave:      true,
		SyncOnSave:      true,
		SaveWorkers:     1, // Strictly sequential records writes
		VerifyChecksums: true,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.Root == "" {
		return fmt.Errorf("%w: storage root not specified", ErrInvalidConfig)
	}

	if c.BloomFile == "" || c.IndexFile == "" || c.BlocksDir == "" {
		return fmt.Errorf("%w: artifact names must not be empty", ErrInvalidConfig)
	}

	if c.BloomFile == c.IndexFile {
		return fmt.Errorf("%w: bloom and index artifacts share the name %q", ErrInvalidConfig, c.BloomFile)
	}

	if c.BlockCapacity <= 0 {
		return fmt.Errorf("%w: block capacity must be positive", ErrInvalidConfig)
	}

	if _, err := codec.Get(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.SaveWorkers <= 0 {
		return fmt.Errorf("%w: save workers must be positive", ErrInvalidConfig)
	}

	return nil
}

// BloomPath returns the path of the bloom artifact.
func (c *Config) BloomPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.Root, c.BloomFile)
}

// IndexPath returns the path of the index artifact.
func (c *Config) IndexPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.Root, c.IndexFile)
}

// BlocksPath returns the directory holding the per-block records artifacts.
func (c *Config) BlocksPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.Root, c.BlocksDir)
}

// RecordsPath returns the path of the records artifact for block id.
func (c *Config) RecordsPath(id int) string {
	return filepath.Join(c.BlocksPath(), strconv.Itoa(id)+".zeta")
}

// LoadFile reads a configuration file. The format is chosen by extension:
// .json, or .yaml / .yml. Fields missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig(".")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv overrides fields from ZETA_* environment variables.
func (c *Config) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv("ZETA_ROOT"); val != "" {
		c.Root = val
	}

	if val := os.Getenv("ZETA_CODEC"); val != "" {
		c.Codec = val
	}

	if val := os.Getenv("ZETA_BLOCK_CAPACITY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.BlockCapacity = n
		}
	}

	if val := os.Getenv("ZETA_SAVE_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.SaveWorkers = n
		}
	}

	if val := os.Getenv("ZETA_ATOMIC_SAVE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.AtomicSave = b
		}
	}

	if val := os.Getenv("ZETA_SYNC_ON_SAVE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.SyncOnSave = b
		}
	}

	if val := os.Getenv("ZETA_VERIFY_CHECKSUMS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.VerifyChecksums = b
		}
	}
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Version:         c.Version,
		Root:            c.Root,
		BloomFile:       c.BloomFile,
		IndexFile:       c.IndexFile,
		BlocksDir:       c.BlocksDir,
		BlockCapacity:   c.BlockCapacity,
		Codec:           c.Codec,
		AtomicSave:      c.AtomicSave,
		SyncOnSave:      c.SyncOnSave,
		SaveWorkers:     c.SaveWorkers,
		VerifyChecksums: c.VerifyChecksums,
	}
}
