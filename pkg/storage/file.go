package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// artifactFile writes one artifact. In atomic mode the bytes go to a hidden
// temp file next to the target which replaces the target on Commit.
type artifactFile struct {
	path    string
	tmpPath string
	file    *os.File
}

func createArtifactFile(path string, atomic bool) (*artifactFile, error) {
	target := path
	tmpPath := ""
	if atomic {
		tmpPath = filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.tmp", filepath.Base(path)))
		target = tmpPath
	}

	file, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}

	return &artifactFile{
		path:    path,
		tmpPath: tmpPath,
		file:    file,
	}, nil
}

func (af *artifactFile) Write(data []byte) (int, error) {
	return af.file.Write(data)
}

func (af *artifactFile) close() error {
	if af.file == nil {
		return nil
	}
	err := af.file.Close()
	af.file = nil
	return err
}

// Commit optionally fsyncs, closes, and moves the temp file into place.
func (af *artifactFile) Commit(sync bool) error {
	if sync {
		if err := af.file.Sync(); err != nil {
			af.Abort()
			return fmt.Errorf("failed to sync %s: %w", filepath.Base(af.path), err)
		}
	}

	if err := af.close(); err != nil {
		af.Abort()
		return fmt.Errorf("failed to close %s: %w", filepath.Base(af.path), err)
	}

	if af.tmpPath == "" {
		return nil
	}

	if err := os.Rename(af.tmpPath, af.path); err != nil {
		os.Remove(af.tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	if sync {
		return syncDir(filepath.Dir(af.path))
	}
	return nil
}

// Abort discards a partially written artifact. In non-atomic mode the
// target itself is left truncated.
func (af *artifactFile) Abort() {
	af.close()
	if af.tmpPath != "" {
		os.Remove(af.tmpPath)
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory for sync: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}
