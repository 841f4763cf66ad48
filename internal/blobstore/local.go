package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local stores artifacts under a base directory on the local filesystem.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Write(_ context.Context, path string, data []byte) error {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (l *Local) Remove(_ context.Context, path string) error {
	if err := os.Remove(l.resolve(path)); err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Path returns the filesystem location of a stored artifact.
func (l *Local) Path(path string) string {
	return l.resolve(path)
}

func (l *Local) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.root, path)
}
