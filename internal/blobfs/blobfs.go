// Package blobfs stores externally tiered attachment bytes on the local
// filesystem.
//
// Each attachment is written under <root>/<item-id>/<filename> and addressed
// by the absolute path recorded in the backend's attachment index, never by
// filename alone. Removing an attachment deletes the bytes and prunes the
// per-item directory when it empties.
package blobfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store manages the external byte area rooted at a single directory.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("blobfs: root directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Write persists content for (itemID, name) and returns the stable path
// reference to record in the attachment index. An existing file at the same
// location is replaced.
func (s *Store) Write(itemID, name string, content []byte) (string, error) {
	dir := filepath.Join(s.root, itemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create item directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return path, nil
}

// Read returns the bytes behind a path reference.
func (s *Store) Read(ref string) ([]byte, error) {
	content, err := os.ReadFile(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("attachment bytes missing at %s: %w", ref, err)
		}
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return content, nil
}

// Remove deletes the bytes behind a path reference. A missing file is not an
// error so removals stay idempotent. The containing item directory is pruned
// when it becomes empty.
func (s *Store) Remove(ref string) error {
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	// Prune the item directory if this was the last attachment.
	_ = os.Remove(filepath.Dir(ref))
	return nil
}
