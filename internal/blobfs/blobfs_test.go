package blobfs_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"spool/internal/blobfs"
)

func TestWriteReadRemove(t *testing.T) {
	store, err := blobfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	content := []byte("attachment payload")
	ref, err := store.Write("item-1", "report.pdf", content)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if ref != filepath.Join(store.Root(), "item-1", "report.pdf") {
		t.Fatalf("unexpected reference: %s", ref)
	}

	got, err := store.Read(ref)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("round-trip content mismatch")
	}

	if err := store.Remove(ref); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(ref); !os.IsNotExist(err) {
		t.Fatal("expected bytes removed")
	}
	if _, err := os.Stat(filepath.Dir(ref)); !os.IsNotExist(err) {
		t.Fatal("expected empty item directory pruned")
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	store, err := blobfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := store.Write("item-1", "data.bin", []byte("old")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	ref, err := store.Write("item-1", "data.bin", []byte("new"))
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	got, err := store.Read(ref)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("expected replacement content, got %q", got)
	}
}

func TestReadMissing(t *testing.T) {
	store, err := blobfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := store.Read(filepath.Join(store.Root(), "nope", "missing.bin")); err == nil {
		t.Fatal("expected error for missing bytes")
	}
}

func TestRemoveMissingIsIdempotent(t *testing.T) {
	store, err := blobfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Remove(filepath.Join(store.Root(), "nope", "missing.bin")); err != nil {
		t.Fatalf("Remove of missing ref should be a no-op: %v", err)
	}
}
