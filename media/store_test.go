package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPhotoStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPhotoStore(dir)
	if err != nil {
		t.Fatalf("NewPhotoStore failed: %v", err)
	}

	relPath, _, err := store.Save("upload.JPG", strings.NewReader("not really a jpeg"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Ext(relPath) != ".jpg" {
		t.Errorf("stored extension = %s, want lowercased .jpg", filepath.Ext(relPath))
	}
	if relPath == "upload.JPG" {
		t.Error("original filename reused instead of a generated name")
	}

	full, err := store.FullPath(relPath)
	if err != nil {
		t.Fatalf("FullPath failed: %v", err)
	}
	if _, err := os.Stat(full); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	if err := store.Delete(relPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(relPath); err != nil {
		t.Errorf("deleting an already-removed photo errored: %v", err)
	}
}

func TestPhotoStoreRejectsUnsupportedType(t *testing.T) {
	store, err := NewPhotoStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPhotoStore failed: %v", err)
	}
	if _, _, err := store.Save("malware.exe", strings.NewReader("nope")); err == nil {
		t.Fatal("unsupported file type accepted")
	}
}

func TestFullPathRejectsTraversal(t *testing.T) {
	store, err := NewPhotoStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPhotoStore failed: %v", err)
	}
	if _, err := store.FullPath("../outside.jpg"); err == nil {
		t.Fatal("traversal path accepted")
	}
}
