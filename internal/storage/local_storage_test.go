package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLocalStorageSaveAndLoad(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	payload := []byte("fake png bytes")
	key, err := store.Save(context.Background(), payload, SaveOptions{
		Category:  CategorySelfie,
		Extension: "png",
		BaseName:  "Subject One",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(key, CategorySelfie+"/") {
		t.Errorf("key %q should be under category %q", key, CategorySelfie)
	}
	if !strings.HasSuffix(key, "subject-one.png") {
		t.Errorf("key %q should end with sanitized base name", key)
	}

	loaded, err := store.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Error("loaded payload differs from saved payload")
	}
}

func TestLocalStorageRejectsEmptyPayload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	if _, err := store.Save(context.Background(), nil, SaveOptions{Category: "outputs"}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestLocalStorageLoadRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	for _, key := range []string{"", "../etc/passwd", "/etc/passwd"} {
		if _, err := store.Load(context.Background(), key); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestBuildObjectPath(t *testing.T) {
	key := buildObjectPath("Debug Assets", "composite 1", ".PNG")
	if !strings.HasPrefix(key, "debugassets/") {
		t.Errorf("category not sanitized: %q", key)
	}
	if !strings.HasSuffix(key, "composite-1.png") {
		t.Errorf("file name not sanitized: %q", key)
	}
}
