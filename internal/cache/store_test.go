package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Identifier: "iiif/dir/image.jpg"}

	modTime := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
	if filepath.Base(result.Entry.FilePath) != SourceVariant {
		t.Fatalf("source file should be named %s, got %s", SourceVariant, result.Entry.FilePath)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Locator{Identifier: "missing/image.jpg"})
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Identifier: "bucket/remove.jpg"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("removing a missing entry should succeed: %v", err)
	}
}

func TestStoreIgnoresDirectoriesAndEmptyFiles(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Identifier: "bucket/dir"}

	filePath, err := store.Path(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}

	empty := Locator{Identifier: "bucket/empty"}
	emptyPath, _ := store.Path(empty)
	if err := os.MkdirAll(filepath.Dir(emptyPath), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(emptyPath, nil, 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if _, err := store.Get(context.Background(), empty); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for empty file, got %v", err)
	}
}

func TestStorePathIsStableAndHashed(t *testing.T) {
	root := t.TempDir()
	first, err := NewStore(root)
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	second, _ := NewStore(root)

	locator := Locator{Identifier: "../../etc/passwd"}
	a, err := first.Path(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	b, _ := second.Path(locator)
	if a != b {
		t.Fatalf("path must be stable across instances: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, root) || strings.Contains(a, "passwd") {
		t.Fatalf("identifier must not leak into the path: %s", a)
	}

	other, _ := first.Path(Locator{Identifier: "../../etc/passwd2"})
	if filepath.Dir(other) == filepath.Dir(a) {
		t.Fatalf("different identifiers must use different directories")
	}
}

func TestStoreSidecarSharesDirectory(t *testing.T) {
	store := newTestStore(t)
	source, _ := store.Path(Locator{Identifier: "iiif/a.jpg"})
	rules, err := store.Path(Locator{Identifier: "iiif/a.jpg", Variant: "rules.json"})
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if filepath.Dir(source) != filepath.Dir(rules) {
		t.Fatalf("sidecar should live next to the source file")
	}
	for _, variant := range []string{"../x", ".cache-1", `a\b`} {
		if _, err := store.Path(Locator{Identifier: "iiif/a.jpg", Variant: variant}); err == nil {
			t.Fatalf("variant %q should be rejected", variant)
		}
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestStorePutInterruptedLeavesNoFile(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Identifier: "bucket/interrupted.jpg"}

	_, err := store.Put(context.Background(), locator, &failingReader{data: []byte("partial"), err: io.ErrUnexpectedEOF}, PutOptions{})
	if !errors.Is(err, ErrSourceRead) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrSourceRead wrapping the read error, got %v", err)
	}

	filePath, _ := store.Path(locator)
	if _, statErr := os.Stat(filePath); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no cache file may exist after an interrupted write: %v", statErr)
	}
	assertNoTempFiles(t, filepath.Dir(filePath))
}

func TestStorePutEmptyBody(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Identifier: "bucket/empty.jpg"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(nil), PutOptions{}); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	filePath, _ := store.Path(locator)
	assertNoTempFiles(t, filepath.Dir(filePath))
}

func TestStorePutWriteFailure(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Identifier: "bucket/blocked.jpg"}
	filePath, _ := store.Path(locator)
	// 用同名文件占住目录位置，使 MkdirAll 失败。
	if err := os.MkdirAll(filepath.Dir(filepath.Dir(filePath)), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(filepath.Dir(filePath), []byte("x"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{})
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
}

func TestStorePutHonoursCancellation(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, Locator{Identifier: "bucket/cancel.jpg"}, bytes.NewReader([]byte("data")), PutOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		t.Fatalf("read dir error: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".cache-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
