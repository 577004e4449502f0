package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile_ReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "metadata.json")

	if err := WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(path, []byte(`{"a":2}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != `{"a":2}` {
		t.Errorf("Expected replaced content, got %s", got)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "nested", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("Expected no temp files, found %v", leftovers)
	}
}

func TestCleanStale(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".metadata.json.123.tmp")
	keep := filepath.Join(dir, "metadata.json")
	for _, p := range []string{stale, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := CleanStale(dir); err != nil {
		t.Fatalf("CleanStale failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale temp file to be removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("Expected regular file to be kept")
	}
}
