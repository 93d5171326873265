package hotreload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOnChangeFiresAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dirs: []string{dir}, Debounce: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan string, 1)
	w.OnChange = func(path string) { changed <- path }
	w.Start()
	defer w.Stop()

	target := filepath.Join(dir, "scale.so")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if filepath.Base(got) != "scale.so" {
			t.Fatalf("unexpected changed path: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnChange")
	}
}

func TestExtensionFilterIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dirs: []string{dir}, Extensions: []string{".so"}, Debounce: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan string, 1)
	w.OnChange = func(path string) { changed <- path }
	w.Start()
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		t.Fatalf("expected .txt file to be ignored, got change for %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}
