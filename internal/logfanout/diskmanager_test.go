package logfanout

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSizedFile(t *testing.T, path string, size int, modTime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

func TestSweepEvictsOldestFilesOverBudget(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeSizedFile(t, filepath.Join(dir, "a.dg"), 100, now.Add(-2*time.Hour))
	writeSizedFile(t, filepath.Join(dir, "b.dg"), 100, now.Add(-1*time.Hour))
	writeSizedFile(t, filepath.Join(dir, "c.dg"), 100, now)

	dm := NewDiskManager(DiskManagerConfig{Root: dir, MaxTotalBytes: 150}, nil, nil)
	dm.sweep()

	if _, err := os.Stat(filepath.Join(dir, "a.dg")); !os.IsNotExist(err) {
		t.Fatal("expected oldest file to be evicted")
	}
	if _, err := os.Stat(filepath.Join(dir, "c.dg")); err != nil {
		t.Fatal("expected newest file to survive")
	}
}

func TestSweepSkipsOpenFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	openPath := filepath.Join(dir, "open.dg")
	writeSizedFile(t, openPath, 100, now.Add(-2*time.Hour))
	writeSizedFile(t, filepath.Join(dir, "closed.dg"), 100, now.Add(-1*time.Hour))

	dm := NewDiskManager(DiskManagerConfig{Root: dir, MaxTotalBytes: 50}, func(path string) bool {
		return path == openPath
	}, nil)
	dm.sweep()

	if _, err := os.Stat(openPath); err != nil {
		t.Fatal("expected open file to survive eviction")
	}
}

func TestSweepEvictsWhenBelowFreeBytesFloor(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeSizedFile(t, filepath.Join(dir, "a.dg"), 100, now.Add(-time.Hour))
	writeSizedFile(t, filepath.Join(dir, "b.dg"), 100, now)

	dm := NewDiskManager(DiskManagerConfig{Root: dir, MinFreeBytes: 1 << 30}, nil, nil).
		WithFreeBytes(func(path string) (uint64, bool) { return 0, true })
	dm.sweep()

	if _, err := os.Stat(filepath.Join(dir, "a.dg")); !os.IsNotExist(err) {
		t.Fatal("expected oldest file to be evicted once below the free-bytes floor")
	}
}

func TestSweepCompressesClosedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.dg")
	writeSizedFile(t, path, 50, time.Now())

	dm := NewDiskManager(DiskManagerConfig{Root: dir, Compress: true}, nil, nil)
	dm.sweep()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected original file to be removed after compression")
	}
	if _, err := os.Stat(path + ".gz"); err != nil {
		t.Fatal("expected compressed .gz file to exist")
	}
}
