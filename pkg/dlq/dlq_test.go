package dlq

import (
	"testing"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func TestPutEvictsOldestWhenFull(t *testing.T) {
	q, err := New(Config{QueueSize: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	q.Put(dpoint.NewString("a", "1"), "broker down")
	q.Put(dpoint.NewString("b", "1"), "broker down")
	q.Put(dpoint.NewString("c", "1"), "broker down")

	entries := q.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Varname != "b" || entries[1].Varname != "c" {
		t.Fatalf("expected oldest entry evicted, got %+v", entries)
	}
}

func TestPersistsToDirectory(t *testing.T) {
	dir := t.TempDir()
	q, err := New(Config{Directory: dir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	q.Put(dpoint.NewString("a", "1"), "broker down")
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
}
