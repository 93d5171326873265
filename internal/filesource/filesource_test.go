package filesource

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []dpoint.Datapoint
}

func (r *recordingSink) Set(dp dpoint.Datapoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, dp)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestTailedLineBecomesEvtDatapoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := Open(ctx, path, sink, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("trial 1 start\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if sink.count() != 1 {
		t.Fatalf("expected 1 ingested line, got %d", sink.count())
	}
	sink.mu.Lock()
	dp := sink.seen[0]
	sink.mu.Unlock()

	if dp.DType != dpoint.TypeEvt {
		t.Fatalf("expected an EVT datapoint, got %s", dp.DType)
	}
	if dp.Varname != "file/rig.log" {
		t.Fatalf("expected varname derived from file base name, got %s", dp.Varname)
	}
	if dp.AsString() != "trial 1 start" {
		t.Fatalf("unexpected payload: %q", dp.AsString())
	}
}
