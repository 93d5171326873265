package queue

import (
	"testing"
	"time"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(4)
	q.Push(dpoint.NewString("a", "1"))
	q.Push(dpoint.NewString("b", "2"))

	first, ok := q.Pop()
	if !ok || first.Varname != "a" {
		t.Fatalf("expected a first, got %+v ok=%v", first, ok)
	}
	second, ok := q.Pop()
	if !ok || second.Varname != "b" {
		t.Fatalf("expected b second, got %+v ok=%v", second, ok)
	}
}

func TestCloseDrainsPending(t *testing.T) {
	q := New(2)
	q.Push(dpoint.NewString("a", "1"))
	q.Close()

	dp, ok := q.Pop()
	if !ok || dp.Varname != "a" {
		t.Fatalf("expected to drain pending item after close, got %+v ok=%v", dp, ok)
	}
	_, ok = q.Pop()
	if ok {
		t.Fatal("expected ok=false once drained")
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(0)
	done := make(chan dpoint.Datapoint, 1)
	go func() {
		dp, _ := q.Pop()
		done <- dp
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(dpoint.NewString("late", "x"))
	select {
	case dp := <-done:
		if dp.Varname != "late" {
			t.Fatalf("expected late, got %q", dp.Varname)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never unblocked after Push")
	}
}
