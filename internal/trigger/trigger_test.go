package trigger

import (
	"testing"

	"github.com/sheinberglab/dserv/internal/scriptworker"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func TestFirstMatchWinsInInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Add("proc/*", "on_any")
	d.Add("proc/sampler/*", "on_sample")

	body, ok := d.firstMatch("proc/sampler/vals")
	if !ok || body != "on_any" {
		t.Fatalf("expected first-inserted matching pattern to win, got %q ok=%v", body, ok)
	}
}

func TestDispatcherSubmitsTriggerRequest(t *testing.T) {
	d := NewDict()
	d.Add("proc/sampler/*", "on_sample")

	engine := scriptworker.NewBuiltinEngine()
	var seen string
	engine.Register("on_sample", func(args []string) (string, error) {
		if len(args) > 0 {
			seen = args[0]
		}
		return "", nil
	})
	worker := scriptworker.New(engine, nil, nil, 4)
	go worker.Run()

	disp := NewDispatcher(d, worker)
	disp.Dispatch(dpoint.NewString("proc/sampler/vals", "1.0 2.0"))

	// Drain synchronously via a reply round-trip so the test doesn't race
	// the worker goroutine.
	reply := make(chan string, 1)
	worker.Submit(scriptworker.Request{Kind: scriptworker.Script, Body: "", Reply: reply})
	<-reply

	if seen != "proc/sampler/vals" {
		t.Fatalf("expected on_sample to observe the varname, got %q", seen)
	}
}

func TestRemoveAndClear(t *testing.T) {
	d := NewDict()
	d.Add("a/*", "x")
	d.Remove("a/*")
	if _, ok := d.firstMatch("a/b"); ok {
		t.Fatal("expected removed pattern to no longer match")
	}

	d.Add("b/*", "y")
	d.Clear()
	if _, ok := d.firstMatch("b/c"); ok {
		t.Fatal("expected Clear to remove all entries")
	}
}
