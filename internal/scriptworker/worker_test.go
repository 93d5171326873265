package scriptworker

import (
	"errors"
	"testing"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

type fakeEngine struct {
	evaluated []string
	err       error
}

func (f *fakeEngine) Evaluate(script string) (string, error) {
	f.evaluated = append(f.evaluated, script)
	if f.err != nil {
		return "", f.err
	}
	return "ok:" + script, nil
}

func TestScriptRequestRepliesWithResult(t *testing.T) {
	engine := &fakeEngine{}
	w := New(engine, nil, nil, 1)
	go w.Run()

	reply := make(chan string, 1)
	w.Submit(Request{Kind: Script, Body: "echo hi", Reply: reply})
	got := <-reply
	if got != "ok:echo hi" {
		t.Fatalf("expected ok:echo hi, got %q", got)
	}
	w.Submit(Request{Kind: Shutdown})
}

func TestScriptErrorPrefixed(t *testing.T) {
	engine := &fakeEngine{err: errors.New("boom")}
	w := New(engine, nil, nil, 1)
	go w.Run()

	reply := make(chan string, 1)
	w.Submit(Request{Kind: Script, Body: "bad", Reply: reply})
	got := <-reply
	if got != "!TCL_ERROR boom" {
		t.Fatalf("expected prefixed error, got %q", got)
	}
	w.Submit(Request{Kind: Shutdown})
}

type fakeSink struct{ delivered []dpoint.Datapoint }

func (f *fakeSink) Deliver(dp dpoint.Datapoint) { f.delivered = append(f.delivered, dp) }

func TestDpointScriptForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	engine := &fakeEngine{}
	w := New(engine, sink, nil, 1)
	go w.Run()

	done := make(chan string, 1)
	w.Submit(Request{Kind: DpointScript, Point: dpoint.NewString("a", "1")})
	w.Submit(Request{Kind: Script, Body: "sync", Reply: done})
	<-done

	if len(sink.delivered) != 1 || sink.delivered[0].Varname != "a" {
		t.Fatalf("expected forwarded delivery of a, got %+v", sink.delivered)
	}
	w.Submit(Request{Kind: Shutdown})
}
