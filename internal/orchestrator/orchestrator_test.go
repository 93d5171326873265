package orchestrator

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/sheinberglab/dserv/internal/table"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// TestMain verifies the ingestion cascade leaves no goroutine running
// past the end of the package's tests — notably that a recursive Set
// from a derived datapoint never leaks the mutex-holding path.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeNotify struct{ received []dpoint.Datapoint }

func (f *fakeNotify) Publish(dp dpoint.Datapoint) { f.received = append(f.received, dp) }

type fakeTrigger struct{ fired []string }

func (f *fakeTrigger) Dispatch(dp dpoint.Datapoint) { f.fired = append(f.fired, dp.Varname) }

type doublingProcessor struct{ target string }

func (p *doublingProcessor) Process(dp dpoint.Datapoint) (ProcessAction, dpoint.Datapoint) {
	if dp.Varname != p.target {
		return ActionIgnore, dpoint.Datapoint{}
	}
	return ActionDSERV, dpoint.NewString(p.target+"/derived", dp.AsString())
}

func TestSetPublishesKeysOnlyOnCreation(t *testing.T) {
	tbl := table.New()
	notify := &fakeNotify{}
	o := New(tbl, nil, nil, notify, nil, nil)

	o.Set(dpoint.New("a", dpoint.TypeInt, dpoint.ParseFloatArray(nil)))
	o.Set(dpoint.New("b", dpoint.TypeInt, dpoint.ParseFloatArray(nil)))
	o.Set(dpoint.New("a", dpoint.TypeInt, dpoint.ParseFloatArray(nil)))

	var keyPublishes []string
	for _, dp := range notify.received {
		if dp.Varname == "dserv/keys" {
			keyPublishes = append(keyPublishes, dp.AsString())
		}
	}
	if len(keyPublishes) != 2 {
		t.Fatalf("expected exactly 2 key publishes, got %d: %v", len(keyPublishes), keyPublishes)
	}
	if keyPublishes[1] != "a b" {
		t.Fatalf("expected final key list %q, got %q", "a b", keyPublishes[1])
	}
}

func TestTouchSkipsKeyPublish(t *testing.T) {
	tbl := table.New()
	notify := &fakeNotify{}
	o := New(tbl, nil, nil, notify, nil, nil)
	o.Set(dpoint.NewString("a", "1"))
	before := len(notify.received)

	if !o.Touch("a") {
		t.Fatal("expected touch to succeed on an existing name")
	}
	after := notify.received[before:]
	for _, dp := range after {
		if dp.Varname == "dserv/keys" {
			t.Fatal("touch must not republish dserv/keys")
		}
	}
	if o.Touch("missing") {
		t.Fatal("touch on a missing name must fail")
	}
}

func TestProcessorDerivedPointSeesOriginalAlreadyInTable(t *testing.T) {
	tbl := table.New()
	proc := &doublingProcessor{target: "raw"}
	o := New(tbl, proc, nil, nil, nil, nil)

	o.Set(dpoint.NewString("raw", "value"))

	if _, ok := o.Get("raw"); !ok {
		t.Fatal("expected original to be in the table")
	}
	derived, ok := o.Get("raw/derived")
	if !ok {
		t.Fatal("expected derived point to be in the table")
	}
	if derived.AsString() != "value" {
		t.Fatalf("expected derived payload %q, got %q", "value", derived.AsString())
	}
}

// TestIngestionCascadeOrderingDefersRecursiveSet proves a processor-derived
// point's own cascade runs only after the triggering point's trigger/notify
// dispatch has completed, never interleaved between the triggering point's
// processor step and its notify enqueue (§4.4).
func TestIngestionCascadeOrderingDefersRecursiveSet(t *testing.T) {
	tbl := table.New()
	proc := &doublingProcessor{target: "raw"}
	trig := &fakeTrigger{}
	notify := &fakeNotify{}
	o := New(tbl, proc, trig, notify, nil, nil)

	o.Set(dpoint.NewString("raw", "value"))

	var order []string
	for _, dp := range notify.received {
		order = append(order, dp.Varname)
	}
	// Each new name is followed by its dserv/keys publish, which runs its own
	// cascade before the derived point is ingested.
	if len(order) != 4 || order[0] != "raw" || order[1] != "dserv/keys" || order[2] != "raw/derived" || order[3] != "dserv/keys" {
		t.Fatalf("expected raw's own notify publish before its derived point's, got %v", order)
	}
	if len(trig.fired) != 4 || trig.fired[0] != "raw" || trig.fired[1] != "dserv/keys" || trig.fired[2] != "raw/derived" || trig.fired[3] != "dserv/keys" {
		t.Fatalf("expected raw's own trigger dispatch before its derived point's, got %v", trig.fired)
	}
}

func TestTriggerDispatchedForEveryIngestion(t *testing.T) {
	tbl := table.New()
	trig := &fakeTrigger{}
	o := New(tbl, nil, trig, nil, nil, nil)

	o.Set(dpoint.NewString("ess/state", "running"))
	o.Set(dpoint.NewString("ess/obs_id", "3"))

	// Both names are new, so each is followed by a dserv/keys ingestion.
	if len(trig.fired) != 4 || trig.fired[0] != "ess/state" || trig.fired[1] != "dserv/keys" || trig.fired[2] != "ess/obs_id" || trig.fired[3] != "dserv/keys" {
		t.Fatalf("unexpected trigger dispatch sequence: %v", trig.fired)
	}
}

func TestClearOneAndClearAll(t *testing.T) {
	tbl := table.New()
	o := New(tbl, nil, nil, nil, nil, nil)
	o.Set(dpoint.NewString("a", "1"))
	o.Set(dpoint.NewString("b", "2"))

	if !o.ClearOne("a") {
		t.Fatal("expected a to be cleared")
	}
	if _, ok := o.Get("a"); ok {
		t.Fatal("expected a to be gone")
	}
	o.ClearAll()
	if _, ok := o.Get("b"); ok {
		t.Fatal("expected ClearAll to remove b too")
	}
}
