package match

import "testing"

func TestMatchDictEveryRateLimits(t *testing.T) {
	d := NewMatchDict()
	d.Insert("sub1", NewMatchSpecEvery("ess/*", 3))

	var hits int
	for i := 0; i < 9; i++ {
		if d.IsMatch("ess/state") {
			hits++
		}
	}
	if hits != 3 {
		t.Fatalf("expected 3 hits out of 9 matches at every=3, got %d", hits)
	}
}

func TestMatchDictAdvancesCountOnlyOnMatch(t *testing.T) {
	d := NewMatchDict()
	d.Insert("sub1", NewMatchSpecEvery("ess/*", 2))

	// Non-matching names must not advance Count, so the next matching call
	// still lands on the same phase of the every-2 cycle.
	d.IsMatch("unrelated/name")
	d.IsMatch("unrelated/name")

	first := d.IsMatch("ess/state")
	second := d.IsMatch("ess/state")
	if !first {
		t.Fatal("expected first real match to fire (count starts at 0)")
	}
	if second {
		t.Fatal("expected second real match to be suppressed by every=2")
	}
}

func TestMatchDictInactiveNeverMatches(t *testing.T) {
	d := NewMatchDict()
	spec := NewMatchSpec("ess/*")
	spec.Active = false
	d.Insert("sub1", spec)

	if d.IsMatch("ess/state") {
		t.Fatal("inactive spec must never match")
	}
}

func TestMatchDictRemoveAndClear(t *testing.T) {
	d := NewMatchDict()
	d.Insert("sub1", NewMatchSpec("ess/*"))
	if _, ok := d.Find("sub1"); !ok {
		t.Fatal("expected sub1 to be present")
	}
	d.Remove("sub1")
	if _, ok := d.Find("sub1"); ok {
		t.Fatal("expected sub1 to be removed")
	}

	d.Insert("sub2", NewMatchSpec("ess/*"))
	d.Clear()
	if len(d.Keys()) != 0 {
		t.Fatal("expected Clear to empty the dictionary")
	}
}

func TestLogMatchDictObsGating(t *testing.T) {
	d := NewLogMatchDict()
	d.Insert("sub1", NewLogMatchSpec("ess/*", 1, true, 0))

	if matched, _ := d.IsMatch("ess/state", false); matched {
		t.Fatal("obs-limited spec must not fire outside an obs window")
	}
	matched, _ := d.IsMatch("ess/state", true)
	if !matched {
		t.Fatal("obs-limited spec must fire inside an obs window")
	}
}

func TestLogMatchDictRateLimitAdvancesEvenWhenObsGated(t *testing.T) {
	// The original hub increments count (and so the every-Nth phase)
	// whenever the pattern matches, regardless of the obs gate; only
	// whether the match is reported as "due" depends on the gate.
	d := NewLogMatchDict()
	d.Insert("sub1", NewLogMatchSpec("ess/*", 2, true, 0))

	gated, _ := d.IsMatch("ess/state", false)
	first, _ := d.IsMatch("ess/state", true)
	second, _ := d.IsMatch("ess/state", true)
	if gated || first || !second {
		t.Fatalf("expected gated call to advance the every=2 phase (false,false,true); got %v,%v,%v", gated, first, second)
	}
}

func TestLogMatchDictReturnsBuffer(t *testing.T) {
	d := NewLogMatchDict()
	d.Insert("sub1", NewLogMatchSpec("ess/*", 1, false, 64))

	matched, buf := d.IsMatch("ess/state", false)
	if !matched {
		t.Fatal("expected match")
	}
	if buf == nil {
		t.Fatal("expected a coalescing buffer to be returned")
	}
	if !buf.Uninitialized {
		t.Fatal("freshly allocated buffer should start uninitialized")
	}
}
