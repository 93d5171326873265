package match

import "sync"

// Kind selects how a MatchSpec's pattern is compared against a candidate
// name.
type Kind int

const (
	KindExact Kind = iota
	KindBegin
	KindEnd
	KindAnywhere
	KindKrauss
)

// MatchSpec is one subscription entry: a pattern, how to compare it, and a
// rate limiter (Every) that only fires every Nth match. Count is mutated in
// place by IsMatch, so a MatchSpec must only be reached through its owning
// MatchDict's lock.
type MatchSpec struct {
	Active bool
	Every  int
	Count  int
	Kind   Kind
	Pattern string
}

// NewMatchSpec builds an active Krauss-matching spec that fires on every
// match (every=1).
func NewMatchSpec(pattern string) *MatchSpec {
	return NewMatchSpecEvery(pattern, 1)
}

// NewMatchSpecEvery builds an active Krauss-matching spec that fires once
// per `every` matches.
func NewMatchSpecEvery(pattern string, every int) *MatchSpec {
	if every < 1 {
		every = 1
	}
	return &MatchSpec{Active: true, Every: every, Kind: KindKrauss, Pattern: pattern}
}

// matches reports whether name satisfies the spec's pattern, without
// touching Count or Every.
func (m *MatchSpec) matches(name string) bool {
	switch m.Kind {
	case KindExact:
		return Exact(m.Pattern, name)
	case KindKrauss:
		return Krauss(m.Pattern, name)
	default:
		// MATCH_BEGIN/MATCH_END/MATCH_ANYWHERE are reserved but never wired
		// up on the hub side either; treat them as never matching.
		return false
	}
}

// MatchDict is a mutex-protected registry of named subscriptions, keyed by
// the client- or caller-supplied key under which the pattern was
// registered (not the pattern itself — two clients may subscribe the same
// pattern under different keys).
type MatchDict struct {
	mu  sync.Mutex
	specs map[string]*MatchSpec
}

// NewMatchDict returns an empty dictionary.
func NewMatchDict() *MatchDict {
	return &MatchDict{specs: make(map[string]*MatchSpec)}
}

func (d *MatchDict) Insert(key string, m *MatchSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs[key] = m
}

func (d *MatchDict) Remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.specs, key)
}

func (d *MatchDict) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs = make(map[string]*MatchSpec)
}

func (d *MatchDict) Find(key string) (*MatchSpec, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.specs[key]
	return m, ok
}

// Keys returns the registered subscription keys in unspecified order.
func (d *MatchDict) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.specs))
	for k := range d.specs {
		keys = append(keys, k)
	}
	return keys
}

// IsMatch checks name against every active spec in the dictionary. Every
// spec whose pattern matches has its Count advanced, exactly as the
// original hub does, so rate limiting stays fair across concurrent
// ingestion even though at most one caller holds the lock at a time; a
// spec that never matches never advances and so never drifts out of
// phase with its Every setting. The overall result is true if at least one
// spec both matched and was due to fire (Count was a multiple of Every
// before this match incremented it).
func (d *MatchDict) IsMatch(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret := false
	for _, m := range d.specs {
		if !m.Active {
			continue
		}
		if m.matches(name) {
			due := m.Count%m.Every == 0
			m.Count++
			if due {
				ret = true
			}
		}
	}
	return ret
}
