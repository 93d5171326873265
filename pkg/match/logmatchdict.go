package match

import (
	"sync"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// LogBuffer is the per-subscription coalescing buffer a log client fills
// between flushes: successive matching datapoints' payloads are appended
// into one record until either the buffer is full or the owning log
// client flushes it to disk (§4.9 coalescing). Uninitialized is cleared
// on the first deposit of a run, which fixes the buffer's varname and
// element type until the next flush.
type LogBuffer struct {
	mu            sync.Mutex
	Uninitialized bool
	Capacity      int
	varname       string
	dtype         dpoint.Type
	firstTS       int64
	data          []byte
}

// NewLogBuffer allocates a buffer sized for capacity bytes. A capacity of
// 0 means the subscription does no coalescing — every match is written
// through individually.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{Uninitialized: true, Capacity: capacity}
}

// Deposit appends dp's payload into the buffer (§8 property 7). When dp's
// payload alone exceeds the buffer's capacity, dp is returned as bypass
// and the buffer is left untouched. When the buffer already holds a
// different varname/type, or appending would overflow it, the buffer's
// record is returned as flushed and dp then starts the next coalescing
// run.
func (b *LogBuffer) Deposit(dp dpoint.Datapoint) (flushed dpoint.Datapoint, hadFlush bool, bypass dpoint.Datapoint, shouldBypass bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(dp.Payload) > b.Capacity {
		return dpoint.Datapoint{}, false, dp, true
	}
	if !b.Uninitialized && (b.dtype != dp.DType || b.varname != dp.Varname || len(b.data)+len(dp.Payload) > b.Capacity) {
		flushed = b.flushLocked()
		hadFlush = flushed.Varname != ""
	}
	if b.Uninitialized {
		b.beginLocked(dp)
	}
	b.data = append(b.data, dp.Payload...)
	return flushed, hadFlush, dpoint.Datapoint{}, false
}

func (b *LogBuffer) beginLocked(dp dpoint.Datapoint) {
	b.varname = dp.Varname
	b.dtype = dp.DType
	b.firstTS = dp.Timestamp
	b.data = nil
	b.Uninitialized = false
}

// Flush returns the accumulated record, if any, and resets the buffer.
func (b *LogBuffer) Flush() dpoint.Datapoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *LogBuffer) flushLocked() dpoint.Datapoint {
	if b.Uninitialized || len(b.data) == 0 {
		b.Uninitialized = true
		return dpoint.Datapoint{}
	}
	out := dpoint.Datapoint{Varname: b.varname, Timestamp: b.firstTS, DType: b.dtype, Payload: b.data}
	b.Uninitialized = true
	b.data = nil
	return out
}

// LogMatchSpec extends MatchSpec with the obs-window gate and the optional
// coalescing buffer used by log clients.
type LogMatchSpec struct {
	MatchSpec
	ObsLimited bool
	Buffer     *LogBuffer
}

// NewLogMatchSpec builds an active Krauss-matching log subscription. A
// bufsize of 0 disables coalescing for this pattern.
func NewLogMatchSpec(pattern string, every int, obsLimited bool, bufsize int) *LogMatchSpec {
	if every < 1 {
		every = 1
	}
	spec := &LogMatchSpec{
		MatchSpec:  MatchSpec{Active: true, Every: every, Kind: KindKrauss, Pattern: pattern},
		ObsLimited: obsLimited,
	}
	if bufsize > 0 {
		spec.Buffer = NewLogBuffer(bufsize)
	}
	return spec
}

// LogMatchDict is the log-client analogue of MatchDict: the same
// every-Nth rate limiting, plus obs-window gating and an optional
// coalescing buffer handed back to the caller on a match.
type LogMatchDict struct {
	mu    sync.Mutex
	specs map[string]*LogMatchSpec
}

func NewLogMatchDict() *LogMatchDict {
	return &LogMatchDict{specs: make(map[string]*LogMatchSpec)}
}

func (d *LogMatchDict) Insert(key string, m *LogMatchSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs[key] = m
}

func (d *LogMatchDict) Remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.specs, key)
}

func (d *LogMatchDict) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.specs = make(map[string]*LogMatchSpec)
}

func (d *LogMatchDict) Find(key string) (*LogMatchSpec, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.specs[key]
	return m, ok
}

func (d *LogMatchDict) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.specs))
	for k := range d.specs {
		keys = append(keys, k)
	}
	return keys
}

// FlushAll flushes every spec's coalescing buffer, returning the
// resulting records (skipping specs with no buffer or nothing buffered).
func (d *LogMatchDict) FlushAll() []dpoint.Datapoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dpoint.Datapoint
	for _, m := range d.specs {
		if m.Buffer == nil {
			continue
		}
		if dp := m.Buffer.Flush(); dp.Varname != "" {
			out = append(out, dp)
		}
	}
	return out
}

// HasObsLimited reports whether any active spec is obs-limited, mirroring
// the ground truth's obs_limited_matches counter: a client with at least
// one such spec gets every OBS_BEGIN/OBS_END boundary bracketed with its
// markers regardless of whether the boundary event's own varname matches
// anything (see Table.Publish).
func (d *LogMatchDict) HasObsLimited() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.specs {
		if m.Active && m.ObsLimited {
			return true
		}
	}
	return false
}

// IsMatch checks name against every active spec, exactly as MatchDict does,
// with two further gates before a match counts as "due": obs-window
// membership (a spec with ObsLimited set only fires while inObs is true)
// and the Every rate limit. When a spec fires and has a coalescing buffer,
// that buffer is returned so the caller can deposit into it; the caller is
// responsible for the deposit, IsMatch only decides whether one should
// happen.
func (d *LogMatchDict) IsMatch(name string, inObs bool) (matched bool, buf *LogBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.specs {
		if !m.Active {
			continue
		}
		if !m.matches(name) {
			continue
		}
		due := m.Count%m.Every == 0
		m.Count++
		if !due {
			continue
		}
		if m.ObsLimited && !inObs {
			continue
		}
		matched = true
		buf = m.Buffer
	}
	return matched, buf
}
