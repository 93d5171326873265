// Package trigger implements the trigger subsystem: a pattern-ordered
// list of script bodies, at most one of which fires per ingestion (§4.6).
package trigger

import (
	"sync"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/internal/scriptworker"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/match"
)

type entry struct {
	pattern string
	body    string
}

// Dict holds trigger entries in insertion order, so the "first matching
// pattern fires" rule (§4.6, §8 property 5) has a well-defined meaning
// independent of Go's unordered map iteration.
type Dict struct {
	mu      sync.Mutex
	entries []entry
}

func NewDict() *Dict {
	return &Dict{}
}

// Add registers pattern → body, appended after any existing entries.
// Adding the same pattern again replaces it in place, keeping its
// original position.
func (d *Dict) Add(pattern, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.entries {
		if d.entries[i].pattern == pattern {
			d.entries[i].body = body
			return
		}
	}
	d.entries = append(d.entries, entry{pattern: pattern, body: body})
}

// Remove deletes pattern, if present.
func (d *Dict) Remove(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.entries {
		if d.entries[i].pattern == pattern {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// Clear removes every trigger entry.
func (d *Dict) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}

// firstMatch returns the body of the first (by insertion order) pattern
// that Krauss-matches name.
func (d *Dict) firstMatch(name string) (body string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if match.Krauss(e.pattern, name) {
			return e.body, true
		}
	}
	return "", false
}

// Dispatcher implements orchestrator.TriggerDispatcher: on each ingested
// point it looks up the first matching trigger and, if one exists,
// submits a Trigger request carrying a copy of the point to the script
// worker.
type Dispatcher struct {
	dict   *Dict
	worker *scriptworker.Worker
}

func NewDispatcher(dict *Dict, worker *scriptworker.Worker) *Dispatcher {
	return &Dispatcher{dict: dict, worker: worker}
}

func (d *Dispatcher) Dispatch(dp dpoint.Datapoint) {
	body, ok := d.dict.firstMatch(dp.Varname)
	if !ok {
		return
	}
	metrics.TriggerFiresTotal.Inc()
	d.worker.Submit(scriptworker.Request{Kind: scriptworker.Trigger, Body: body, Point: dp.Clone()})
}
