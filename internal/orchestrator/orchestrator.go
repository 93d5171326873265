// Package orchestrator implements the ingestion cascade: the single path
// by which every datapoint enters the table and fans out to processors,
// triggers, send clients, and log clients in a fixed, deterministic order.
package orchestrator

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/internal/table"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// ProcessAction is the processor chain's verdict on an ingested point.
type ProcessAction int

const (
	// ActionIgnore: the attachment ran but produced nothing to re-ingest.
	ActionIgnore ProcessAction = iota
	// ActionNotify: like Ignore, but the caller requests delivery to
	// notify-only subscribers without a derived point (reserved for
	// parameter-set callbacks; the ingestion path treats it as Ignore).
	ActionNotify
	// ActionDSERV: the attachment produced a derived datapoint that must
	// be recursively ingested.
	ActionDSERV
)

// Processor runs the attachment chain for a single ingested point.
type Processor interface {
	Process(dp dpoint.Datapoint) (action ProcessAction, derived dpoint.Datapoint)
}

// TriggerDispatcher enqueues a script evaluation for any trigger pattern
// matching dp's name. Exactly one trigger fires per ingestion even when
// several patterns match (§8 property 5); the dispatcher itself owns that
// fairness rule, the orchestrator just calls it unconditionally.
type TriggerDispatcher interface {
	Dispatch(dp dpoint.Datapoint)
}

// NotifyFanout delivers dp to every matching send-client subscription.
type NotifyFanout interface {
	Publish(dp dpoint.Datapoint)
}

// LogFanout delivers dp to every matching log-client subscription.
type LogFanout interface {
	Publish(dp dpoint.Datapoint)
}

const keysVarname = "dserv/keys"

// Orchestrator is the hub's ingestion entry point (§4.4). A single
// Orchestrator owns one Table and fans each ingested point out to the
// processor chain, the trigger dispatcher, the notify fanout, and the log
// fanout, in that fixed order, recursively ingesting any derived point
// before continuing the original's cascade.
type Orchestrator struct {
	table      *table.Table
	processors Processor
	triggers   TriggerDispatcher
	notify     NotifyFanout
	logs       LogFanout
	log        *logrus.Logger

	// mu serializes the table-insert step across producer goroutines, so
	// the key-publish decision ("is this name new?") is made atomically
	// with the insert that answers it. It is released before any
	// downstream fan-out or recursive set, so a derived point's own
	// cascade can freely re-enter Set (§9 design note on re-entrancy).
	mu sync.Mutex
}

// New builds an Orchestrator. Any of processors/triggers/notify/logs may
// be nil, in which case that stage of the cascade is skipped — useful for
// tests that exercise the table in isolation.
func New(t *table.Table, processors Processor, triggers TriggerDispatcher, notify NotifyFanout, logs LogFanout, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{table: t, processors: processors, triggers: triggers, notify: notify, logs: logs, log: log}
}

// Set ingests point: writes it into the table, runs the processor chain,
// dispatches trigger matches, and publishes copies onto the notify and log
// fanouts. If point's name did not previously exist in the table, Set
// additionally republishes the current key list under dserv/keys (§8
// property 3). Only after all of that does it recursively ingest any
// processor-derived point, so a later ingestion's own cascade never
// interleaves between this point's processor step and its notify enqueue
// (§4.4).
func (o *Orchestrator) Set(point dpoint.Datapoint) {
	o.ingest(point, true)
}

// Update behaves exactly like Set, including the key-publish rule: an
// update that overwrites an existing name does not republish dserv/keys,
// and one that creates a new name does, since from the table's
// perspective there is no durable difference between the two once the
// value is written (§4.4 "update(point) — like set but reuses the
// existing slot when one exists").
func (o *Orchestrator) Update(point dpoint.Datapoint) {
	o.ingest(point, true)
}

// Touch re-runs the full cascade for name's current value as if it had
// just been set again, with no key-publish side effect: processors,
// triggers, notify and logger all observe it.
func (o *Orchestrator) Touch(name string) bool {
	dp, ok := o.table.GetCopy(name)
	if !ok {
		return false
	}
	dp.Timestamp = dpoint.NowMicros()
	o.ingest(dp, false)
	return true
}

// Get returns a deep copy of name's current value.
func (o *Orchestrator) Get(name string) (dpoint.Datapoint, bool) {
	return o.table.GetCopy(name)
}

// ClearOne deletes name from the table with no fan-out.
func (o *Orchestrator) ClearOne(name string) bool {
	deleted := o.table.Delete(name)
	if deleted {
		metrics.TableSize.Set(float64(o.table.Len()))
	}
	return deleted
}

// ClearAll empties the table with no fan-out.
func (o *Orchestrator) ClearAll() {
	o.table.Clear()
}

// Keys returns the current space-joined key list.
func (o *Orchestrator) Keys() string {
	return o.table.Keys()
}

// DGDir returns the current DG directory listing.
func (o *Orchestrator) DGDir() string {
	return o.table.DGDir()
}

func (o *Orchestrator) ingest(point dpoint.Datapoint, publishKeys bool) {
	o.mu.Lock()
	isNew := false
	if publishKeys {
		isNew = !o.table.Exists(point.Varname)
	}
	o.table.Insert(point)
	o.mu.Unlock()
	metrics.TableSize.Set(float64(o.table.Len()))

	derived, hasDerived := o.runCascade(point)

	if publishKeys && isNew && point.Varname != keysVarname {
		metrics.KeyPublishesTotal.Inc()
		// The published list names the data points only, not dserv/keys
		// itself.
		var names []string
		for _, name := range strings.Fields(o.table.Keys()) {
			if name != keysVarname {
				names = append(names, name)
			}
		}
		o.Set(dpoint.NewString(keysVarname, strings.Join(names, " ")))
	}

	// The processor-derived point is re-ingested last, after this point's
	// own trigger/notify/log dispatch and key-publish check have all run
	// (§4.4): no later ingestion's processor may interleave between this
	// point's processor step and its notify enqueue.
	if hasDerived {
		o.Set(derived)
	}
}

// runCascade performs the fixed-order downstream steps for an already
// table-resident point: processor chain, trigger dispatch, notify fanout,
// log fanout. Any processor-derived point is handed back to ingest rather
// than recursively ingested here, so the caller can defer it until after
// this point's own fan-out completes.
func (o *Orchestrator) runCascade(point dpoint.Datapoint) (derived dpoint.Datapoint, hasDerived bool) {
	if o.processors != nil {
		if action, d := o.processors.Process(point); action == ActionDSERV {
			derived, hasDerived = d, true
		}
	}

	if o.triggers != nil {
		o.triggers.Dispatch(point)
	}
	if o.notify != nil {
		o.notify.Publish(point.Clone())
	}
	if o.logs != nil {
		o.logs.Publish(point.Clone())
	}
	return derived, hasDerived
}
