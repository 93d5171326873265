package logfanout

import (
	"sync"
	"sync/atomic"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// Table is the mutex-protected registry of every currently-open log
// client (§3.6), keyed by file path, plus the process-wide obs-window
// state every obs_limited subscription is gated against.
type Table struct {
	mu      sync.Mutex
	clients map[string]*Client
	inObs   atomic.Bool
}

func NewTable() *Table {
	return &Table{clients: make(map[string]*Client)}
}

func (t *Table) Register(c *Client) {
	t.mu.Lock()
	t.clients[c.Path] = c
	t.mu.Unlock()
}

func (t *Table) Unregister(path string) bool {
	t.mu.Lock()
	c, ok := t.clients[path]
	if ok {
		delete(t.clients, path)
	}
	t.mu.Unlock()
	if ok {
		c.Shutdown()
	}
	return ok
}

func (t *Table) Find(path string) (*Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[path]
	return c, ok
}

func (t *Table) snapshot() []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Client, 0, len(t.clients))
	for _, c := range t.clients {
		out = append(out, c)
	}
	return out
}

// Publish implements orchestrator.LogFanout (§4.9). A client is considered
// for delivery if it is running, or if it is paused but has at least one
// obs-limited subscription registered (it still wants the window
// boundaries while otherwise paused). For an OBS_BEGIN/OBS_END event, a
// client with an obs-limited subscription always receives its begin/end
// (+flush) markers, independent of whether the event's own varname
// matches anything — only the raw event record itself is gated by a
// match. A client with no obs-limited subscription treats the boundary
// event like any other datapoint, subject to the normal match/coalescing
// path below.
func (t *Table) Publish(dp dpoint.Datapoint) {
	isObsBoundary := dp.DType == dpoint.TypeEvt && (dp.Event.EType == dpoint.EvtTypeObsBegin || dp.Event.EType == dpoint.EvtTypeObsEnd)
	if isObsBoundary && dp.Event.EType == dpoint.EvtTypeObsBegin {
		t.inObs.Store(true)
	}

	for _, c := range t.snapshot() {
		hasObsLimited := c.Matches.HasObsLimited()
		if c.State() != StateRunning && !hasObsLimited {
			continue
		}

		if isObsBoundary && hasObsLimited {
			matched, _ := c.Matches.IsMatch(dp.Varname, true)
			c.DeliverObsBoundary(dp.Clone(), matched)
			continue
		}

		matched, buf := c.Matches.IsMatch(dp.Varname, t.inObs.Load())
		if !matched {
			continue
		}
		if buf == nil {
			c.Deliver(dp.Clone())
			continue
		}
		flushed, hadFlush, bypass, shouldBypass := buf.Deposit(dp.Clone())
		if hadFlush {
			c.Deliver(flushed)
		}
		if shouldBypass {
			metrics.LogBufferBypassTotal.WithLabelValues(c.Path).Inc()
			c.Deliver(bypass)
		}
	}

	if isObsBoundary && dp.Event.EType == dpoint.EvtTypeObsEnd {
		t.inObs.Store(false)
	}
}

// FlushClient flushes every coalescing buffer belonging to the client
// registered at path, writing out any accumulated records.
func (t *Table) FlushClient(path string) bool {
	c, ok := t.Find(path)
	if !ok {
		return false
	}
	for _, dp := range c.Matches.FlushAll() {
		c.Deliver(dp)
	}
	return true
}

// ShutdownAll signals every registered client to exit.
func (t *Table) ShutdownAll() {
	for _, c := range t.snapshot() {
		c.Shutdown()
	}
}
