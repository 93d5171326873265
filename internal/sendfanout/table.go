package sendfanout

import (
	"fmt"
	"sync"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func clientKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Table is the mutex-protected registry of every currently-registered
// send client (§3.5), keyed by host:port.
type Table struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewTable() *Table {
	return &Table{clients: make(map[string]*Client)}
}

// Register adds client, starting its worker goroutine.
func (t *Table) Register(c *Client) {
	t.mu.Lock()
	t.clients[clientKey(c.Host, c.Port)] = c
	t.mu.Unlock()
	go c.Run()
}

// Unregister removes and shuts down the client at host:port.
func (t *Table) Unregister(host string, port int) bool {
	t.mu.Lock()
	key := clientKey(host, port)
	c, ok := t.clients[key]
	if ok {
		delete(t.clients, key)
	}
	t.mu.Unlock()
	if ok {
		c.Shutdown()
	}
	return ok
}

// Find returns the client registered at host:port, if any.
func (t *Table) Find(host string, port int) (*Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[clientKey(host, port)]
	return c, ok
}

// snapshot returns the currently registered clients without holding the
// table lock while each is matched and pushed to.
func (t *Table) snapshot() []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Client, 0, len(t.clients))
	for _, c := range t.clients {
		out = append(out, c)
	}
	return out
}

// purgeInactive removes any client whose worker has already exited,
// implementing the lazy-removal rule: a failing client is only dropped
// from the table on the fan-out pass that next observes it inactive.
func (t *Table) purgeInactive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, c := range t.clients {
		if !c.Active() {
			delete(t.clients, key)
		}
	}
}

// Publish implements orchestrator.NotifyFanout: for each registered
// client, check its subscriptions against dp's name and enqueue a copy
// when it matches; inactive clients are swept after the pass.
func (t *Table) Publish(dp dpoint.Datapoint) {
	clients := t.snapshot()
	anyInactive := false
	for _, c := range clients {
		if !c.Active() {
			anyInactive = true
			continue
		}
		if c.Matches.IsMatch(dp.Varname) {
			c.Enqueue(dp)
		}
	}
	if anyInactive {
		t.purgeInactive()
	}
}

// ShutdownAll signals every registered client's worker to exit.
func (t *Table) ShutdownAll() {
	for _, c := range t.snapshot() {
		c.Shutdown()
	}
}
