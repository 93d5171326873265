package sendfanout

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/match"
)

// TestMain confirms ShutdownAll actually stops every client's Run
// goroutine rather than leaving it parked on an empty queue.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memTransport struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	fail   bool
}

func (m *memTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, bytesErr
	}
	return m.buf.Write(p)
}
func (m *memTransport) Close() error { m.mu.Lock(); defer m.mu.Unlock(); m.closed = true; return nil }
func (m *memTransport) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

var bytesErr = &writeError{"write failed"}

type writeError struct{ s string }

func (e *writeError) Error() string { return e.s }

func TestPublishDeliversOnlyToMatchingClients(t *testing.T) {
	tbl := NewTable()
	tr := &memTransport{}
	c := NewClient("localhost", 9000, EncodingLegacyText, tr, 8, nil)
	c.Matches.Insert("sub1", match.NewMatchSpec("ess/*"))
	tbl.Register(c)

	tbl.Publish(dpoint.NewString("ess/state", "running"))
	tbl.Publish(dpoint.NewString("system/hostname", "host1"))

	waitForClientOutput(t, tr, "ess/state")
	if got := tr.String(); !bytes.Contains([]byte(got), []byte("ess/state")) {
		t.Fatalf("expected delivery of ess/state, got %q", got)
	}
	if bytes.Contains([]byte(tr.String()), []byte("system/hostname")) {
		t.Fatalf("did not expect delivery of non-matching name, got %q", tr.String())
	}
	tbl.ShutdownAll()
}

func TestFailedWriteDisablesAndPurgesClient(t *testing.T) {
	tbl := NewTable()
	tr := &memTransport{fail: true}
	c := NewClient("localhost", 9001, EncodingLegacyText, tr, 8, nil)
	c.Matches.Insert("sub1", match.NewMatchSpec("*"))
	tbl.Register(c)

	tbl.Publish(dpoint.NewString("a", "1"))
	time.Sleep(20 * time.Millisecond)
	tbl.Publish(dpoint.NewString("b", "2"))
	time.Sleep(20 * time.Millisecond)

	if _, ok := tbl.Find("localhost", 9001); ok {
		t.Fatal("expected the failing client to be purged after a write failure")
	}
}

func waitForClientOutput(t *testing.T, tr *memTransport, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if bytes.Contains([]byte(tr.String()), []byte(want)) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in client output", want)
}
