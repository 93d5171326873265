package logfanout

import (
	"bufio"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/match"
)

// State is a log client's lifecycle state (§3.6).
type State int32

const (
	StatePaused State = iota
	StateRunning
	StateShutdown
)

// Client is one registered log-client subscriber (§3.6): an open output
// file, its own subscription dictionary, a delivery queue, and the
// obs-window state that gates obs_limited matches.
type Client struct {
	Path    string
	Matches *match.LogMatchDict

	state    atomic.Int32
	inObs    atomic.Bool
	obsCount atomic.Int64

	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex

	q   chan dpoint.Datapoint
	log *logrus.Logger
}

// Open creates (or overwrites) path, writes the log header, and returns a
// Client in the paused state: a client starts out requiring an explicit
// %logstart before anything is written, matching the wire protocol's
// separate %logopen/%logstart transitions (§6.1).
func Open(path string, overwrite bool, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	flags := os.O_CREATE | os.O_WRONLY
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	if err := WriteHeader(f, dpoint.NowMicros()); err != nil {
		f.Close()
		return nil, err
	}
	c := &Client{
		Path:    path,
		Matches: match.NewLogMatchDict(),
		file:    f,
		writer:  bufio.NewWriter(f),
		q:       make(chan dpoint.Datapoint, 256),
		log:     log,
	}
	c.state.Store(int32(StatePaused))
	go c.run()
	return c, nil
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) Start()  { c.state.Store(int32(StateRunning)) }
func (c *Client) Pause()  { c.state.Store(int32(StatePaused)) }
func (c *Client) Flush()  { c.q <- dpoint.Sentinel(dpoint.FlagLoggerFlush) }
func (c *Client) Shutdown() {
	c.state.Store(int32(StateShutdown))
	c.q <- dpoint.Sentinel(dpoint.FlagShutdown)
}

// Deliver writes dp straight to the client's delivery queue. It is used
// for every already-matched, non-boundary record: plain matched
// datapoints and the coalescing buffer's flush/bypass output.
func (c *Client) Deliver(dp dpoint.Datapoint) {
	c.q <- dp
}

// DeliverObsBoundary brackets an OBS_BEGIN/OBS_END event with this
// client's begin/end(+flush) markers. It is called only for clients that
// have at least one obs-limited subscription (§4.9): the markers land
// unconditionally, regardless of whether the boundary event's own varname
// matches anything, since the obs-limited subscription asked for the
// window boundary, not for that specific varname. The raw event record
// itself is included only when logRaw is true, which the caller decides
// via a separate match check.
func (c *Client) DeliverObsBoundary(dp dpoint.Datapoint, logRaw bool) {
	switch dp.Event.EType {
	case dpoint.EvtTypeObsBegin:
		c.inObs.Store(true)
		c.q <- beginObsMarker()
		if logRaw {
			c.q <- dp
		}
	case dpoint.EvtTypeObsEnd:
		c.q <- dpoint.Sentinel(dpoint.FlagLoggerFlush)
		if logRaw {
			c.q <- dp
		}
		c.q <- endObsMarker()
		c.inObs.Store(false)
	}
}

const (
	beginObsName = "logger:beginobs"
	endObsName   = "logger:endobs"
)

func beginObsMarker() dpoint.Datapoint {
	return dpoint.New(beginObsName, dpoint.TypeNone, nil)
}

func endObsMarker() dpoint.Datapoint {
	return dpoint.New(endObsName, dpoint.TypeNone, nil)
}

// InObs reports whether the client currently believes it is inside an obs
// window, for the caller deciding whether an obs_limited match is due.
func (c *Client) InObs() bool { return c.inObs.Load() }

func (c *Client) run() {
	defer c.close()
	for dp := range c.q {
		if dp.IsSentinel() {
			if dp.Flags.Has(dpoint.FlagShutdown) {
				return
			}
			// A FlagLoggerFlush sentinel writes out every coalescing
			// buffer's pending record before anything queued behind it
			// (at OBS_END: before the raw event and the end-obs marker).
			if dp.Flags.Has(dpoint.FlagLoggerFlush) {
				for _, flushed := range c.Matches.FlushAll() {
					c.writeDirect(flushed)
				}
			}
			continue
		}
		c.writeDirect(dp)
	}
}

// writeDirect writes a record straight through; coalescing buffers are
// owned by LogMatchDict specs and flushed explicitly, so by the time a
// Client sees a datapoint via Deliver it already reflects that decision
// at the Table layer (see table.go publishToClient).
func (c *Client) writeDirect(dp dpoint.Datapoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteRecord(c.writer, dp); err != nil {
		c.log.WithError(err).WithField("path", c.Path).Warn("log write failed, disabling client")
		c.state.Store(int32(StateShutdown))
		return
	}
	c.writer.Flush()
	metrics.LogRecordsWrittenTotal.WithLabelValues(c.Path).Inc()
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	c.file.Close()
}

// lastActivity supports the disk-space manager's idle-file eviction scan.
func (c *Client) lastActivity() time.Time {
	info, err := os.Stat(c.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
