package sendfanout

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/internal/queue"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/match"
)

// Transport is the write side of a send client's connection: a TCP
// socket for socket-kind clients, or an in-process adapter for
// queue-kind clients embedded in a scripting engine.
type Transport interface {
	io.WriteCloser
}

// Client is one registered send-client subscriber (§3.5): a transport, an
// encoding, a set of glob subscriptions, and its own FIFO delivery queue
// drained by a single worker goroutine.
type Client struct {
	Host     string
	Port     int
	Encoding Encoding
	Matches  *match.MatchDict

	transport Transport
	q         *queue.Queue
	active    atomic.Bool
	log       *logrus.Logger
}

// NewClient builds a Client bound to transport, with its own delivery
// queue of the given capacity.
func NewClient(host string, port int, enc Encoding, transport Transport, queueCapacity int, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{
		Host:      host,
		Port:      port,
		Encoding:  enc,
		Matches:   match.NewMatchDict(),
		transport: transport,
		q:         queue.New(queueCapacity),
		log:       log,
	}
	c.active.Store(true)
	return c
}

// Active reports whether the client's worker is still running.
func (c *Client) Active() bool { return c.active.Load() }

// Enqueue pushes a deep copy of dp onto the client's delivery queue. The
// caller (the notify fan-out) has already decided dp matches a
// subscription.
func (c *Client) Enqueue(dp dpoint.Datapoint) {
	c.q.Push(dp.Clone())
	metrics.SendClientQueueDepth.WithLabelValues(c.Host, fmt.Sprint(c.Port)).Set(float64(c.q.Len()))
}

// Shutdown pushes the sentinel that tells the client's worker to exit
// after draining whatever is already queued.
func (c *Client) Shutdown() {
	c.q.Push(dpoint.Sentinel(dpoint.FlagShutdown))
}

// Run is the client worker's body: pop, encode, write, until a sentinel
// arrives or a write fails. A failed or short write disables the client;
// cleanup is deferred to the next notify pass, matching the original's
// lazy-removal rule (§4.8, §7 partial-failure rule).
func (c *Client) Run() {
	defer c.transport.Close()
	host, port := c.Host, fmt.Sprint(c.Port)
	for {
		dp, ok := c.q.Pop()
		if !ok || dp.IsSentinel() {
			c.active.Store(false)
			return
		}
		frame := Encode(c.Encoding, dp)
		if _, err := c.transport.Write(frame); err != nil {
			metrics.SendFailuresTotal.WithLabelValues(host, port).Inc()
			c.log.WithError(err).WithFields(logrus.Fields{"host": c.Host, "port": c.Port}).
				Warn("send client write failed, disabling")
			c.active.Store(false)
			return
		}
		metrics.SendDeliveriesTotal.WithLabelValues(host, port).Inc()
	}
}
