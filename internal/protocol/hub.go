// Package protocol implements the public TCP boundary (§4.10): a thin
// translation layer from wire commands to the core orchestrator/registry
// API calls. It owns no state of its own beyond the registries it is
// constructed with, and never mutates the table except through the
// orchestrator.
package protocol

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/logfanout"
	"github.com/sheinberglab/dserv/internal/orchestrator"
	"github.com/sheinberglab/dserv/internal/sendfanout"
	"github.com/sheinberglab/dserv/internal/tracing"
)

const protocolVersion = "3 3.0"

// Hub bundles every registry a connection's commands may touch.
type Hub struct {
	Orch    *orchestrator.Orchestrator
	SendTbl *sendfanout.Table
	LogTbl  *logfanout.Table

	// Dial builds the outbound connection for a new send client; swapped
	// out in tests to avoid real sockets.
	Dial     func(host string, port int) (net.Conn, error)
	QueueCap int
	Log      *logrus.Logger

	// Tracer opens the root ingestion span for %set/%setdata/binary-set
	// commands. Nil is valid and skips tracing entirely (used by tests).
	Tracer *tracing.Manager
}

// traceIngest opens a root span for name's ingestion if a tracer is
// configured, returning the func to close it; a no-op when Tracer is nil.
func (h *Hub) traceIngest(name string) func() {
	if h.Tracer == nil {
		return func() {}
	}
	_, span := h.Tracer.StartIngest(context.Background(), name)
	return func() { span.End() }
}

func New(orch *orchestrator.Orchestrator, sendTbl *sendfanout.Table, logTbl *logfanout.Table, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		Orch:    orch,
		SendTbl: sendTbl,
		LogTbl:  logTbl,
		Dial: func(host string, port int) (net.Conn, error) {
			return net.Dial("tcp", net.JoinHostPort(host, portString(port)))
		},
		QueueCap: 1024,
		Log:      log,
	}
}

const (
	flagBinary = 1 << 0
	flagJSON   = 1 << 1
)

func (h *Hub) encodingFor(flags int) sendfanout.Encoding {
	switch {
	case flags&flagJSON != 0:
		return sendfanout.EncodingJSON
	case flags&flagBinary != 0:
		return sendfanout.EncodingBinary
	default:
		return sendfanout.EncodingLegacyText
	}
}
