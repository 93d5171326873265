package scriptworker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// Engine is the narrow interface the worker drives. Alternative engines
// (a Tcl interpreter, a JS subprocess bridge) plug in behind it; the
// worker assumes a single engine instance is never called concurrently,
// which is guaranteed because only this worker goroutine ever calls it.
type Engine interface {
	Evaluate(script string) (string, error)
}

// DpointScriptSink receives DpointScript requests for forwarding to a
// queue-kind send client. Forwarding only: the sink owns freeing Point.
type DpointScriptSink interface {
	Deliver(point dpoint.Datapoint)
}

// Worker owns the interpreter and drains a request queue single-
// threaded, so trigger-script execution order equals trigger-enqueue
// order (§5).
type Worker struct {
	engine Engine
	sink   DpointScriptSink
	log    *logrus.Logger
	queue  chan Request
}

// New builds a Worker with the given request queue capacity.
func New(engine Engine, sink DpointScriptSink, log *logrus.Logger, capacity int) *Worker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{engine: engine, sink: sink, log: log, queue: make(chan Request, capacity)}
}

// Submit enqueues a request. Callers needing a reply must set Reply on a
// Script request and receive from it after Submit returns.
func (w *Worker) Submit(req Request) {
	w.queue <- req
}

// Run drains the request queue until a Shutdown request arrives. It is
// meant to be the body of the worker's single goroutine.
func (w *Worker) Run() {
	for req := range w.queue {
		if w.handle(req) {
			return
		}
	}
}

// handle processes one request, returning true if the worker should exit.
func (w *Worker) handle(req Request) (shutdown bool) {
	switch req.Kind {
	case Script:
		start := time.Now()
		result, err := w.engine.Evaluate(req.Body)
		metrics.ScriptEvalDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ScriptErrorsTotal.Inc()
			result = "!TCL_ERROR " + err.Error()
		}
		if req.Reply != nil {
			req.Reply <- result
		}
	case ScriptNoReply:
		start := time.Now()
		_, err := w.engine.Evaluate(req.Body)
		metrics.ScriptEvalDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ScriptErrorsTotal.Inc()
			w.log.WithError(err).WithField("script", req.Body).Warn("script evaluation failed")
		}
	case Trigger:
		arg := req.Point.Varname
		if req.Point.DType == dpoint.TypeEvt {
			arg = req.Point.EventTag()
		}
		script := fmt.Sprintf("%s %s %s", req.Body, arg, req.Point.AsString())
		if _, err := w.engine.Evaluate(script); err != nil {
			w.log.WithError(err).WithField("trigger", req.Body).Warn("trigger evaluation failed")
		}
	case DpointScript:
		if w.sink != nil {
			w.sink.Deliver(req.Point)
		}
	case Shutdown:
		return true
	}
	return false
}
