// Package scriptworker implements the single-threaded script evaluation
// worker: the only goroutine that ever touches the embedded interpreter.
package scriptworker

import "github.com/sheinberglab/dserv/pkg/dpoint"

// Kind tags which variant of ScriptRequest a value holds.
type Kind int

const (
	// Script evaluates body and pushes the result string onto Reply.
	Script Kind = iota
	// ScriptNoReply evaluates body and discards the result.
	ScriptNoReply
	// Trigger evaluates Body as a command named after the fired trigger,
	// called with the triggering datapoint's name (or its EVT tag) and
	// its value.
	Trigger
	// DpointScript forwards Point to a queue-kind send client running
	// inside an interpreter; the worker does not evaluate it itself.
	DpointScript
	// Shutdown tells the worker to exit after draining.
	Shutdown
)

// Request is the tagged union the script worker consumes, one variant per
// Kind (§3.9).
type Request struct {
	Kind  Kind
	Body  string
	Point dpoint.Datapoint
	// Reply receives the evaluation result for Kind == Script. The
	// producer blocks on it; the worker always sends exactly one value.
	Reply chan string
}
