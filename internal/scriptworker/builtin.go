package scriptworker

import (
	"fmt"
	"strings"
)

// Command is a named built-in evaluated by BuiltinEngine, e.g. dservSet,
// dservTouch exposed to trigger scripts so they can re-enter the table
// through the same public API other clients use (§4.7) — never by
// sending another Trigger request onto this worker's own queue.
type Command func(args []string) (string, error)

// BuiltinEngine is a minimal stand-in interpreter: it splits a script into
// whitespace-separated tokens, looks the first token up as a registered
// Command, and calls it with the remaining tokens. Real deployments swap
// this for an embedded Tcl or a JS subprocess bridge behind the same
// Engine interface; this one exists so the worker and trigger subsystem
// are exercisable without an external interpreter dependency.
type BuiltinEngine struct {
	commands map[string]Command
}

func NewBuiltinEngine() *BuiltinEngine {
	return &BuiltinEngine{commands: make(map[string]Command)}
}

// Register installs a named command, replacing any prior registration.
func (e *BuiltinEngine) Register(name string, cmd Command) {
	e.commands[name] = cmd
}

func (e *BuiltinEngine) Evaluate(script string) (string, error) {
	fields := strings.Fields(script)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, ok := e.commands[fields[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q", fields[0])
	}
	return cmd(fields[1:])
}
