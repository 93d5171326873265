package procregistry

import (
	"plugin"

	"github.com/sheinberglab/dserv/internal/orchestrator"
	"github.com/sheinberglab/dserv/pkg/dpoint"
	"github.com/sheinberglab/dserv/pkg/dserverr"
)

// Exported plugin symbol names. A processor shared object must export all
// five, matching the original's C-linkage ABI (§6.3) one-for-one.
const (
	SymNewProcessParams  = "NewProcessParams"
	SymFreeProcessParams = "FreeProcessParams"
	SymSetProcessParams  = "SetProcessParams"
	SymGetProcessParams  = "GetProcessParams"
	SymOnProcess         = "OnProcess"
)

// PluginAttachment adapts a loaded .so's five exported symbols to the
// Attachment interface. NewProcessParams/FreeProcessParams model the
// plugin's private per-attachment state as an opaque Go value rather than
// a raw pointer, avoiding any cgo boundary while preserving the same
// lifecycle: constructed on load, freed on unload, never unloaded mid-
// process otherwise.
type PluginAttachment struct {
	state      interface{}
	onProcess  func(state interface{}, dp dpoint.Datapoint) (orchestrator.ProcessAction, dpoint.Datapoint)
	setParams  func(state interface{}, name string, tokens []string) (orchestrator.ProcessAction, dpoint.Datapoint, error)
	getParams  func(state interface{}, name string) (string, bool)
}

// Load opens the shared object at path and resolves its five entry
// points, failing the whole load if any is missing (§7
// processor-missing-symbol policy: fail with a specific code, never
// register a partially-resolved plugin).
func Load(path string) (*PluginAttachment, func(), error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, nil, dserverr.ResourceFailed("procregistry", "Load", err.Error())
	}

	newFn, err := lookup[func() interface{}](p, SymNewProcessParams)
	if err != nil {
		return nil, nil, err
	}
	freeFn, err := lookup[func(interface{})](p, SymFreeProcessParams)
	if err != nil {
		return nil, nil, err
	}
	setFn, err := lookup[func(interface{}, string, []string) (orchestrator.ProcessAction, dpoint.Datapoint, error)](p, SymSetProcessParams)
	if err != nil {
		return nil, nil, err
	}
	getFn, err := lookup[func(interface{}, string) (string, bool)](p, SymGetProcessParams)
	if err != nil {
		return nil, nil, err
	}
	onFn, err := lookup[func(interface{}, dpoint.Datapoint) (orchestrator.ProcessAction, dpoint.Datapoint)](p, SymOnProcess)
	if err != nil {
		return nil, nil, err
	}

	state := newFn()
	attachment := &PluginAttachment{
		state:     state,
		onProcess: onFn,
		setParams: setFn,
		getParams: getFn,
	}
	unload := func() { freeFn(state) }
	return attachment, unload, nil
}

func (a *PluginAttachment) OnProcess(dp dpoint.Datapoint) (orchestrator.ProcessAction, dpoint.Datapoint) {
	return a.onProcess(a.state, dp)
}

func (a *PluginAttachment) SetParam(name string, tokens []string) (orchestrator.ProcessAction, dpoint.Datapoint, error) {
	return a.setParams(a.state, name, tokens)
}

func (a *PluginAttachment) GetParam(name string) (string, bool) {
	return a.getParams(a.state, name)
}

func lookup[T any](p *plugin.Plugin, name string) (T, error) {
	var zero T
	sym, err := p.Lookup(name)
	if err != nil {
		return zero, dserverr.ProcessorMissingSymbol("procregistry", "Load", "missing symbol "+name)
	}
	fn, ok := sym.(T)
	if !ok {
		return zero, dserverr.ProcessorMissingSymbol("procregistry", "Load", "symbol "+name+" has the wrong signature")
	}
	return fn, nil
}
