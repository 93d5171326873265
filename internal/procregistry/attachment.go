// Package procregistry implements the processor attachment chain (§4.5):
// at most one attachment per name, resolved from either a built-in
// implementation or a dynamically-loaded plugin, kept alive for the
// process lifetime.
package procregistry

import (
	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/internal/orchestrator"
	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// Attachment is the Go-side shape of the five-entry-point plugin ABI
// (§6.3): onProcess, newProcessParams/freeProcessParams collapse into
// construction/GC, setProcessParams/getProcessParams become SetParam/
// GetParam.
type Attachment interface {
	// OnProcess runs the attachment's transform over an ingested point.
	OnProcess(dp dpoint.Datapoint) (orchestrator.ProcessAction, dpoint.Datapoint)
	// SetParam applies a textual parameter setting, optionally returning
	// a derived datapoint to publish (e.g. to reflect updated config).
	SetParam(name string, tokens []string) (orchestrator.ProcessAction, dpoint.Datapoint, error)
	// GetParam returns the current textual value of name, if known.
	GetParam(name string) (string, bool)
}

type registration struct {
	attachmentName string
	varname        string
	attachment     Attachment
	unload         func()
}

// Registry holds every attached processor, keyed by attachment-name (so
// re-attaching the same name replaces it), while answering the ingestion
// path's question — "what attachment, if any, watches this varname" — by
// the same linear first-match scan the original hub performs (§4.5: "only
// one attachment fires per ingestion").
type Registry struct {
	entries []*registration
}

func New() *Registry {
	return &Registry{}
}

// Attach installs attachment under attachmentName, watching varname. Any
// prior attachment registered under the same attachmentName is unloaded
// first (its unload func, if any, is called) — "attaching to a name frees
// prior state".
func (r *Registry) Attach(attachmentName, varname string, attachment Attachment, unload func()) {
	for i, e := range r.entries {
		if e.attachmentName == attachmentName {
			if e.unload != nil {
				e.unload()
			}
			r.entries[i] = &registration{attachmentName: attachmentName, varname: varname, attachment: attachment, unload: unload}
			return
		}
	}
	r.entries = append(r.entries, &registration{attachmentName: attachmentName, varname: varname, attachment: attachment, unload: unload})
	metrics.ProcessorAttachments.Set(float64(len(r.entries)))
}

// Detach removes attachmentName's registration, unloading it.
func (r *Registry) Detach(attachmentName string) bool {
	for i, e := range r.entries {
		if e.attachmentName == attachmentName {
			if e.unload != nil {
				e.unload()
			}
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			metrics.ProcessorAttachments.Set(float64(len(r.entries)))
			return true
		}
	}
	return false
}

// Process implements orchestrator.Processor: the first attachment (by
// registration order) whose varname equals dp.Varname runs; all others
// are skipped, matching the original's "only one attachment fires per
// ingestion" rule.
func (r *Registry) Process(dp dpoint.Datapoint) (orchestrator.ProcessAction, dpoint.Datapoint) {
	for _, e := range r.entries {
		if e.varname == dp.Varname {
			return e.attachment.OnProcess(dp)
		}
	}
	return orchestrator.ActionIgnore, dpoint.Datapoint{}
}

// SetParam routes a parameter-set call to the attachment registered under
// attachmentName.
func (r *Registry) SetParam(attachmentName, param string, tokens []string) (orchestrator.ProcessAction, dpoint.Datapoint, bool, error) {
	for _, e := range r.entries {
		if e.attachmentName == attachmentName {
			action, derived, err := e.attachment.SetParam(param, tokens)
			return action, derived, true, err
		}
	}
	return orchestrator.ActionIgnore, dpoint.Datapoint{}, false, nil
}

// GetParam routes a parameter-get call to the attachment registered under
// attachmentName.
func (r *Registry) GetParam(attachmentName, param string) (string, bool) {
	for _, e := range r.entries {
		if e.attachmentName == attachmentName {
			return e.attachment.GetParam(param)
		}
	}
	return "", false
}
