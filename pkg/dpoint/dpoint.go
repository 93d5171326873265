// Package dpoint defines the datapoint: the named, timestamped, typed unit
// of data that flows through the hub.
package dpoint

import (
	"fmt"
	"time"
)

// Type tags the datapoint's payload so consumers know how to decode it.
type Type int

const (
	TypeByte Type = iota
	TypeString
	TypeFloat
	TypeDouble
	TypeShort
	TypeInt
	TypeDG
	TypeScript
	TypeTriggerScript
	TypeEvt
	TypeNone
	TypeJSON
	TypeArrow
	TypeMsgpack
	TypeJPEG
	TypePPM
	TypeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeByte:
		return "BYTE"
	case TypeString:
		return "STRING"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeShort:
		return "SHORT"
	case TypeInt:
		return "INT"
	case TypeDG:
		return "DG"
	case TypeScript:
		return "SCRIPT"
	case TypeTriggerScript:
		return "TRIGGER_SCRIPT"
	case TypeEvt:
		return "EVT"
	case TypeNone:
		return "NONE"
	case TypeJSON:
		return "JSON"
	case TypeArrow:
		return "ARROW"
	case TypeMsgpack:
		return "MSGPACK"
	case TypeJPEG:
		return "JPEG"
	case TypePPM:
		return "PPM"
	default:
		return "UNKNOWN"
	}
}

// ParseType maps a type name as it appears on the wire (`%setdata`'s DTYPE
// field) back to its Type constant, the inverse of String().
func ParseType(name string) (Type, bool) {
	switch name {
	case "BYTE":
		return TypeByte, true
	case "STRING":
		return TypeString, true
	case "FLOAT":
		return TypeFloat, true
	case "DOUBLE":
		return TypeDouble, true
	case "SHORT":
		return TypeShort, true
	case "INT":
		return TypeInt, true
	case "DG":
		return TypeDG, true
	case "SCRIPT":
		return TypeScript, true
	case "TRIGGER_SCRIPT":
		return TypeTriggerScript, true
	case "EVT":
		return TypeEvt, true
	case "NONE":
		return TypeNone, true
	case "JSON":
		return TypeJSON, true
	case "ARROW":
		return TypeArrow, true
	case "MSGPACK":
		return TypeMsgpack, true
	case "JPEG":
		return TypeJPEG, true
	case "PPM":
		return TypePPM, true
	default:
		return TypeUnknown, false
	}
}

// ElementSize returns the width in bytes of one scalar element of t, or 0
// when t has no fixed element width (STRING, DG, JSON, blobs, ...). A
// payload whose length equals ElementSize(t) is a single value; longer
// payloads of a multiple of ElementSize(t) are arrays (I2).
func (t Type) ElementSize() int {
	switch t {
	case TypeByte:
		return 1
	case TypeShort:
		return 2
	case TypeInt, TypeFloat:
		return 4
	case TypeDouble:
		return 8
	default:
		return 0
	}
}

// Flags is a bit set of sentinel and lifecycle markers carried alongside a
// datapoint's value.
type Flags uint32

const (
	// FlagShutdown marks a sentinel datapoint that signals a worker to exit.
	FlagShutdown Flags = 1 << iota
	// FlagDontFree marks a statically-allocated sentinel; consumers must not
	// treat it as an owned, freeable value (I3).
	FlagDontFree
	// FlagLoggerPause requests a log client transition to the paused state.
	FlagLoggerPause
	// FlagLoggerStart requests a log client transition to the running state.
	FlagLoggerStart
	// FlagLoggerFlush requests a log client flush its coalescing buffer.
	FlagLoggerFlush
	// FlagBufferUninitialized marks a log buffer that has not yet received
	// its first deposit (no type has been fixed for it yet).
	FlagBufferUninitialized
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// EventFields carries the event-specific sub-fields, meaningful only when
// Type == TypeEvt.
type EventFields struct {
	EType    int32
	ESubtype int32
	// EPutType records the real datatype of the value embedded in an EVT
	// datapoint's payload (e.g. a FLOAT array smuggled inside an event).
	EPutType Type
}

// Well-known event types used by the logger's obs-window gating (§4.9).
const (
	EvtTypeObsBegin int32 = 19
	EvtTypeObsEnd   int32 = 20
)

// Datapoint is the fundamental unit of the hub: a named, timestamped,
// typed, owned buffer (§3.1).
//
// A Datapoint owns its Varname and Payload; Clone deep-copies both (I1).
// Payload's length is always the exact number of valid bytes (I2).
type Datapoint struct {
	Varname   string
	Timestamp int64 // microseconds since the ingester's chosen epoch
	DType     Type
	Payload   []byte
	Flags     Flags
	Event     EventFields
}

// NowMicros returns the current wall-clock time in microseconds, the
// default timestamp source used by ingestion when the caller does not
// supply one.
func NowMicros() int64 {
	return time.Now().UnixMicro()
}

// New builds a Datapoint stamped with the current time.
func New(varname string, dtype Type, payload []byte) Datapoint {
	return Datapoint{
		Varname:   varname,
		Timestamp: NowMicros(),
		DType:     dtype,
		Payload:   payload,
	}
}

// NewString builds a STRING datapoint, the type used by most wire-protocol
// `%set` commands.
func NewString(varname, value string) Datapoint {
	return New(varname, TypeString, []byte(value))
}

// NewEvent builds an EVT datapoint wrapping an embedded value of puttype.
func NewEvent(varname string, etype, esubtype int32, puttype Type, payload []byte) Datapoint {
	dp := New(varname, TypeEvt, payload)
	dp.Event = EventFields{EType: etype, ESubtype: esubtype, EPutType: puttype}
	return dp
}

// Sentinel returns a statically-allocated, don't-free datapoint carrying
// only control flags (I3). Fan-out workers compare against Flags, never
// against payload content, to detect sentinels.
func Sentinel(flags Flags) Datapoint {
	return Datapoint{DType: TypeNone, Flags: flags | FlagDontFree}
}

// IsSentinel reports whether d is a don't-free control marker rather than a
// data-carrying point.
func (d Datapoint) IsSentinel() bool {
	return d.Flags.Has(FlagDontFree)
}

// Clone deep-copies the datapoint's owned buffers so the copy shares no
// memory with the original (I1). Sentinels, which are never mutated, are
// returned as a shallow copy — their Payload is always nil.
func (d Datapoint) Clone() Datapoint {
	if d.IsSentinel() {
		return d
	}
	out := d
	if d.Payload != nil {
		out.Payload = make([]byte, len(d.Payload))
		copy(out.Payload, d.Payload)
	}
	return out
}

// Len returns the number of bytes in the payload.
func (d Datapoint) Len() int { return len(d.Payload) }

// AsString interprets the payload as text, valid for STRING/SCRIPT/JSON
// typed points and for diagnostics on any other type.
func (d Datapoint) AsString() string { return string(d.Payload) }

// EventTag renders the "evt:TYPE:SUBTYPE" tag the script worker passes as
// the triggering argument for EVT datapoints (§4.7).
func (d Datapoint) EventTag() string {
	return fmt.Sprintf("evt:%d:%d", d.Event.EType, d.Event.ESubtype)
}
