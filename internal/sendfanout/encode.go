// Package sendfanout implements send-client registration and the notify
// fan-out path (§4.8): one worker goroutine per client, draining its own
// FIFO queue and writing encoded frames to its transport.
package sendfanout

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

// Encoding selects a send client's wire format.
type Encoding int

const (
	EncodingBinary Encoding = iota
	EncodingLegacyText
	EncodingJSON
)

const (
	frameSentinel         byte = '>'
	oversizedFrameSentinel byte = '}'
)

// maxShortField is the largest value the fixed 2-byte varname-length field
// can hold before a frame must switch to the oversized shape.
const maxShortField = math.MaxUint16

// EncodeBinary renders dp as the fixed-layout binary frame (§4.8): 1-byte
// sentinel, 2-byte varname length, varname, 8-byte timestamp, 4-byte
// datatype, 4-byte payload length, payload. A varname longer than a
// 16-bit field can hold falls back to the oversized frame shape instead
// (§12 supplemented detail).
func EncodeBinary(dp dpoint.Datapoint) []byte {
	if len(dp.Varname) > maxShortField {
		return encodeOversizedBinary(dp)
	}
	var buf bytes.Buffer
	buf.WriteByte(frameSentinel)
	binary.Write(&buf, binary.LittleEndian, uint16(len(dp.Varname)))
	buf.WriteString(dp.Varname)
	binary.Write(&buf, binary.LittleEndian, dp.Timestamp)
	binary.Write(&buf, binary.LittleEndian, int32(dp.DType))
	binary.Write(&buf, binary.LittleEndian, uint32(len(dp.Payload)))
	buf.Write(dp.Payload)
	return buf.Bytes()
}

// encodeOversizedBinary renders the fallback frame shape: a leading 4-byte
// total length prefix (covering everything after the sentinel and this
// prefix) followed by the same fields with a 4-byte varname-length field
// in place of the 2-byte one.
func encodeOversizedBinary(dp dpoint.Datapoint) []byte {
	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, uint32(len(dp.Varname)))
	body.WriteString(dp.Varname)
	binary.Write(&body, binary.LittleEndian, dp.Timestamp)
	binary.Write(&body, binary.LittleEndian, int32(dp.DType))
	binary.Write(&body, binary.LittleEndian, uint32(len(dp.Payload)))
	body.Write(dp.Payload)

	var buf bytes.Buffer
	buf.WriteByte(oversizedFrameSentinel)
	binary.Write(&buf, binary.LittleEndian, uint32(body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

// DecodeBinary parses exactly one frame (either shape) from the front of
// r, returning the decoded datapoint and the number of bytes consumed.
func DecodeBinary(r []byte) (dpoint.Datapoint, int, error) {
	if len(r) < 1 {
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: empty frame")
	}
	switch r[0] {
	case frameSentinel:
		return decodeShort(r)
	case oversizedFrameSentinel:
		return decodeOversized(r)
	default:
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: unknown frame sentinel %q", r[0])
	}
}

func decodeShort(r []byte) (dpoint.Datapoint, int, error) {
	const headerLen = 1 + 2 + 8 + 4 + 4
	if len(r) < headerLen {
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: short frame header")
	}
	pos := 1
	varnameLen := int(binary.LittleEndian.Uint16(r[pos:]))
	pos += 2
	if len(r) < pos+varnameLen+8+4+4 {
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: truncated frame")
	}
	varname := string(r[pos : pos+varnameLen])
	pos += varnameLen
	ts := int64(binary.LittleEndian.Uint64(r[pos:]))
	pos += 8
	dtype := dpoint.Type(int32(binary.LittleEndian.Uint32(r[pos:])))
	pos += 4
	payloadLen := int(binary.LittleEndian.Uint32(r[pos:]))
	pos += 4
	if len(r) < pos+payloadLen {
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: truncated payload")
	}
	payload := append([]byte(nil), r[pos:pos+payloadLen]...)
	pos += payloadLen
	return dpoint.Datapoint{Varname: varname, Timestamp: ts, DType: dtype, Payload: payload}, pos, nil
}

func decodeOversized(r []byte) (dpoint.Datapoint, int, error) {
	const prefixLen = 1 + 4
	if len(r) < prefixLen {
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: short oversized frame prefix")
	}
	bodyLen := int(binary.LittleEndian.Uint32(r[1:]))
	if len(r) < prefixLen+bodyLen {
		return dpoint.Datapoint{}, 0, fmt.Errorf("sendfanout: truncated oversized frame")
	}
	body := r[prefixLen : prefixLen+bodyLen]
	pos := 0
	varnameLen := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	varname := string(body[pos : pos+varnameLen])
	pos += varnameLen
	ts := int64(binary.LittleEndian.Uint64(body[pos:]))
	pos += 8
	dtype := dpoint.Type(int32(binary.LittleEndian.Uint32(body[pos:])))
	pos += 4
	payloadLen := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	payload := append([]byte(nil), body[pos:pos+payloadLen]...)
	return dpoint.Datapoint{Varname: varname, Timestamp: ts, DType: dtype, Payload: payload}, prefixLen + bodyLen, nil
}

// Encode renders dp per enc, the single switch point every client worker
// calls before writing to its transport.
func Encode(enc Encoding, dp dpoint.Datapoint) []byte {
	switch enc {
	case EncodingLegacyText:
		return []byte(dp.SerializeText() + "\n")
	case EncodingJSON:
		return []byte(dp.JSON() + "\n")
	default:
		return EncodeBinary(dp)
	}
}
