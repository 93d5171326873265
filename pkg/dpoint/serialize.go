package dpoint

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseText parses the `varname timestamp dtype len payload...` line
// produced by SerializeText (the shape `%setdata` and the legacy text send
// encoding both use), the inverse of SerializeText.
func ParseText(line string) (Datapoint, error) {
	parts := strings.SplitN(line, " ", 5)
	if len(parts) < 4 {
		return Datapoint{}, fmt.Errorf("dpoint: malformed setdata line: %q", line)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Datapoint{}, fmt.Errorf("dpoint: bad timestamp: %w", err)
	}
	dtype, ok := ParseType(parts[2])
	if !ok {
		return Datapoint{}, fmt.Errorf("dpoint: unknown dtype %q", parts[2])
	}
	rest := ""
	if len(parts) == 5 {
		rest = parts[4]
	}

	dp := Datapoint{Varname: parts[0], Timestamp: ts, DType: dtype}
	switch dtype {
	case TypeString, TypeScript, TypeTriggerScript, TypeJSON:
		dp.Payload = []byte(rest)
	case TypeFloat:
		dp.Payload = parseFloatFields(strings.Fields(rest), 4)
	case TypeDouble:
		dp.Payload = parseFloatFields(strings.Fields(rest), 8)
	case TypeShort, TypeInt, TypeByte:
		dp.Payload = parseIntFields(strings.Fields(rest), dtype.ElementSize())
	default:
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return Datapoint{}, fmt.Errorf("dpoint: bad base64 payload: %w", err)
		}
		dp.Payload = decoded
	}
	return dp, nil
}

func parseFloatFields(fields []string, width int) []byte {
	buf := make([]byte, width*len(fields))
	for i, f := range fields {
		v, _ := strconv.ParseFloat(f, 64)
		if width == 4 {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
	}
	return buf
}

func parseIntFields(fields []string, width int) []byte {
	if width <= 0 {
		width = 1
	}
	buf := make([]byte, width*len(fields))
	for i, f := range fields {
		v, _ := strconv.ParseInt(f, 10, 64)
		switch width {
		case 1:
			buf[i] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		default:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
	}
	return buf
}

// SerializeText renders a datapoint in the legacy text protocol format used
// by `%get` replies and the text-encoded send clients (§4.8): a single line
// of space-separated fields terminated by the caller with a newline.
func (d Datapoint) SerializeText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d %s %d ", d.Varname, d.Timestamp, d.DType, d.Len())
	switch d.DType {
	case TypeString, TypeScript, TypeTriggerScript, TypeJSON:
		sb.WriteString(d.AsString())
	case TypeFloat:
		writeFloatSlice(&sb, d.Payload, 4)
	case TypeDouble:
		writeFloatSlice(&sb, d.Payload, 8)
	case TypeShort, TypeInt, TypeByte:
		writeIntSlice(&sb, d.Payload, d.DType.ElementSize())
	default:
		sb.WriteString(base64.StdEncoding.EncodeToString(d.Payload))
	}
	return sb.String()
}

func writeFloatSlice(sb *strings.Builder, payload []byte, width int) {
	n := len(payload) / width
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if width == 4 {
			bits := binary.LittleEndian.Uint32(payload[i*4:])
			sb.WriteString(strconv.FormatFloat(float64(math.Float32frombits(bits)), 'g', -1, 32))
		} else {
			bits := binary.LittleEndian.Uint64(payload[i*8:])
			sb.WriteString(strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64))
		}
	}
}

func writeIntSlice(sb *strings.Builder, payload []byte, width int) {
	if width <= 0 {
		width = 1
	}
	n := len(payload) / width
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch width {
		case 1:
			sb.WriteString(strconv.Itoa(int(payload[i])))
		case 2:
			sb.WriteString(strconv.Itoa(int(int16(binary.LittleEndian.Uint16(payload[i*2:])))))
		default:
			sb.WriteString(strconv.Itoa(int(int32(binary.LittleEndian.Uint32(payload[i*4:])))))
		}
	}
}

// ParseFloatArray decodes a space-separated list of floating point values
// into a little-endian float32 payload, the representation produced by
// `%setdata` for FLOAT datapoints and consumed by trigger scripts (§4.7).
func ParseFloatArray(fields []string) []byte {
	buf := make([]byte, 4*len(fields))
	for i, f := range fields {
		v, _ := strconv.ParseFloat(f, 32)
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

// JSON renders the datapoint in the `{"name":...,"timestamp":...,"dtype":...,
// "data":...}` shape used by JSON-encoded send clients (§4.8). EVT points
// additionally expose e_type/e_subtype/e_dtype/e_params.
func (d Datapoint) JSON() string {
	var sb strings.Builder
	sb.WriteByte('{')
	fmt.Fprintf(&sb, `"name":%q,"timestamp":%d,"dtype":%q`, d.Varname, d.Timestamp, d.DType.String())
	sb.WriteString(`,"data":`)
	writeJSONData(&sb, d)
	if d.DType == TypeEvt {
		fmt.Fprintf(&sb, `,"e_type":%d,"e_subtype":%d,"e_dtype":%q`, d.Event.EType, d.Event.ESubtype, d.Event.EPutType.String())
		sb.WriteString(`,"e_params":`)
		writeJSONValueOf(&sb, d.Event.EPutType, d.Payload)
	}
	sb.WriteByte('}')
	return sb.String()
}

func writeJSONData(sb *strings.Builder, d Datapoint) {
	writeJSONValueOf(sb, d.DType, d.Payload)
}

func writeJSONValueOf(sb *strings.Builder, dtype Type, payload []byte) {
	switch dtype {
	case TypeString, TypeScript, TypeTriggerScript, TypeJSON:
		fmt.Fprintf(sb, "%q", string(payload))
	case TypeFloat, TypeDouble:
		width := 4
		if dtype == TypeDouble {
			width = 8
		}
		n := len(payload) / width
		sb.WriteByte('[')
		var tmp strings.Builder
		writeFloatSlice(&tmp, payload, width)
		sb.WriteString(strings.ReplaceAll(tmp.String(), " ", ","))
		_ = n
		sb.WriteByte(']')
	case TypeShort, TypeInt, TypeByte:
		sb.WriteByte('[')
		var tmp strings.Builder
		writeIntSlice(&tmp, payload, dtype.ElementSize())
		sb.WriteString(strings.ReplaceAll(tmp.String(), " ", ","))
		sb.WriteByte(']')
	default:
		fmt.Fprintf(sb, "%q", base64.StdEncoding.EncodeToString(payload))
	}
}
