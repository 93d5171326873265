// Package paramcodec translates between the textual parameter tokens used
// by `%set`-style processor configuration commands and the typed binary
// encodings processors store internally, mirroring the original's
// puSetParamEntry/puGetParamEntry pair.
package paramcodec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type tags a parameter's storage representation.
type Type int

const (
	Char Type = iota
	Short
	Long
	Float
	Double
	LongArray
	FloatArray
)

// Encode converts whitespace-separated textual tokens into the little-
// endian typed byte representation for t.
func Encode(t Type, text string) ([]byte, error) {
	fields := strings.Fields(text)
	switch t {
	case Char:
		if len(fields) == 0 {
			return nil, fmt.Errorf("paramcodec: CHAR requires one token")
		}
		return []byte(fields[0])[:1], nil
	case Short:
		v, err := parseInt(fields, 1)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int16(v[0])))
		return buf, nil
	case Long:
		v, err := parseInt(fields, 1)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(v[0])))
		return buf, nil
	case Float:
		v, err := parseFloat(fields, 1)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v[0])))
		return buf, nil
	case Double:
		v, err := parseFloat(fields, 1)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v[0]))
		return buf, nil
	case LongArray:
		v, err := parseInt(fields, 0)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(x)))
		}
		return buf, nil
	case FloatArray:
		v, err := parseFloat(fields, 0)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(x)))
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("paramcodec: unknown type %d", t)
	}
}

// Decode renders the typed byte representation buf back to whitespace-
// separated text, the form `%getparam`-style replies use.
func Decode(t Type, buf []byte) string {
	var sb strings.Builder
	switch t {
	case Char:
		if len(buf) > 0 {
			sb.WriteByte(buf[0])
		}
	case Short:
		if len(buf) >= 2 {
			fmt.Fprintf(&sb, "%d", int16(binary.LittleEndian.Uint16(buf)))
		}
	case Long:
		if len(buf) >= 4 {
			fmt.Fprintf(&sb, "%d", int32(binary.LittleEndian.Uint32(buf)))
		}
	case Float:
		if len(buf) >= 4 {
			fmt.Fprintf(&sb, "%s", formatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))))
		}
	case Double:
		if len(buf) >= 8 {
			fmt.Fprintf(&sb, "%s", formatFloat(math.Float64frombits(binary.LittleEndian.Uint64(buf))))
		}
	case LongArray:
		for i := 0; i+4 <= len(buf); i += 4 {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%d", int32(binary.LittleEndian.Uint32(buf[i:])))
		}
	case FloatArray:
		for i := 0; i+4 <= len(buf); i += 4 {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(formatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i:])))))
		}
	}
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseInt(fields []string, want int) ([]int64, error) {
	if want > 0 && len(fields) != want {
		return nil, fmt.Errorf("paramcodec: expected %d token(s), got %d", want, len(fields))
	}
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("paramcodec: bad integer token %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloat(fields []string, want int) ([]float64, error) {
	if want > 0 && len(fields) != want {
		return nil, fmt.Errorf("paramcodec: expected %d token(s), got %d", want, len(fields))
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("paramcodec: bad float token %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}
