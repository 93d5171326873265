// Package logfanout implements log-client registration and the on-disk
// log fan-out path (§4.9, §6.2).
package logfanout

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

const (
	magic          = "dslog"
	formatVersion  = 1
	headerLen      = 16
	recordMinLen   = 2 + 8 + 4 + 4 + 4
)

// WriteHeader writes the fixed 16-byte log file header: "dslog", a
// 1-byte version, 2 pad bytes, then an 8-byte epoch-microseconds opened-
// at timestamp.
func WriteHeader(w io.Writer, openedAt int64) error {
	var buf [headerLen]byte
	copy(buf[0:5], magic)
	buf[5] = formatVersion
	binary.LittleEndian.PutUint64(buf[8:16], uint64(openedAt))
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader parses the fixed header, returning the file's opened-at
// timestamp.
func ReadHeader(r io.Reader) (openedAt int64, err error) {
	var buf [headerLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	if string(buf[0:5]) != magic {
		return 0, fmt.Errorf("logfanout: bad magic %q", buf[0:5])
	}
	return int64(binary.LittleEndian.Uint64(buf[8:16])), nil
}

// WriteRecord appends one framed record: 2-byte varname length, varname,
// 8-byte timestamp, 4-byte flags, 4-byte datatype, 4-byte payload length,
// payload. No footer — truncation at any record boundary yields a
// parseable prefix (§8 property 10).
func WriteRecord(w *bufio.Writer, dp dpoint.Datapoint) error {
	if len(dp.Varname) > 0xFFFF {
		return fmt.Errorf("logfanout: varname too long for a log record: %d bytes", len(dp.Varname))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(dp.Varname))); err != nil {
		return err
	}
	if _, err := w.WriteString(dp.Varname); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dp.Timestamp); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(dp.Flags)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(dp.DType)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(dp.Payload))); err != nil {
		return err
	}
	_, err := w.Write(dp.Payload)
	return err
}

// ReadRecord parses one framed record from r. io.EOF (or io.ErrUnexpectedEOF
// from a truncated trailing record) signals a clean or truncated end of
// stream respectively; both are treated as "no more records" by callers.
func ReadRecord(r io.Reader) (dpoint.Datapoint, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return dpoint.Datapoint{}, err
	}
	varnameLen := binary.LittleEndian.Uint16(lenBuf[:])

	rest := make([]byte, int(varnameLen)+8+4+4+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return dpoint.Datapoint{}, io.ErrUnexpectedEOF
	}
	pos := 0
	varname := string(rest[pos : pos+int(varnameLen)])
	pos += int(varnameLen)
	ts := int64(binary.LittleEndian.Uint64(rest[pos:]))
	pos += 8
	flags := dpoint.Flags(binary.LittleEndian.Uint32(rest[pos:]))
	pos += 4
	dtype := dpoint.Type(int32(binary.LittleEndian.Uint32(rest[pos:])))
	pos += 4
	payloadLen := binary.LittleEndian.Uint32(rest[pos:])
	pos += 4

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return dpoint.Datapoint{}, io.ErrUnexpectedEOF
	}
	return dpoint.Datapoint{Varname: varname, Timestamp: ts, Flags: flags, DType: dtype, Payload: payload}, nil
}
