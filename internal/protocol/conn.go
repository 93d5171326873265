package protocol

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net"

	"github.com/sheinberglab/dserv/internal/metrics"
	"github.com/sheinberglab/dserv/internal/sendfanout"
)

const (
	dispatchBinarySet = '>'
	dispatchBinaryGet = '<'
	dispatchBase64    = '@'
)

// ServeConn handles one accepted connection until it errors or is closed
// by its peer. It is the body of the per-connection task the acceptor
// submits to the worker pool (§5's "one detached thread per accepted
// connection", here a bounded pool slot instead of an unbounded goroutine
// fan-out).
func (h *Hub) ServeConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}

		switch b {
		case dispatchBinarySet:
			if err := h.handleBinarySet(r); err != nil {
				h.Log.WithError(err).Debug("protocol: binary set failed")
				return
			}
		case dispatchBinaryGet:
			if err := h.handleBinaryGet(r, conn); err != nil {
				h.Log.WithError(err).Debug("protocol: binary get failed")
				return
			}
		case dispatchBase64:
			if err := h.handleBase64Line(r, conn); err != nil {
				return
			}
		case '%':
			line, err := r.ReadString('\n')
			if err != nil && line == "" {
				return
			}
			reply := h.Dispatch("%" + trimNewline(line))
			if _, err := io.WriteString(conn, reply+"\n"); err != nil {
				return
			}
		default:
			// Unknown lead byte on an otherwise text-protocol connection:
			// treat the rest of the line as best-effort noise and resync.
			r.ReadString('\n')
		}
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// handleBinarySet reads one fixed-layout binary frame (§4.8 short shape)
// off r and ingests it, reconstructing the buffer sendfanout.DecodeBinary
// expects so the wire layout is defined in exactly one place.
func (h *Hub) handleBinarySet(r *bufio.Reader) error {
	var varnameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &varnameLen); err != nil {
		return err
	}
	varname := make([]byte, varnameLen)
	if _, err := io.ReadFull(r, varname); err != nil {
		return err
	}
	var ts int64
	if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
		return err
	}
	var dtype int32
	if err := binary.Read(r, binary.LittleEndian, &dtype); err != nil {
		return err
	}
	var payloadLen uint32
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}

	frame := make([]byte, 0, 1+2+len(varname)+8+4+4+len(payload))
	frame = append(frame, dispatchBinarySet)
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, varnameLen)
	frame = append(frame, lenBuf...)
	frame = append(frame, varname...)
	tsBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBuf, uint64(ts))
	frame = append(frame, tsBuf...)
	dtBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(dtBuf, uint32(dtype))
	frame = append(frame, dtBuf...)
	plBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(plBuf, payloadLen)
	frame = append(frame, plBuf...)
	frame = append(frame, payload...)

	dp, _, err := sendfanout.DecodeBinary(frame)
	if err != nil {
		return err
	}
	defer h.traceIngest(dp.Varname)()
	h.Orch.Set(dp)
	metrics.IngestionsTotal.Inc()
	return nil
}

// handleBinaryGet reads a 2-byte length plus varname and writes back the
// current value framed as EncodeBinary would for a send client, or a
// single zero byte when the name is unset.
func (h *Hub) handleBinaryGet(r *bufio.Reader, w io.Writer) error {
	var varnameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &varnameLen); err != nil {
		return err
	}
	varname := make([]byte, varnameLen)
	if _, err := io.ReadFull(r, varname); err != nil {
		return err
	}
	dp, ok := h.Orch.Get(string(varname))
	if !ok {
		_, err := w.Write([]byte{0})
		return err
	}
	_, err := w.Write(sendfanout.EncodeBinary(dp))
	return err
}

// handleBase64Line decodes one base64-wrapped text command, dispatches
// it, and writes the reply back base64-wrapped (§6.1 binary framing:
// "`@` base64 wrapper").
func (h *Hub) handleBase64Line(r *bufio.Reader, w io.Writer) error {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(trimNewline(line))
	if err != nil {
		return err
	}
	reply := h.Dispatch(string(decoded))
	encoded := base64.StdEncoding.EncodeToString([]byte(reply))
	_, err = io.WriteString(w, encoded+"\n")
	return err
}
