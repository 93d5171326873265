package logfanout

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, 123456789); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != 123456789 {
		t.Fatalf("expected opened-at 123456789, got %d", got)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	dp := dpoint.New("ain/vals", dpoint.TypeFloat, dpoint.ParseFloatArray([]string{"1", "2"}))
	dp.Flags = dpoint.FlagLoggerFlush
	if err := WriteRecord(w, dp); err != nil {
		t.Fatal(err)
	}
	w.Flush()

	got, err := ReadRecord(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Varname != dp.Varname || got.Timestamp != dp.Timestamp || got.DType != dp.DType || got.Flags != dp.Flags {
		t.Fatalf("header field mismatch: got %+v", got)
	}
	if string(got.Payload) != string(dp.Payload) {
		t.Fatalf("payload mismatch: got %v want %v", got.Payload, dp.Payload)
	}
}

func TestTruncatedRecordYieldsParseablePrefix(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	WriteRecord(w, dpoint.NewString("a", "1"))
	WriteRecord(w, dpoint.NewString("b", "2"))
	w.Flush()

	full := buf.Bytes()
	truncated := bytes.NewReader(full[:len(full)-3])

	first, err := ReadRecord(truncated)
	if err != nil {
		t.Fatalf("expected the first complete record to parse, got %v", err)
	}
	if first.Varname != "a" {
		t.Fatalf("expected first record a, got %q", first.Varname)
	}

	_, err = ReadRecord(truncated)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF on the truncated second record, got %v", err)
	}
}
