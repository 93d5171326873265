package sendfanout

import (
	"strings"
	"testing"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

func TestBinaryRoundTrip(t *testing.T) {
	dp := dpoint.New("ain/vals", dpoint.TypeFloat, dpoint.ParseFloatArray([]string{"1", "2", "3.5"}))
	encoded := EncodeBinary(dp)
	decoded, n, err := DecodeBinary(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(encoded) {
		t.Fatalf("expected to consume the whole frame, consumed %d of %d", n, len(encoded))
	}
	if decoded.Varname != dp.Varname || decoded.Timestamp != dp.Timestamp || decoded.DType != dp.DType {
		t.Fatalf("header mismatch: got %+v", decoded)
	}
	if string(decoded.Payload) != string(dp.Payload) {
		t.Fatalf("payload mismatch: got %v want %v", decoded.Payload, dp.Payload)
	}
}

func TestOversizedFrameUsedForLongVarname(t *testing.T) {
	longName := strings.Repeat("x", maxShortField+10)
	dp := dpoint.NewString(longName, "hello")
	encoded := EncodeBinary(dp)
	if encoded[0] != oversizedFrameSentinel {
		t.Fatalf("expected oversized sentinel, got %q", encoded[0])
	}
	decoded, n, err := DecodeBinary(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(encoded) || decoded.Varname != longName || decoded.AsString() != "hello" {
		t.Fatalf("oversized round trip failed: %+v consumed=%d", decoded, n)
	}
}

func TestLegacyTextHasTrailingNewline(t *testing.T) {
	dp := dpoint.NewString("a", "hi")
	out := Encode(EncodingLegacyText, dp)
	if !strings.HasSuffix(string(out), "\n") {
		t.Fatal("expected a trailing newline")
	}
}

func TestJSONEncoding(t *testing.T) {
	dp := dpoint.NewString("a", "hi")
	out := Encode(EncodingJSON, dp)
	if !strings.Contains(string(out), `"name":"a"`) {
		t.Fatalf("expected JSON encoding, got %q", out)
	}
}
