package dpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsIndependent(t *testing.T) {
	orig := NewString("foo/bar", "hello")
	clone := orig.Clone()

	clone.Payload[0] = 'X'
	require.Equal(t, "hello", orig.AsString(), "mutating the clone must not affect the original")
	assert.NotEqual(t, orig.AsString(), clone.AsString())
}

func TestSentinelNotCloned(t *testing.T) {
	s := Sentinel(FlagShutdown)
	require.True(t, s.IsSentinel())
	clone := s.Clone()
	assert.True(t, clone.IsSentinel())
	assert.Nil(t, clone.Payload)
}

func TestElementSize(t *testing.T) {
	assert.Equal(t, 4, TypeFloat.ElementSize())
	assert.Equal(t, 8, TypeDouble.ElementSize())
	assert.Equal(t, 0, TypeString.ElementSize())
}

func TestEventTag(t *testing.T) {
	dp := NewEvent("ess/evt", 1, 2, TypeFloat, ParseFloatArray([]string{"1.0", "2.0"}))
	assert.Equal(t, "evt:1:2", dp.EventTag())
}

func TestJSONEncodesFloatArray(t *testing.T) {
	dp := New("ain/vals", TypeFloat, ParseFloatArray([]string{"1", "2", "3.5"}))
	js := dp.JSON()
	assert.Contains(t, js, `"name":"ain/vals"`)
	assert.Contains(t, js, `"data":[1,2,3.5]`)
}

func TestParseTypeRoundTripsWithString(t *testing.T) {
	for _, ty := range []Type{TypeByte, TypeString, TypeFloat, TypeDouble, TypeShort, TypeInt, TypeDG, TypeScript, TypeTriggerScript, TypeEvt, TypeNone, TypeJSON, TypeArrow, TypeMsgpack, TypeJPEG, TypePPM} {
		parsed, ok := ParseType(ty.String())
		require.True(t, ok, "expected %s to parse", ty.String())
		assert.Equal(t, ty, parsed)
	}
	_, ok := ParseType("NOT_A_TYPE")
	assert.False(t, ok)
}
