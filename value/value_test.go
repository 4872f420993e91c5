package value

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet-device/bacnet"
)

func TestRealRoundTrip(t *testing.T) {
	v := NewReal(72.5)
	wire := v.Encode()

	tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(wire)
	require.NoError(t, err)
	require.Equal(t, bacnet.TagClassApplication, class)
	require.EqualValues(t, TagReal, tagNum)

	decoded, err := FromWireTag(DecodedTag{Tag: Tag(tagNum), Data: wire[headerLen : headerLen+length]})
	require.NoError(t, err)
	got, ok := decoded.Real()
	require.True(t, ok)
	require.Equal(t, float32(72.5), got)
}

func TestUnsupportedTagRejected(t *testing.T) {
	_, err := FromWireTag(DecodedTag{Tag: Tag(0x1F), Data: nil})
	require.ErrorIs(t, err, ErrUnsupportedTag)
}

func TestBitstringGetSet(t *testing.T) {
	b := StatusFlags(false, true, false, false)
	require.False(t, b.Get(StatusFlagInAlarm))
	require.True(t, b.Get(StatusFlagFault))
	require.False(t, b.Get(StatusFlagOverridden))
	require.False(t, b.Get(StatusFlagOutOfService))
	require.Equal(t, 4, b.Len())
}

func TestBitstringWireRoundTrip(t *testing.T) {
	b := ProtocolObjectTypesSupported(bacnet.ObjectTypeDevice, bacnet.ObjectTypeAnalogInput)
	v := NewBitString(b)
	wire := v.Encode()

	_, _, length, headerLen, err := bacnet.DecodeTagNumber(wire)
	require.NoError(t, err)

	got := decodeBitstring(wire[headerLen : headerLen+length])
	require.True(t, got.Get(int(bacnet.ObjectTypeDevice)))
	require.True(t, got.Get(int(bacnet.ObjectTypeAnalogInput)))
	require.False(t, got.Get(int(bacnet.ObjectTypeBinaryInput)))
}

func TestCharacterStringUTF8RoundTrip(t *testing.T) {
	v := NewCharacterString("chiller-1", EncodingUTF8)
	wire := v.Encode()

	_, _, length, headerLen, err := bacnet.DecodeTagNumber(wire)
	require.NoError(t, err)

	decoded, err := decodeCharacterString(wire[headerLen : headerLen+length])
	require.NoError(t, err)
	s, enc, ok := decoded.CharacterString()
	require.True(t, ok)
	require.Equal(t, "chiller-1", s)
	require.Equal(t, EncodingUTF8, enc)
}

func TestCharacterStringISO8859RoundTrip(t *testing.T) {
	v := NewCharacterString("cafe", EncodingISO8859_1)
	wire := v.Encode()

	_, _, length, headerLen, err := bacnet.DecodeTagNumber(wire)
	require.NoError(t, err)

	decoded, err := decodeCharacterString(wire[headerLen : headerLen+length])
	require.NoError(t, err)
	s, enc, ok := decoded.CharacterString()
	require.True(t, ok)
	require.Equal(t, "cafe", s)
	require.Equal(t, EncodingISO8859_1, enc)
}

func TestObjectIdentifierRoundTrip(t *testing.T) {
	oid := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 3)
	v := NewObjectIdentifier(oid)
	wire := v.Encode()

	_, _, length, headerLen, err := bacnet.DecodeTagNumber(wire)
	require.NoError(t, err)

	decoded, err := FromWireTag(DecodedTag{Tag: TagObjectIdentifier, Data: wire[headerLen : headerLen+length]})
	require.NoError(t, err)
	got, ok := decoded.ObjectIdentifier()
	require.True(t, ok)
	require.Equal(t, oid, got)
}
