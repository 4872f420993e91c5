// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package value implements the tagged-union application value carried by
// BACnet properties, plus the bit string and date/time helpers built on it.
package value

import (
	"fmt"

	"github.com/edgeo-scada/bacnet-device/bacnet"
)

// Tag identifies which field of a Value is populated. It is the same
// enumeration the wire codec uses for application tags.
type Tag = bacnet.ApplicationTag

// Re-exported tag constants so callers never need to import bacnet just to
// name a tag.
const (
	TagNull            = bacnet.TagNull
	TagBoolean         = bacnet.TagBoolean
	TagUnsigned        = bacnet.TagUnsignedInt
	TagSigned          = bacnet.TagSignedInt
	TagReal            = bacnet.TagReal
	TagDouble          = bacnet.TagDouble
	TagOctetString     = bacnet.TagOctetString
	TagCharacterString = bacnet.TagCharacterString
	TagBitString       = bacnet.TagBitString
	TagEnumerated      = bacnet.TagEnumerated
	TagDate            = bacnet.TagDate
	TagTime            = bacnet.TagTime
	TagObjectIdentifier = bacnet.TagObjectID
)

// TagConstructedSequence marks a Value that carries an already wire-encoded
// constructed sequence (for example, one ACTIVE_COV_SUBSCRIPTIONS entry)
// rather than a single application-tagged primitive. It is not part of the
// real BACnet application tag space and never appears in a decoded wire
// tag; callers build it directly with NewConstructedSequence.
const TagConstructedSequence Tag = 254

// Value is a tagged union over the application data types BACnet property
// values can hold. The zero Value is TagNull.
type Value struct {
	tag Tag

	boolean    bool
	unsigned   uint32
	signed     int32
	real       float32
	double     float64
	enumerated uint32
	octets     []byte
	bits       Bitstring
	date       Date
	timeOfDay  TimeOfDay
	objectID   bacnet.ObjectIdentifier

	str         string
	strEncoding CharacterStringEncoding
}

// Tag returns the value's active tag.
func (v Value) Tag() Tag { return v.tag }

// Null reports whether the value is TagNull.
func (v Value) Null() bool { return v.tag == TagNull }

// NewNull returns the empty/null value.
func NewNull() Value { return Value{tag: TagNull} }

// NewBoolean constructs a TagBoolean value.
func NewBoolean(b bool) Value { return Value{tag: TagBoolean, boolean: b} }

// NewUnsigned constructs a TagUnsigned value.
func NewUnsigned(u uint32) Value { return Value{tag: TagUnsigned, unsigned: u} }

// NewSigned constructs a TagSigned value.
func NewSigned(i int32) Value { return Value{tag: TagSigned, signed: i} }

// NewReal constructs a TagReal value.
func NewReal(f float32) Value { return Value{tag: TagReal, real: f} }

// NewDouble constructs a TagDouble value.
func NewDouble(f float64) Value { return Value{tag: TagDouble, double: f} }

// NewEnumerated constructs a TagEnumerated value.
func NewEnumerated(e uint32) Value { return Value{tag: TagEnumerated, enumerated: e} }

// NewOctetString constructs a TagOctetString value. data is copied.
func NewOctetString(data []byte) Value {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Value{tag: TagOctetString, octets: cp}
}

// NewCharacterString constructs a TagCharacterString value in the given
// encoding. The encoding is stored alongside the decoded Go string so the
// value can be re-encoded to wire bytes losslessly.
func NewCharacterString(s string, encoding CharacterStringEncoding) Value {
	return Value{tag: TagCharacterString, str: s, strEncoding: encoding}
}

// NewBitString constructs a TagBitString value.
func NewBitString(b Bitstring) Value { return Value{tag: TagBitString, bits: b} }

// NewDate constructs a TagDate value.
func NewDate(d Date) Value { return Value{tag: TagDate, date: d} }

// NewTime constructs a TagTime value.
func NewTime(t TimeOfDay) Value { return Value{tag: TagTime, timeOfDay: t} }

// NewObjectIdentifier constructs a TagObjectIdentifier value.
func NewObjectIdentifier(oid bacnet.ObjectIdentifier) Value {
	return Value{tag: TagObjectIdentifier, objectID: oid}
}

// Boolean returns the boolean payload and whether the tag matched.
func (v Value) Boolean() (bool, bool) { return v.boolean, v.tag == TagBoolean }

// Unsigned returns the unsigned payload and whether the tag matched.
func (v Value) Unsigned() (uint32, bool) { return v.unsigned, v.tag == TagUnsigned }

// Signed returns the signed payload and whether the tag matched.
func (v Value) Signed() (int32, bool) { return v.signed, v.tag == TagSigned }

// Real returns the real payload and whether the tag matched.
func (v Value) Real() (float32, bool) { return v.real, v.tag == TagReal }

// Double returns the double payload and whether the tag matched.
func (v Value) Double() (float64, bool) { return v.double, v.tag == TagDouble }

// Enumerated returns the enumerated payload and whether the tag matched.
func (v Value) Enumerated() (uint32, bool) { return v.enumerated, v.tag == TagEnumerated }

// OctetString returns the octet string payload and whether the tag matched.
func (v Value) OctetString() ([]byte, bool) { return v.octets, v.tag == TagOctetString }

// CharacterString returns the decoded string, its encoding, and whether the
// tag matched.
func (v Value) CharacterString() (string, CharacterStringEncoding, bool) {
	return v.str, v.strEncoding, v.tag == TagCharacterString
}

// BitString returns the bit string payload and whether the tag matched.
func (v Value) BitString() (Bitstring, bool) { return v.bits, v.tag == TagBitString }

// Date returns the date payload and whether the tag matched.
func (v Value) Date() (Date, bool) { return v.date, v.tag == TagDate }

// Time returns the time-of-day payload and whether the tag matched.
func (v Value) Time() (TimeOfDay, bool) { return v.timeOfDay, v.tag == TagTime }

// ObjectIdentifier returns the object identifier payload and whether the tag
// matched.
func (v Value) ObjectIdentifier() (bacnet.ObjectIdentifier, bool) {
	return v.objectID, v.tag == TagObjectIdentifier
}

// NewConstructedSequence wraps already wire-encoded bytes — typically a
// constructed, context-tagged sequence such as one ACTIVE_COV_SUBSCRIPTIONS
// entry — so it can travel through the same []Value a property's Getter
// returns without being reinterpreted as a single application-tagged
// primitive. encoded is copied.
func NewConstructedSequence(encoded []byte) Value {
	cp := make([]byte, len(encoded))
	copy(cp, encoded)
	return Value{tag: TagConstructedSequence, octets: cp}
}

// ErrUnsupportedTag is returned by FromWireTag when the tag number decoded
// off the wire does not correspond to any application tag this server
// understands.
var ErrUnsupportedTag = fmt.Errorf("value: unsupported application tag")

// DecodedTag bundles the pieces a wire decoder produces for one application
// tagged value, prior to interpretation: the tag number and the encoded
// payload (tag header already stripped; its length is len(Data)).
type DecodedTag struct {
	Tag  Tag
	Data []byte
}

// FromWireTag constructs a Value from a decoded wire tag, dispatching to the
// bacnet package's primitive decoders. An out-of-enumeration tag is rejected
// at construction rather than represented with a sentinel "unknown" value,
// so downstream code never has to special-case a half-valid Value.
func FromWireTag(d DecodedTag) (Value, error) {
	switch d.Tag {
	case TagNull:
		return NewNull(), nil
	case TagBoolean:
		return NewBoolean(len(d.Data) > 0 && d.Data[0] != 0), nil
	case TagUnsigned:
		return NewUnsigned(bacnet.DecodeUnsigned(d.Data)), nil
	case TagSigned:
		return NewSigned(bacnet.DecodeSigned(d.Data)), nil
	case TagReal:
		return NewReal(bacnet.DecodeReal(d.Data)), nil
	case TagDouble:
		return NewDouble(bacnet.DecodeDouble(d.Data)), nil
	case TagEnumerated:
		return NewEnumerated(bacnet.DecodeUnsigned(d.Data)), nil
	case TagOctetString:
		return NewOctetString(d.Data), nil
	case TagCharacterString:
		return decodeCharacterString(d.Data)
	case TagBitString:
		return NewBitString(decodeBitstring(d.Data)), nil
	case TagDate:
		return NewDate(decodeDate(d.Data)), nil
	case TagTime:
		return NewTime(decodeTimeOfDay(d.Data)), nil
	case TagObjectIdentifier:
		return NewObjectIdentifier(bacnet.DecodeObjectIdentifierFromBytes(d.Data)), nil
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnsupportedTag, d.Tag)
	}
}

// Encode produces the application-tagged wire encoding of v.
func (v Value) Encode() []byte {
	switch v.tag {
	case TagNull:
		return bacnet.EncodeTag(uint8(TagNull), bacnet.TagClassApplication, 0)
	case TagBoolean:
		return bacnet.EncodeBooleanTag(v.boolean)
	case TagUnsigned:
		return bacnet.EncodeUnsignedTag(v.unsigned)
	case TagSigned:
		body := bacnet.EncodeSigned(v.signed)
		return append(bacnet.EncodeTag(uint8(TagSigned), bacnet.TagClassApplication, len(body)), body...)
	case TagReal:
		return bacnet.EncodeRealTag(v.real)
	case TagDouble:
		body := bacnet.EncodeDouble(v.double)
		return append(bacnet.EncodeTag(uint8(TagDouble), bacnet.TagClassApplication, len(body)), body...)
	case TagEnumerated:
		return bacnet.EncodeEnumeratedTag(v.enumerated)
	case TagOctetString:
		header := bacnet.EncodeTag(uint8(TagOctetString), bacnet.TagClassApplication, len(v.octets))
		return append(header, v.octets...)
	case TagCharacterString:
		return encodeCharacterString(v.str, v.strEncoding)
	case TagBitString:
		return encodeBitstring(v.bits)
	case TagDate:
		return encodeDate(v.date)
	case TagTime:
		return encodeTimeOfDay(v.timeOfDay)
	case TagObjectIdentifier:
		return bacnet.EncodeObjectIdentifierTag(v.objectID)
	case TagConstructedSequence:
		return v.octets
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.tag {
	case TagNull:
		return "null"
	case TagBoolean:
		return fmt.Sprintf("%v", v.boolean)
	case TagUnsigned:
		return fmt.Sprintf("%d", v.unsigned)
	case TagSigned:
		return fmt.Sprintf("%d", v.signed)
	case TagReal:
		return fmt.Sprintf("%g", v.real)
	case TagDouble:
		return fmt.Sprintf("%g", v.double)
	case TagEnumerated:
		return fmt.Sprintf("enum(%d)", v.enumerated)
	case TagOctetString:
		return fmt.Sprintf("octets(%d)", len(v.octets))
	case TagCharacterString:
		return v.str
	case TagBitString:
		return v.bits.String()
	case TagDate:
		return v.date.String()
	case TagTime:
		return v.timeOfDay.String()
	case TagObjectIdentifier:
		return v.objectID.String()
	case TagConstructedSequence:
		return fmt.Sprintf("sequence(%d bytes)", len(v.octets))
	default:
		return "invalid"
	}
}
