package value

import (
	"strings"

	"github.com/edgeo-scada/bacnet-device/bacnet"
)

// Bitstring is a BACnet bit string: an ordered sequence of named or
// positional bits. It backs STATUS_FLAGS, PROTOCOL_SERVICES_SUPPORTED and
// PROTOCOL_OBJECT_TYPES_SUPPORTED, all of which are plain bit strings on the
// wire but conventionally indexed by name.
type Bitstring struct {
	bits []bool
}

// NewBitstring creates a Bitstring of the given bit count, all bits clear.
func NewBitstring(numBits int) Bitstring {
	return Bitstring{bits: make([]bool, numBits)}
}

// Len returns the number of bits.
func (b Bitstring) Len() int { return len(b.bits) }

// Get returns the bit at index i, or false if i is out of range.
func (b Bitstring) Get(i int) bool {
	if i < 0 || i >= len(b.bits) {
		return false
	}
	return b.bits[i]
}

// Set sets the bit at index i. Indices beyond the current length grow the
// bit string, filling the gap with clear bits.
func (b *Bitstring) Set(i int, on bool) {
	if i < 0 {
		return
	}
	for i >= len(b.bits) {
		b.bits = append(b.bits, false)
	}
	b.bits[i] = on
}

func (b Bitstring) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, bit := range b.bits {
		if i > 0 {
			sb.WriteByte(',')
		}
		if bit {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// StatusFlags indices per the BACnet status-flags bit string.
const (
	StatusFlagInAlarm = iota
	StatusFlagFault
	StatusFlagOverridden
	StatusFlagOutOfService
)

// StatusFlags builds the 4-bit STATUS_FLAGS bit string.
func StatusFlags(inAlarm, fault, overridden, outOfService bool) Bitstring {
	b := NewBitstring(4)
	b.Set(StatusFlagInAlarm, inAlarm)
	b.Set(StatusFlagFault, fault)
	b.Set(StatusFlagOverridden, overridden)
	b.Set(StatusFlagOutOfService, outOfService)
	return b
}

// ProtocolServicesSupported builds the PROTOCOL_SERVICES_SUPPORTED bit
// string, one bit per confirmed or unconfirmed service this device answers.
// supported is keyed by the wire bit position defined in the BACnet service
// supported enumeration (not the service choice value).
func ProtocolServicesSupported(supportedBitPositions ...int) Bitstring {
	b := NewBitstring(64)
	for _, pos := range supportedBitPositions {
		b.Set(pos, true)
	}
	return b
}

// ProtocolObjectTypesSupported builds the PROTOCOL_OBJECT_TYPES_SUPPORTED
// bit string, one bit per object type index (the bacnet.ObjectType value
// itself) this device can host.
func ProtocolObjectTypesSupported(types ...bacnet.ObjectType) Bitstring {
	b := NewBitstring(64)
	for _, t := range types {
		b.Set(int(t), true)
	}
	return b
}

func decodeBitstring(data []byte) Bitstring {
	if len(data) < 1 {
		return Bitstring{}
	}
	unusedBits := int(data[0])
	totalBits := (len(data)-1)*8 - unusedBits
	if totalBits < 0 {
		totalBits = 0
	}
	b := NewBitstring(totalBits)
	for i := 0; i < totalBits; i++ {
		byteIdx := 1 + i/8
		bitIdx := 7 - uint(i%8)
		if data[byteIdx]&(1<<bitIdx) != 0 {
			b.Set(i, true)
		}
	}
	return b
}

func encodeBitstring(b Bitstring) []byte {
	numBytes := (b.Len() + 7) / 8
	unusedBits := numBytes*8 - b.Len()
	if b.Len() == 0 {
		unusedBits = 0
	}
	body := make([]byte, 1+numBytes)
	body[0] = byte(unusedBits)
	for i := 0; i < b.Len(); i++ {
		if b.Get(i) {
			byteIdx := 1 + i/8
			bitIdx := 7 - uint(i%8)
			body[byteIdx] |= 1 << bitIdx
		}
	}
	header := bacnet.EncodeTag(uint8(TagBitString), bacnet.TagClassApplication, len(body))
	return append(header, body...)
}
