package value

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/edgeo-scada/bacnet-device/bacnet"
)

// CharacterStringEncoding identifies one of the six BACnet CHARACTER_STRING
// character sets. The wire byte is the character set code from the
// standard; transcoding to/from Go's native UTF-8 strings is delegated to
// golang.org/x/text rather than hand-rolled.
type CharacterStringEncoding uint8

const (
	EncodingUTF8          CharacterStringEncoding = 0
	EncodingMicrosoftDBCS CharacterStringEncoding = 1
	EncodingJISX0208      CharacterStringEncoding = 2
	EncodingUCS4          CharacterStringEncoding = 3
	EncodingUCS2          CharacterStringEncoding = 4
	EncodingISO8859_1     CharacterStringEncoding = 5
)

func (e CharacterStringEncoding) String() string {
	switch e {
	case EncodingUTF8:
		return "utf-8"
	case EncodingMicrosoftDBCS:
		return "microsoft-dbcs"
	case EncodingJISX0208:
		return "jis-x-0208"
	case EncodingUCS4:
		return "ucs-4"
	case EncodingUCS2:
		return "ucs-2"
	case EncodingISO8859_1:
		return "iso-8859-1"
	default:
		return fmt.Sprintf("character-encoding(%d)", uint8(e))
	}
}

// codec returns the x/text encoding.Encoding that implements the wire
// transcoding for e, or nil for UTF-8 (which needs no transcoding at all).
//
// MICROSOFT_DBCS has no single canonical Go codec in the x/text tree; the
// Windows-1252 code page is the closest common double-byte-adjacent legacy
// encoding the library ships and is what this server advertises support
// for, matching the common real-world convention of treating that tag as
// "Windows ANSI" for western installations.
func (e CharacterStringEncoding) codec() encoding.Encoding {
	switch e {
	case EncodingMicrosoftDBCS:
		return charmap.Windows1252
	case EncodingJISX0208:
		return japanese.ShiftJIS
	case EncodingUCS4:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	case EncodingUCS2:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case EncodingISO8859_1:
		return charmap.ISO8859_1
	default:
		return nil
	}
}

func decodeCharacterString(data []byte) (Value, error) {
	if len(data) < 1 {
		return NewCharacterString("", EncodingUTF8), nil
	}
	enc := CharacterStringEncoding(data[0])
	payload := data[1:]

	codec := enc.codec()
	if codec == nil {
		return NewCharacterString(string(payload), EncodingUTF8), nil
	}

	decoded, err := codec.NewDecoder().Bytes(payload)
	if err != nil {
		return Value{}, fmt.Errorf("value: decode character string (%s): %w", enc, err)
	}
	return NewCharacterString(string(decoded), enc), nil
}

func encodeCharacterString(s string, enc CharacterStringEncoding) []byte {
	var payload []byte
	codec := enc.codec()
	if codec == nil {
		payload = []byte(s)
	} else {
		encoded, err := codec.NewEncoder().Bytes([]byte(s))
		if err != nil {
			// A string that cannot round-trip through its declared encoding
			// falls back to UTF-8 rather than producing a corrupt payload.
			enc = EncodingUTF8
			payload = []byte(s)
		} else {
			payload = encoded
		}
	}

	body := make([]byte, 1+len(payload))
	body[0] = byte(enc)
	copy(body[1:], payload)

	header := bacnet.EncodeTag(uint8(TagCharacterString), bacnet.TagClassApplication, len(body))
	return append(header, body...)
}
