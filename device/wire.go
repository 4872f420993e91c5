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

package device

import (
	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/value"
)

// This file holds the hand-rolled context-tagged parameter decoders the
// service handlers use. BACnet service parameters are context-tagged
// sequences (tag class, tag number, length, payload) rather than a
// self-describing format, so each service's decoder walks its own known
// field order the way protocol.go walks APDU/NPDU headers.

func decodeContextUnsigned(data []byte, wantTag uint8) (uint32, []byte, error) {
	tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(data)
	if err != nil {
		return 0, nil, err
	}
	if class != bacnet.TagClassContext || tagNum != wantTag || length < 0 {
		return 0, nil, bacnet.ErrInvalidAPDU
	}
	if len(data) < headerLen+length {
		return 0, nil, bacnet.ErrInvalidAPDU
	}
	return bacnet.DecodeUnsigned(data[headerLen : headerLen+length]), data[headerLen+length:], nil
}

func tryDecodeContextUnsigned(data []byte, wantTag uint8) (uint32, []byte, bool) {
	v, rest, err := decodeContextUnsigned(data, wantTag)
	if err != nil {
		return 0, data, false
	}
	return v, rest, true
}

func decodeContextEnumerated(data []byte, wantTag uint8) (uint32, []byte, error) {
	return decodeContextUnsigned(data, wantTag)
}

func tryDecodeContextBoolean(data []byte, wantTag uint8) (bool, []byte, bool) {
	tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(data)
	if err != nil || class != bacnet.TagClassContext || tagNum != wantTag || length < 0 {
		return false, data, false
	}
	if len(data) < headerLen+length {
		return false, data, false
	}
	payload := data[headerLen : headerLen+length]
	return len(payload) > 0 && payload[0] != 0, data[headerLen+length:], true
}

func decodeContextObjectIdentifier(data []byte, wantTag uint8) (bacnet.ObjectIdentifier, []byte, error) {
	tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(data)
	if err != nil {
		return bacnet.ObjectIdentifier{}, nil, err
	}
	if class != bacnet.TagClassContext || tagNum != wantTag || length != 4 {
		return bacnet.ObjectIdentifier{}, nil, bacnet.ErrInvalidAPDU
	}
	if len(data) < headerLen+length {
		return bacnet.ObjectIdentifier{}, nil, bacnet.ErrInvalidAPDU
	}
	oid := bacnet.DecodeObjectIdentifierFromBytes(data[headerLen : headerLen+length])
	return oid, data[headerLen+length:], nil
}

// decodeApplicationValue decodes a single application-tagged primitive
// starting at data, the form propertyValue's constructed content takes.
func decodeApplicationValue(data []byte) (value.Value, error) {
	tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(data)
	if err != nil {
		return value.Value{}, err
	}
	if class != bacnet.TagClassApplication || length < 0 {
		return value.Value{}, bacnet.ErrInvalidAPDU
	}
	if len(data) < headerLen+length {
		return value.Value{}, bacnet.ErrInvalidAPDU
	}
	return value.FromWireTag(value.DecodedTag{Tag: value.Tag(tagNum), Data: data[headerLen : headerLen+length]})
}

// decodeApplicationValues decodes a run of consecutive application-tagged
// primitives, the form an ARRAY property's whole-list write takes inside
// propertyValue's constructed content (one value for a singlet or a single
// indexed element, several for a whole-array replace).
func decodeApplicationValues(data []byte) ([]value.Value, error) {
	var vals []value.Value
	for len(data) > 0 {
		tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(data)
		if err != nil {
			return nil, err
		}
		if class != bacnet.TagClassApplication || length < 0 {
			return nil, bacnet.ErrInvalidAPDU
		}
		if len(data) < headerLen+length {
			return nil, bacnet.ErrInvalidAPDU
		}
		v, err := value.FromWireTag(value.DecodedTag{Tag: value.Tag(tagNum), Data: data[headerLen : headerLen+length]})
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		data = data[headerLen+length:]
	}
	return vals, nil
}

// tryUnwrapOpeningTag reports whether data begins with an opening tag for
// wantTag, and if so returns the bytes between it and its matching closing
// tag plus what follows the closing tag. Inner opening/closing pairs of
// wantTag are counted by depth, and other constructed tags are stepped over,
// so an inner pair does not terminate the outer one early.
func tryUnwrapOpeningTag(data []byte, wantTag uint8) (opened bool, body []byte, after []byte, ok bool) {
	tagNum, class, length, headerLen, err := bacnet.DecodeTagNumber(data)
	if err != nil || class != bacnet.TagClassContext || tagNum != wantTag || length != -1 {
		return false, nil, data, false
	}

	depth := 1
	i := headerLen
	for i < len(data) {
		tn, cl, ln, hl, err := bacnet.DecodeTagNumber(data[i:])
		if err != nil {
			return false, nil, data, false
		}
		if cl == bacnet.TagClassContext && tn == wantTag && ln == -1 {
			depth++
			i += hl
			continue
		}
		if cl == bacnet.TagClassContext && tn == wantTag && ln == -2 {
			depth--
			if depth == 0 {
				return true, data[headerLen:i], data[i+hl:], true
			}
			i += hl
			continue
		}
		if ln == -1 || ln == -2 {
			i += hl
			continue
		}
		i += hl + ln
	}
	return false, nil, data, false
}
