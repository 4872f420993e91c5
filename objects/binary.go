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

package objects

import (
	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/property"
	"github.com/edgeo-scada/bacnet-device/value"
)

// BinaryPolarity mirrors the wire values of the POLARITY property:
// NORMAL reports the input as-is, REVERSE inverts active/inactive.
type BinaryPolarity uint32

const (
	PolarityNormal  BinaryPolarity = 0
	PolarityReverse BinaryPolarity = 1
)

type binaryConfig struct {
	initialValue bool
	activeText   string
	inactiveText string
	polarity     BinaryPolarity
	description  string
}

// BinaryOption configures a binary object preset at construction time.
type BinaryOption func(*binaryConfig)

func defaultBinaryConfig() binaryConfig {
	return binaryConfig{
		activeText:   "Active",
		inactiveText: "Inactive",
	}
}

// WithBinaryInitialValue sets the PRESENT_VALUE a binary object starts with.
func WithBinaryInitialValue(active bool) BinaryOption {
	return func(c *binaryConfig) { c.initialValue = active }
}

// WithActiveText sets ACTIVE_TEXT.
func WithActiveText(s string) BinaryOption {
	return func(c *binaryConfig) { c.activeText = s }
}

// WithInactiveText sets INACTIVE_TEXT.
func WithInactiveText(s string) BinaryOption {
	return func(c *binaryConfig) { c.inactiveText = s }
}

// WithPolarity sets POLARITY. Only meaningful on Binary Input/Output, where
// it governs how the physical signal maps onto ACTIVE/INACTIVE.
func WithPolarity(p BinaryPolarity) BinaryOption {
	return func(c *binaryConfig) { c.polarity = p }
}

// WithBinaryDescription sets the DESCRIPTION property.
func WithBinaryDescription(description string) BinaryOption {
	return func(c *binaryConfig) { c.description = description }
}

func newBinaryBase(objectType bacnet.ObjectType, instance uint32, name string, presentValueWritable, withPolarity bool, opts []BinaryOption) *object.Object {
	cfg := defaultBinaryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	o := object.New(objectType, instance, name)
	setDescription(o, cfg.description)

	mustAdd(o, property.NewSinglet(bacnet.PropertyPresentValue, value.NewEnumerated(boolToBinaryPV(cfg.initialValue)), presentValueWritable))
	mustAdd(o, property.NewSinglet(bacnet.PropertyActiveText, value.NewCharacterString(cfg.activeText, value.EncodingUTF8), true))
	mustAdd(o, property.NewSinglet(bacnet.PropertyInactiveText, value.NewCharacterString(cfg.inactiveText, value.EncodingUTF8), true))

	if withPolarity {
		mustAdd(o, property.NewSinglet(bacnet.PropertyPolarity, value.NewEnumerated(uint32(cfg.polarity)), false))
	}

	return o
}

// boolToBinaryPV maps true/false onto the BACnet BINARY_PV enumeration,
// where INACTIVE = 0 and ACTIVE = 1.
func boolToBinaryPV(active bool) uint32 {
	if active {
		return 1
	}
	return 0
}

// NewBinaryInput builds a Binary Input object. PRESENT_VALUE is read-only.
func NewBinaryInput(instance uint32, name string, opts ...BinaryOption) *object.Object {
	return newBinaryBase(bacnet.ObjectTypeBinaryInput, instance, name, false, true, opts)
}

// NewBinaryOutput builds a Binary Output object. PRESENT_VALUE is writable.
func NewBinaryOutput(instance uint32, name string, opts ...BinaryOption) *object.Object {
	return newBinaryBase(bacnet.ObjectTypeBinaryOutput, instance, name, true, true, opts)
}

// NewBinaryValue builds a Binary Value object, a writable software point
// with no physical backing and no POLARITY (POLARITY only applies where a
// physical signal is involved).
func NewBinaryValue(instance uint32, name string, opts ...BinaryOption) *object.Object {
	return newBinaryBase(bacnet.ObjectTypeBinaryValue, instance, name, true, false, opts)
}
