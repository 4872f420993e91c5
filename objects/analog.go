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

// Package objects supplies concrete BACnet object presets built on top of
// the generic object.Object: each one installs the properties the standard
// requires for that object type, over and above the four every object
// already carries.
package objects

import (
	"context"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
	"github.com/edgeo-scada/bacnet-device/property"
	"github.com/edgeo-scada/bacnet-device/value"
)

// analogConfig collects the optional knobs every analog preset accepts.
type analogConfig struct {
	units        bacnet.EngineeringUnits
	initialValue float32
	covIncrement float32
	minPresValue float32
	maxPresValue float32
	hasMinPres   bool
	hasMaxPres   bool
	description  string
}

// AnalogOption configures an analog object preset at construction time.
type AnalogOption func(*analogConfig)

func defaultAnalogConfig() analogConfig {
	return analogConfig{
		units:        bacnet.UnitsNoUnits,
		covIncrement: 1.0,
	}
}

// WithUnits sets the UNITS property.
func WithUnits(units bacnet.EngineeringUnits) AnalogOption {
	return func(c *analogConfig) { c.units = units }
}

// WithInitialValue sets the PRESENT_VALUE an analog object starts with.
func WithInitialValue(v float32) AnalogOption {
	return func(c *analogConfig) { c.initialValue = v }
}

// WithCOVIncrement sets the COV_INCREMENT property. The device reports the
// value but does not consult it: subscribers are notified of every
// committed PRESENT_VALUE change, however small.
func WithCOVIncrement(v float32) AnalogOption {
	return func(c *analogConfig) { c.covIncrement = v }
}

// WithPresValueRange sets MIN_PRES_VALUE and MAX_PRES_VALUE.
func WithPresValueRange(min, max float32) AnalogOption {
	return func(c *analogConfig) {
		c.minPresValue, c.hasMinPres = min, true
		c.maxPresValue, c.hasMaxPres = max, true
	}
}

// WithDescription sets the DESCRIPTION property.
func WithDescription(description string) AnalogOption {
	return func(c *analogConfig) { c.description = description }
}

func newAnalogBase(objectType bacnet.ObjectType, instance uint32, name string, presentValueWritable bool, opts []AnalogOption) *object.Object {
	cfg := defaultAnalogConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	o := object.New(objectType, instance, name)
	setDescription(o, cfg.description)

	mustAdd(o, property.NewSinglet(bacnet.PropertyPresentValue, value.NewReal(cfg.initialValue), presentValueWritable))
	mustAdd(o, property.NewSinglet(bacnet.PropertyUnits, value.NewEnumerated(uint32(cfg.units)), false))
	mustAdd(o, property.NewSinglet(bacnet.PropertyCOVIncrement, value.NewReal(cfg.covIncrement), true))

	if cfg.hasMinPres {
		mustAdd(o, property.NewSinglet(bacnet.PropertyMinPresValue, value.NewReal(cfg.minPresValue), false))
	}
	if cfg.hasMaxPres {
		mustAdd(o, property.NewSinglet(bacnet.PropertyMaxPresValue, value.NewReal(cfg.maxPresValue), false))
	}

	return o
}

// NewAnalogInput builds an Analog Input object. PRESENT_VALUE is read-only:
// the object represents a physical or calculated input this device only
// reports, never accepts writes for.
func NewAnalogInput(instance uint32, name string, opts ...AnalogOption) *object.Object {
	return newAnalogBase(bacnet.ObjectTypeAnalogInput, instance, name, false, opts)
}

// NewAnalogOutput builds an Analog Output object. PRESENT_VALUE is
// writable, commanding whatever the output drives.
func NewAnalogOutput(instance uint32, name string, opts ...AnalogOption) *object.Object {
	return newAnalogBase(bacnet.ObjectTypeAnalogOutput, instance, name, true, opts)
}

// NewAnalogValue builds an Analog Value object, a writable software point
// with no physical backing.
func NewAnalogValue(instance uint32, name string, opts ...AnalogOption) *object.Object {
	return newAnalogBase(bacnet.ObjectTypeAnalogValue, instance, name, true, opts)
}

// mustAdd registers a property on a freshly constructed object; the only
// failure mode AddProperty has is a duplicate identifier, which cannot
// happen here since every preset adds each property exactly once.
func mustAdd(o *object.Object, p *property.Property) {
	if err := o.AddProperty(p); err != nil {
		panic(err)
	}
}

// setDescription overwrites DESCRIPTION's construction-time default (the
// empty string object.New installs) when a preset supplies one.
func setDescription(o *object.Object, description string) {
	if description == "" {
		return
	}
	p, ok := o.Property(bacnet.PropertyDescription)
	if !ok {
		return
	}
	_ = p.WriteData(context.Background(), 0, value.NewCharacterString(description, value.EncodingUTF8))
}
