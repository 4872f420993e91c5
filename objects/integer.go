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

type integerConfig struct {
	units        bacnet.EngineeringUnits
	initialValue int32
	covIncrement uint32
	minPresValue int32
	maxPresValue int32
	hasMinPres   bool
	hasMaxPres   bool
	description  string
}

// IntegerOption configures an Integer Value preset at construction time.
type IntegerOption func(*integerConfig)

func defaultIntegerConfig() integerConfig {
	return integerConfig{
		units:        bacnet.UnitsNoUnits,
		covIncrement: 1,
	}
}

// WithIntegerUnits sets the UNITS property.
func WithIntegerUnits(units bacnet.EngineeringUnits) IntegerOption {
	return func(c *integerConfig) { c.units = units }
}

// WithIntegerInitialValue sets the PRESENT_VALUE an Integer Value starts with.
func WithIntegerInitialValue(v int32) IntegerOption {
	return func(c *integerConfig) { c.initialValue = v }
}

// WithIntegerCOVIncrement sets COV_INCREMENT.
func WithIntegerCOVIncrement(v uint32) IntegerOption {
	return func(c *integerConfig) { c.covIncrement = v }
}

// WithIntegerPresValueRange sets MIN_PRES_VALUE and MAX_PRES_VALUE.
func WithIntegerPresValueRange(min, max int32) IntegerOption {
	return func(c *integerConfig) {
		c.minPresValue, c.hasMinPres = min, true
		c.maxPresValue, c.hasMaxPres = max, true
	}
}

// WithIntegerDescription sets the DESCRIPTION property.
func WithIntegerDescription(description string) IntegerOption {
	return func(c *integerConfig) { c.description = description }
}

// NewIntegerValue builds an Integer Value object: a writable software point
// carrying a signed integer PRESENT_VALUE instead of the REAL the analog
// presets use.
func NewIntegerValue(instance uint32, name string, opts ...IntegerOption) *object.Object {
	cfg := defaultIntegerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	o := object.New(bacnet.ObjectTypeIntegerValue, instance, name)
	setDescription(o, cfg.description)

	mustAdd(o, property.NewSinglet(bacnet.PropertyPresentValue, value.NewSigned(cfg.initialValue), true))
	mustAdd(o, property.NewSinglet(bacnet.PropertyUnits, value.NewEnumerated(uint32(cfg.units)), false))
	mustAdd(o, property.NewSinglet(bacnet.PropertyCOVIncrement, value.NewUnsigned(cfg.covIncrement), true))

	if cfg.hasMinPres {
		mustAdd(o, property.NewSinglet(bacnet.PropertyMinPresValue, value.NewSigned(cfg.minPresValue), false))
	}
	if cfg.hasMaxPres {
		mustAdd(o, property.NewSinglet(bacnet.PropertyMaxPresValue, value.NewSigned(cfg.maxPresValue), false))
	}

	return o
}
