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
	"net"
	"time"

	"github.com/edgeo-scada/bacnet-device/bacnet"
	"github.com/edgeo-scada/bacnet-device/object"
)

// Subscription is one SubscribeCOV lease.
type Subscription struct {
	SubscriberProcessID          uint32
	MonitoredObjectID            bacnet.ObjectIdentifier
	MonitoredProperty            object.PropertyRef
	SubscriberAddress            *net.UDPAddr
	IssueConfirmedNotifications  bool
	ExpiresAt                    time.Time
	COVIncrement                 uint32
	lifetimeSeconds              uint32
}

// key uniquely identifies a subscription within a monitored object's set.
type subscriptionKey struct {
	addr      string
	processID uint32
}

func keyOf(addr *net.UDPAddr, processID uint32) subscriptionKey {
	return subscriptionKey{addr: addr.String(), processID: processID}
}

// TimeRemaining returns the whole seconds left before expiry, floored, as
// of now. Negative values are clamped to 0.
func (s *Subscription) TimeRemaining(now time.Time) uint32 {
	remaining := s.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return uint32(remaining / time.Second)
}

// subscriptionSet is the per-(type,instance) collection of active
// subscriptions, keyed by the tuple that must be unique across a monitored
// object's subscribers: subscriber address, monitored object id, and
// subscriber process id.
type subscriptionSet map[subscriptionKey]*Subscription

// registry is the two-level type -> instance -> subscriptionSet map.
type registry map[bacnet.ObjectType]map[uint32]subscriptionSet

func newRegistry() registry {
	return make(registry)
}

func (r registry) setFor(oid bacnet.ObjectIdentifier) subscriptionSet {
	byInstance, ok := r[oid.Type]
	if !ok {
		byInstance = make(map[uint32]subscriptionSet)
		r[oid.Type] = byInstance
	}
	set, ok := byInstance[oid.Instance]
	if !ok {
		set = make(subscriptionSet)
		byInstance[oid.Instance] = set
	}
	return set
}

// subscriptionsFor returns the subscriptions for oid without creating any
// intermediate map entries, unlike setFor.
func (r registry) subscriptionsFor(oid bacnet.ObjectIdentifier) subscriptionSet {
	byInstance, ok := r[oid.Type]
	if !ok {
		return nil
	}
	return byInstance[oid.Instance]
}

func (r registry) all() []*Subscription {
	var out []*Subscription
	for _, byInstance := range r {
		for _, set := range byInstance {
			for _, s := range set {
				out = append(out, s)
			}
		}
	}
	return out
}

// prune removes expired subscriptions and empty intermediate maps, per the
// maintenance pass.
func (r registry) prune(now time.Time) []*Subscription {
	var removed []*Subscription
	for objType, byInstance := range r {
		for instance, set := range byInstance {
			for key, s := range set {
				if !now.Before(s.ExpiresAt) {
					removed = append(removed, s)
					delete(set, key)
				}
			}
			if len(set) == 0 {
				delete(byInstance, instance)
			}
		}
		if len(byInstance) == 0 {
			delete(r, objType)
		}
	}
	return removed
}
