package device

import (
	"time"

	"golang.org/x/exp/constraints"
)

// isDaylightSavings reports whether t's zone offset differs from the zone
// offset six months prior in the same location, the standard way to infer
// DST without a per-location rule table.
func isDaylightSavings(t time.Time) bool {
	_, currentOffset := t.Zone()
	_, referenceOffset := t.AddDate(0, -6, 0).In(t.Location()).Zone()
	return currentOffset != referenceOffset
}

// clamp restricts v to [lo, hi]; device.New uses it to bring the device
// instance number into its BACnet-mandated range without an if/else at the
// call site.
func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// inRange reports whether v falls within [lo, hi] inclusive.
func inRange[T constraints.Ordered](v, lo, hi T) bool {
	return v >= lo && v <= hi
}
