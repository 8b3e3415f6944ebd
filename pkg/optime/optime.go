// Package optime defines the logical timestamp that orders writes across
// the members of a replica set. Freshness voting compares these values to
// decide which member has applied the most recent operation.
package optime

import (
    "fmt"
    "time"
)

// OpTime identifies the last operation a member has applied. Secs carries
// wall-clock seconds and Inc orders operations that land within the same
// second. Ordering is lexicographic on (Secs, Inc).
type OpTime struct {
    Secs uint32 `json:"secs"`
    Inc  uint32 `json:"inc"`
}

// New builds an OpTime from its two components.
func New(secs, inc uint32) OpTime { return OpTime{Secs: secs, Inc: inc} }

// IsZero reports whether t is the initial optime of a member that has not
// applied any operation yet.
func (t OpTime) IsZero() bool { return t.Secs == 0 && t.Inc == 0 }

// Compare returns -1 when t orders before o, 0 when they are equal and +1
// when t orders after o.
func (t OpTime) Compare(o OpTime) int {
    switch {
    case t.Secs < o.Secs:
        return -1
    case t.Secs > o.Secs:
        return 1
    case t.Inc < o.Inc:
        return -1
    case t.Inc > o.Inc:
        return 1
    }
    return 0
}

// Before reports whether t orders strictly before o.
func (t OpTime) Before(o OpTime) bool { return t.Compare(o) < 0 }

// After reports whether t orders strictly after o.
func (t OpTime) After(o OpTime) bool { return t.Compare(o) > 0 }

// Equal reports whether t and o are the same optime.
func (t OpTime) Equal(o OpTime) bool { return t == o }

// AsTime packs the optime into a timestamp for wire transport. The packed
// value preserves (Secs, Inc) ordering, so two optimes compare the same
// way on both sides of a round trip.
func (t OpTime) AsTime() time.Time {
    ms := int64(t.Secs)<<32 | int64(t.Inc)
    return time.UnixMilli(ms).UTC()
}

// FromTime recovers the OpTime packed by AsTime.
func FromTime(ts time.Time) OpTime {
    ms := ts.UnixMilli()
    return OpTime{Secs: uint32(ms >> 32), Inc: uint32(ms)}
}

func (t OpTime) String() string { return fmt.Sprintf("%d:%d", t.Secs, t.Inc) }
