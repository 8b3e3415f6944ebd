package optime

import "testing"

func TestCompareOrdering(t *testing.T) {
    cases := []struct {
        a, b OpTime
        want int
    }{
        {New(0, 0), New(0, 0), 0},
        {New(1, 0), New(0, 5), 1},
        {New(0, 5), New(1, 0), -1},
        {New(1, 2), New(1, 3), -1},
        {New(1, 3), New(1, 2), 1},
        {New(2, 7), New(2, 7), 0},
    }
    for i, c := range cases {
        if got := c.a.Compare(c.b); got != c.want {
            t.Fatalf("case %d: Compare(%v, %v) = %d, want %d", i, c.a, c.b, got, c.want)
        }
    }
}

func TestBeforeAfterEqual(t *testing.T) {
    a, b := New(10, 0), New(100, 0)
    if !a.Before(b) { t.Fatalf("expected %v before %v", a, b) }
    if !b.After(a) { t.Fatalf("expected %v after %v", b, a) }
    if a.After(b) || b.Before(a) { t.Fatalf("ordering inverted for %v / %v", a, b) }
    if !a.Equal(New(10, 0)) { t.Fatalf("expected %v equal to itself", a) }
    if a.Equal(b) { t.Fatalf("distinct optimes reported equal: %v %v", a, b) }
}

func TestIsZero(t *testing.T) {
    if !(OpTime{}).IsZero() { t.Fatalf("zero value not reported as zero") }
    if New(0, 1).IsZero() { t.Fatalf("0:1 reported as zero") }
    if New(1, 0).IsZero() { t.Fatalf("1:0 reported as zero") }
}

func TestPackRoundTrip(t *testing.T) {
    cases := []OpTime{
        {},
        New(0, 1),
        New(10, 0),
        New(100, 0),
        New(110, 0),
        New(1724400000, 7),
    }
    for _, c := range cases {
        if got := FromTime(c.AsTime()); got != c {
            t.Fatalf("round trip of %v gave %v", c, got)
        }
    }
}

func TestPackKeepsOrder(t *testing.T) {
    seq := []OpTime{New(99, 9), New(100, 0), New(100, 1), New(101, 0)}
    for i := 1; i < len(seq); i++ {
        if !seq[i-1].AsTime().Before(seq[i].AsTime()) {
            t.Fatalf("packed order broken between %v and %v", seq[i-1], seq[i])
        }
    }
}

func TestString(t *testing.T) {
    if got := New(100, 3).String(); got != "100:3" {
        t.Fatalf("String() = %q, want %q", got, "100:3")
    }
}
