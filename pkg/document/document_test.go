package document

import (
    "encoding/json"
    "testing"
    "time"
)

func TestGetters(t *testing.T) {
    ts := time.UnixMilli(123456).UTC()
    d := Doc{"who": "h1:27017", "cfgver": int64(10), "opTime": ts}

    if !d.Has("who") { t.Fatalf("Has(who) = false") }
    if d.Has("absent") { t.Fatalf("Has(absent) = true") }

    if s, ok := d.Str("who"); !ok || s != "h1:27017" {
        t.Fatalf("Str(who) = %q, %v", s, ok)
    }
    if _, ok := d.Str("cfgver"); ok { t.Fatalf("Str accepted an int field") }

    if n, ok := d.Int64("cfgver"); !ok || n != 10 {
        t.Fatalf("Int64(cfgver) = %d, %v", n, ok)
    }
    if got, ok := d.Time("opTime"); !ok || !got.Equal(ts) {
        t.Fatalf("Time(opTime) = %v, %v", got, ok)
    }
    if _, ok := d.Time("who"); ok { t.Fatalf("Time accepted a string field") }
    if _, ok := d.Time("absent"); ok { t.Fatalf("Time accepted a missing field") }
}

func TestInt64AcceptsWireNumbers(t *testing.T) {
    d := Doc{"a": json.Number("42"), "b": float64(7), "c": int(3), "bad": json.Number("1.9e400")}
    for key, want := range map[string]int64{"a": 42, "b": 7, "c": 3} {
        if n, ok := d.Int64(key); !ok || n != want {
            t.Fatalf("Int64(%s) = %d, %v, want %d", key, n, ok, want)
        }
    }
    if _, ok := d.Int64("bad"); ok { t.Fatalf("Int64 accepted a non-integer number") }
}

func TestFlagTruthiness(t *testing.T) {
    d := Doc{
        "t":    true,
        "f":    false,
        "one":  1,
        "zero": 0,
        "neg":  float64(-2),
        "num":  json.Number("1"),
        "str":  "true",
    }
    truthy := []string{"t", "one", "neg", "num"}
    falsy := []string{"f", "zero", "str", "absent"}
    for _, k := range truthy {
        if !d.Flag(k) { t.Fatalf("Flag(%s) = false, want true", k) }
    }
    for _, k := range falsy {
        if d.Flag(k) { t.Fatalf("Flag(%s) = true, want false", k) }
    }
}

func TestTypeName(t *testing.T) {
    cases := []struct {
        v    any
        want string
    }{
        {nil, "missing"},
        {time.Now(), "timestamp"},
        {"x", "string"},
        {true, "bool"},
        {3, "int"},
        {int64(3), "int"},
        {json.Number("3"), "int"},
        {json.Number("3.5"), "double"},
        {2.5, "double"},
        {Doc{}, "document"},
        {[]any{1}, "array"},
    }
    for i, c := range cases {
        if got := TypeName(c.v); got != c.want {
            t.Fatalf("case %d: TypeName(%v) = %q, want %q", i, c.v, got, c.want)
        }
    }
}

func TestWireRoundTripKeepsTimestamps(t *testing.T) {
    ts := time.UnixMilli(100 << 32).UTC()
    in := Doc{"opTime": ts, "cfgver": int64(10), "who": "h0:27017", "fresher": true}

    b, err := json.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }

    var out Doc
    if err := json.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }

    got, ok := out.Time("opTime")
    if !ok { t.Fatalf("opTime did not survive as a timestamp: %v", out["opTime"]) }
    if !got.Equal(ts) { t.Fatalf("opTime round trip: got %v want %v", got, ts) }

    if n, ok := out.Int64("cfgver"); !ok || n != 10 {
        t.Fatalf("cfgver round trip: %d, %v", n, ok)
    }
    if !out.Flag("fresher") { t.Fatalf("fresher flag lost") }
}

func TestWireKeepsPlainNumbersPlain(t *testing.T) {
    in := Doc{"opTime": 3}
    b, err := json.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }

    var out Doc
    if err := json.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }

    if _, ok := out.Time("opTime"); ok {
        t.Fatalf("plain number decoded as a timestamp")
    }
    if got := TypeName(out["opTime"]); got != "int" {
        t.Fatalf("TypeName after wire = %q, want %q", got, "int")
    }
}

func TestLargeTimestampPrecision(t *testing.T) {
    // Packed optimes exceed 2^53 for wall-clock seconds, which would be
    // mangled by a float64 decode path.
    ts := time.UnixMilli(int64(1724400000)<<32 | 7).UTC()
    b, err := json.Marshal(Doc{"opTime": ts})
    if err != nil { t.Fatalf("marshal: %v", err) }

    var out Doc
    if err := json.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }

    got, ok := out.Time("opTime")
    if !ok { t.Fatalf("timestamp lost: %v", out["opTime"]) }
    if got.UnixMilli() != ts.UnixMilli() {
        t.Fatalf("precision lost: got %d want %d", got.UnixMilli(), ts.UnixMilli())
    }
}

func TestNestedValues(t *testing.T) {
    in := Doc{"outer": Doc{"inner": time.UnixMilli(5000).UTC()}, "list": []any{1, "two"}}
    b, err := json.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }

    var out Doc
    if err := json.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }

    nested, ok := out["outer"].(Doc)
    if !ok { t.Fatalf("nested document lost: %T", out["outer"]) }
    if _, ok := nested.Time("inner"); !ok {
        t.Fatalf("nested timestamp lost: %v", nested["inner"])
    }
}
