// Package document implements the open key/value documents exchanged by
// freshness commands. Fields are dynamically typed: a reply may carry a
// timestamp, a number or garbage under the same key, and the reader has
// to find out which it got. Timestamps survive the JSON wire format via
// a {"$ts": <unix-millis>} wrapper so they never collapse into plain
// numbers on the far side.
package document

import (
    "bytes"
    "encoding/json"
    "fmt"
    "time"
)

// tsKey wraps time values on the wire.
const tsKey = "$ts"

// Doc is one command or reply document.
type Doc map[string]any

// Has reports whether key is present in the document.
func (d Doc) Has(key string) bool {
    _, ok := d[key]
    return ok
}

// Str returns the string stored under key.
func (d Doc) Str(key string) (string, bool) {
    s, ok := d[key].(string)
    return s, ok
}

// Int64 returns the integer stored under key. Any numeric representation
// is accepted, including numbers decoded from the wire.
func (d Doc) Int64(key string) (int64, bool) {
    switch v := d[key].(type) {
    case int:
        return int64(v), true
    case int32:
        return int64(v), true
    case int64:
        return v, true
    case float64:
        return int64(v), true
    case json.Number:
        n, err := v.Int64()
        if err != nil { return 0, false }
        return n, true
    }
    return 0, false
}

// Time returns the timestamp stored under key. It fails when the field is
// missing or holds any non-timestamp value.
func (d Doc) Time(key string) (time.Time, bool) {
    ts, ok := d[key].(time.Time)
    return ts, ok
}

// Flag reports whether key holds a truthy value: boolean true or any
// number other than zero. Missing fields and all other types are false.
func (d Doc) Flag(key string) bool {
    switch v := d[key].(type) {
    case bool:
        return v
    case int:
        return v != 0
    case int32:
        return v != 0
    case int64:
        return v != 0
    case float64:
        return v != 0
    case json.Number:
        f, err := v.Float64()
        return err == nil && f != 0
    }
    return false
}

// TypeName labels the dynamic type of a field value for diagnostics.
func TypeName(v any) string {
    switch x := v.(type) {
    case nil:
        return "missing"
    case time.Time:
        return "timestamp"
    case string:
        return "string"
    case bool:
        return "bool"
    case int, int32, int64:
        return "int"
    case float64:
        return "double"
    case json.Number:
        if _, err := x.Int64(); err == nil { return "int" }
        return "double"
    case Doc, map[string]any:
        return "document"
    case []any:
        return "array"
    }
    return fmt.Sprintf("%T", v)
}

// MarshalJSON encodes the document, wrapping every time.Time value as
// {"$ts": <unix-millis>} so the receiver can tell timestamps apart from
// plain numbers.
func (d Doc) MarshalJSON() ([]byte, error) {
    return json.Marshal(encodeMap(d))
}

// UnmarshalJSON decodes a document produced by MarshalJSON. Numbers are
// kept as json.Number so large packed timestamps do not lose precision.
func (d *Doc) UnmarshalJSON(b []byte) error {
    dec := json.NewDecoder(bytes.NewReader(b))
    dec.UseNumber()
    var raw map[string]any
    if err := dec.Decode(&raw); err != nil { return err }
    *d = decodeMap(raw)
    return nil
}

func encodeMap(m map[string]any) map[string]any {
    out := make(map[string]any, len(m))
    for k, v := range m {
        out[k] = encodeValue(v)
    }
    return out
}

func encodeValue(v any) any {
    switch x := v.(type) {
    case time.Time:
        return map[string]any{tsKey: x.UnixMilli()}
    case Doc:
        return encodeMap(x)
    case map[string]any:
        return encodeMap(x)
    case []any:
        out := make([]any, len(x))
        for i := range x {
            out[i] = encodeValue(x[i])
        }
        return out
    }
    return v
}

func decodeMap(m map[string]any) Doc {
    out := make(Doc, len(m))
    for k, v := range m {
        out[k] = decodeValue(v)
    }
    return out
}

func decodeValue(v any) any {
    switch x := v.(type) {
    case map[string]any:
        if len(x) == 1 {
            if wrapped, ok := x[tsKey]; ok {
                if num, ok := wrapped.(json.Number); ok {
                    if ms, err := num.Int64(); err == nil {
                        return time.UnixMilli(ms).UTC()
                    }
                }
            }
        }
        return decodeMap(x)
    case []any:
        out := make([]any, len(x))
        for i := range x {
            out[i] = decodeValue(x[i])
        }
        return out
    }
    return v
}
