// Copyright 2026 Rover Data Systems (roverdata.io).
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

package fdw

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValueKind enumerates the shapes a remote JSON payload can take. Rows never
// carry untyped interface{} values; every cell is one of these.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindTime
	KindMap
	KindSeq
)

// Value is a tagged union over the JSON-ish values the remote API returns.
type Value struct {
	Kind ValueKind
	Bool bool
	Num  float64
	Str  string
	Time time.Time
	Map  map[string]Value
	Seq  []Value
}

var Null = Value{Kind: KindNull}

func BoolValue(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func NumberValue(v float64) Value { return Value{Kind: KindNumber, Num: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func TimeValue(v time.Time) Value { return Value{Kind: KindTime, Time: v.UTC()} }

func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindMap, Map: m}
}

func SeqValue(s []Value) Value { return Value{Kind: KindSeq, Seq: s} }

// IsNull reports whether the value is the SQL null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// FromJSON converts a decoded encoding/json value into the tagged union.
// NUL code points are stripped from strings; Postgres clients reject \u0000
// inside jsonb.
func FromJSON(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return NumberValue(f)
	case string:
		if strings.ContainsRune(t, 0) {
			t = strings.ReplaceAll(t, "\x00", "")
		}
		return StringValue(t)
	case []interface{}:
		seq := make([]Value, 0, len(t))
		for _, item := range t {
			seq = append(seq, FromJSON(item))
		}
		return SeqValue(seq)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromJSON(item)
		}
		return MapValue(m)
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// ParseJSON decodes raw JSON bytes into the tagged union.
func ParseJSON(data []byte) (Value, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Null, err
	}
	return FromJSON(raw), nil
}

// AppendJSON renders the value as JSON. Map keys are emitted sorted so the
// same value always serializes to the same bytes.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.Kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		return strconv.AppendBool(dst, v.Bool)
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return strconv.AppendInt(dst, int64(v.Num), 10)
		}
		return strconv.AppendFloat(dst, v.Num, 'g', -1, 64)
	case KindString:
		quoted, _ := json.Marshal(v.Str)
		return append(dst, quoted...)
	case KindTime:
		quoted, _ := json.Marshal(v.Time.Format(time.RFC3339Nano))
		return append(dst, quoted...)
	case KindSeq:
		dst = append(dst, '[')
		for i, item := range v.Seq {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = item.AppendJSON(dst)
		}
		return append(dst, ']')
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			quoted, _ := json.Marshal(k)
			dst = append(dst, quoted...)
			dst = append(dst, ':')
			dst = v.Map[k].AppendJSON(dst)
		}
		return append(dst, '}')
	default:
		return append(dst, "null"...)
	}
}

// JSON returns the canonical JSON encoding of the value.
func (v Value) JSON() string { return string(v.AppendJSON(nil)) }

// Text renders the value the way a Postgres text-format cell expects it.
func (v Value) Text() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "t"
		}
		return "f"
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindTime:
		return v.Time.UTC().Format("2006-01-02 15:04:05.999999-07")
	default:
		return v.JSON()
	}
}

// AsTime interprets the value as a timestamp: native times pass through,
// strings are parsed as RFC3339, numbers as Unix seconds.
func (v Value) AsTime() (time.Time, bool) {
	switch v.Kind {
	case KindTime:
		return v.Time, true
	case KindString:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, v.Str); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case KindNumber:
		sec := int64(v.Num)
		nsec := int64((v.Num - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	default:
		return time.Time{}, false
	}
}

// Compare orders two scalar values; ok is false when the kinds are not
// comparable (maps, sequences, mismatched scalars).
func Compare(a, b Value) (int, bool) {
	if at, aok := a.AsTime(); aok {
		if bt, bok := b.AsTime(); bok && (a.Kind == KindTime || b.Kind == KindTime) {
			return at.Compare(bt), true
		}
	}
	switch {
	case a.Kind == KindNumber && b.Kind == KindNumber:
		switch {
		case a.Num < b.Num:
			return -1, true
		case a.Num > b.Num:
			return 1, true
		default:
			return 0, true
		}
	case a.Kind == KindString && b.Kind == KindString:
		return strings.Compare(a.Str, b.Str), true
	case a.Kind == KindBool && b.Kind == KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0, true
		case b.Bool:
			return -1, true
		default:
			return 1, true
		}
	default:
		return 0, false
	}
}

// Equal reports loose equality between a row cell and a constraint literal.
// A string literal matches a number or time cell when their text forms agree,
// mirroring how the planner hands every literal over as text.
func Equal(a, b Value) bool {
	if cmp, ok := Compare(a, b); ok {
		return cmp == 0
	}
	if a.IsNull() || b.IsNull() {
		return false
	}
	return a.Text() == b.Text()
}
