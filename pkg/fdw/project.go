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

// Project maps one decoded record onto the requested column order. Absent
// fields project to null, never to a default; timestamp columns are coerced
// to the temporal kind so the wire layer can format them uniformly.
func Project(rec map[string]Value, cols []Column, want []string) Row {
	row := make(Row, 0, len(want))
	for _, name := range want {
		cell, ok := rec[name]
		if !ok {
			row = append(row, Null)
			continue
		}
		col, known := columnByName(cols, name)
		if !known {
			row = append(row, cell)
			continue
		}
		row = append(row, coerce(cell, col.Type))
	}
	return row
}

func coerce(v Value, t ColType) Value {
	if v.IsNull() {
		return Null
	}
	switch t {
	case TypeTimestamptz:
		if ts, ok := v.AsTime(); ok {
			return TimeValue(ts)
		}
		return Null
	case TypeInteger, TypeBigint, TypeFloat8:
		if v.Kind == KindNumber {
			return v
		}
		return Null
	case TypeBool:
		if v.Kind == KindBool {
			return v
		}
		return Null
	default:
		return v
	}
}
