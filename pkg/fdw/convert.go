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
	"fmt"
	"net/url"
	"time"

	"github.com/roverdata/telesql/internal/api"
)

// optStr treats the empty string as an absent field.
func optStr(s string) Value {
	if s == "" {
		return Null
	}
	return StringValue(s)
}

func optTime(t *time.Time) Value {
	if t == nil {
		return Null
	}
	return TimeValue(*t)
}

func optInt64(v *int64) Value {
	if v == nil {
		return Null
	}
	return NumberValue(float64(*v))
}

func optMap(m map[string]interface{}) Value {
	if m == nil {
		return Null
	}
	return FromJSON(m)
}

// pushEq maps pushed equality constraints onto remote query parameters.
// Constraints whose column has no mapping, or whose operator is not plain
// equality, go back to residual.
func pushEq(pushable []Qual, paramFor map[string]string, params url.Values) (satisfied, residual []Qual) {
	for _, q := range pushable {
		param, ok := paramFor[q.Column]
		if !ok || q.Op != OpEq {
			residual = append(residual, q)
			continue
		}
		params.Set(param, q.Value.Text())
		satisfied = append(satisfied, q)
	}
	return satisfied, residual
}

// pushSort forwards a single-key ORDER BY when the API can sort by that
// field. Multi-key sorts always fall back to local ordering.
func pushSort(cols []Column, sortField map[string]string, sort []SortKey, params url.Values) bool {
	if len(sort) != 1 {
		return false
	}
	key := sort[0]
	col, ok := columnByName(cols, key.Column)
	if !ok || !col.Sortable {
		return false
	}
	field, ok := sortField[key.Column]
	if !ok {
		return false
	}
	params.Set("sortBy", field)
	if key.Desc {
		params.Set("sortOrder", "desc")
	} else {
		params.Set("sortOrder", "asc")
	}
	return true
}

// splitTimeQuals separates range constraints on the named time columns
// from everything else.
func splitTimeQuals(quals []Qual, timeCols ...string) (timeQuals, rest []Qual) {
	isTimeCol := func(name string) bool {
		for _, c := range timeCols {
			if c == name {
				return true
			}
		}
		return false
	}
	for _, q := range quals {
		if isTimeCol(q.Column) {
			if _, ok := q.Value.AsTime(); ok && q.Op != OpIn {
				timeQuals = append(timeQuals, q)
				continue
			}
		}
		rest = append(rest, q)
	}
	return timeQuals, rest
}

func truncationWarning(tableName string) Warning {
	return Warning{
		Code:    WarnTruncated,
		Message: fmt.Sprintf("%s scan hit the %d-row remote ceiling; results may be incomplete, add filters to narrow the scan", tableName, api.PageCeiling),
	}
}
