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

import "time"

// timeWindow accumulates range constraints on the start/end columns into
// the single [start,end] window the remote API understands: the tightest
// lower bound and the tightest upper bound win.
type timeWindow struct {
	lower *time.Time
	upper *time.Time
}

func (w *timeWindow) tightenLower(t time.Time) {
	if w.lower == nil || t.After(*w.lower) {
		t := t.UTC()
		w.lower = &t
	}
}

func (w *timeWindow) tightenUpper(t time.Time) {
	if w.upper == nil || t.Before(*w.upper) {
		t := t.UTC()
		w.upper = &t
	}
}

// absorb maps one constraint on a start-like or end-like time column into
// the window: lower bounds tighten the window start, upper bounds tighten
// the window end, equality pins both. It reports whether the constraint
// was absorbed.
func (w *timeWindow) absorb(q Qual) bool {
	t, ok := q.Value.AsTime()
	if !ok {
		return false
	}
	switch q.Op {
	case OpGt, OpGe:
		w.tightenLower(t)
	case OpLt, OpLe:
		w.tightenUpper(t)
	case OpEq:
		w.tightenLower(t)
		w.tightenUpper(t)
	default:
		return false
	}
	return true
}

func (w *timeWindow) hasAny() bool { return w.lower != nil || w.upper != nil }

// complete fills the missing bound (epoch below, now above) because the API
// requires both parameters whenever either is present.
func (w *timeWindow) complete(now time.Time) {
	if w.lower != nil && w.upper == nil {
		t := now.UTC()
		w.upper = &t
	}
	if w.upper != nil && w.lower == nil {
		t := time.Unix(0, 0).UTC()
		w.lower = &t
	}
}

// apiTimestamp formats a bound the way the remote API expects it: RFC3339
// UTC without sub-second precision.
func apiTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
