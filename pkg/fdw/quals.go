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

import "strings"

// Op is a constraint operator offered by the query planner.
type Op string

const (
	OpEq Op = "="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
	OpIn Op = "in"
)

// Qual is one column-level constraint. For OpIn the literals live in List;
// every other operator uses Value.
type Qual struct {
	Column string
	Op     Op
	Value  Value
	List   []Value
}

func (q Qual) String() string {
	if q.Op == OpIn {
		parts := make([]string, 0, len(q.List))
		for _, v := range q.List {
			parts = append(parts, v.Text())
		}
		return q.Column + " IN (" + strings.Join(parts, ", ") + ")"
	}
	return q.Column + " " + string(q.Op) + " " + q.Value.Text()
}

// Matches evaluates the constraint against one projected record. Constraints
// that cannot be evaluated (absent column, incomparable kinds) pass, so the
// caller never loses rows the host would have kept.
func (q Qual) Matches(rec map[string]Value) bool {
	cell, ok := rec[q.Column]
	if !ok || cell.IsNull() {
		return true
	}
	switch q.Op {
	case OpEq:
		return Equal(cell, q.Value)
	case OpIn:
		for _, v := range q.List {
			if Equal(cell, v) {
				return true
			}
		}
		return false
	case OpLt, OpLe, OpGt, OpGe:
		cmp, ok := Compare(cell, q.Value)
		if !ok {
			return true
		}
		switch q.Op {
		case OpLt:
			return cmp < 0
		case OpLe:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	default:
		return true
	}
}

// FilterResidual keeps only the records that satisfy every residual
// constraint. Satisfied constraints are already guaranteed by the remote
// side and are never re-applied.
func FilterResidual(rec map[string]Value, residual []Qual) bool {
	for _, q := range residual {
		if !q.Matches(rec) {
			return false
		}
	}
	return true
}
