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
	"context"
	"io"
	"net/url"
)

// ColType is the host-side column type. The wire server maps these to
// Postgres type OIDs; the projector coerces remote values into them.
type ColType int

const (
	TypeText ColType = iota
	TypeInteger
	TypeBigint
	TypeFloat8
	TypeBool
	TypeTimestamptz
	TypeJSONB
)

// Column describes one output column and the constraint kinds the remote
// API can satisfy on it. An empty Pushdown set means every constraint on
// the column stays residual.
type Column struct {
	Name     string
	Type     ColType
	Pushdown []Op
	Sortable bool
}

func (c Column) CanPush(op Op) bool {
	for _, candidate := range c.Pushdown {
		if candidate == op {
			return true
		}
	}
	return false
}

// SortKey is an ORDER BY request forwarded by the host.
type SortKey struct {
	Column string
	Desc   bool
}

// ScanRequest is one table scan: requested output columns in order, the
// planner's constraints, and optional sort/limit hints.
type ScanRequest struct {
	Columns []string
	Quals   []Qual
	Sort    []SortKey
	Limit   int
}

// Plan is the outcome of predicate translation: the remote parameter set,
// the constraints the remote side fully satisfies, and the residue the
// caller must still apply.
type Plan struct {
	Params     url.Values
	Satisfied  []Qual
	Residual   []Qual
	SortPushed bool
}

// Row is one output row, cells ordered as the request's Columns.
type Row []Value

// RowIterator is a lazy, finite, non-restartable row sequence. Next returns
// io.EOF after the final row; Warnings may grow until then and is complete
// once Next has returned io.EOF.
type RowIterator interface {
	Next(ctx context.Context) (Row, error)
	Warnings() []Warning
	Close() error
}

// sliceIterator serves pre-materialized rows; list-endpoint scans are
// bounded by the remote page ceiling so buffering them is cheap.
type sliceIterator struct {
	rows     []Row
	pos      int
	warnings []Warning
}

func newSliceIterator(rows []Row, warnings []Warning) *sliceIterator {
	return &sliceIterator{rows: rows, warnings: warnings}
}

func (it *sliceIterator) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

func (it *sliceIterator) Warnings() []Warning { return it.warnings }

func (it *sliceIterator) Close() error { return nil }

// table is one tagged variant of the closed table set. Translation and scan
// are separated so EXPLAIN can show the plan without fetching.
type table interface {
	Name() string
	Columns() []Column
	Plan(req ScanRequest) (Plan, error)
	Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error)
}

func columnByName(cols []Column, name string) (Column, bool) {
	for _, col := range cols {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// splitQuals partitions constraints into pushable and residual according to
// the column declarations. The per-table translators start from this split
// and may move entries back to residual when the API cannot express them.
func splitQuals(cols []Column, quals []Qual) (pushable, residual []Qual) {
	for _, q := range quals {
		col, ok := columnByName(cols, q.Column)
		if ok && col.CanPush(q.Op) {
			pushable = append(pushable, q)
			continue
		}
		residual = append(residual, q)
	}
	return pushable, residual
}
