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

// Package fdw exposes the remote recording API as a closed set of scannable
// tables. Each table translates planner constraints into remote query
// parameters, fetches, decodes, and projects rows; constraints the remote
// side cannot express are re-applied locally before a row is emitted.
package fdw

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roverdata/telesql/internal/api"
	"github.com/roverdata/telesql/internal/config"
	"github.com/roverdata/telesql/internal/lake"
	"github.com/roverdata/telesql/internal/metrics"
	"github.com/roverdata/telesql/pkg/payload"
)

// Engine owns the table set and the shared clients the scans run against.
type Engine struct {
	api     *api.Client
	lake    lake.Fetcher
	cfg     config.QueryConfig
	logger  *slog.Logger
	decoder *payload.Decoder
	tables  map[string]table
	order   []string
}

func NewEngine(client *api.Client, lk lake.Fetcher, cfg config.QueryConfig, logger *slog.Logger) *Engine {
	e := &Engine{
		api:     client,
		lake:    lk,
		cfg:     cfg,
		logger:  logger,
		decoder: payload.NewDecoder(),
		tables:  make(map[string]table),
	}
	for _, t := range []table{
		&devicesTable{},
		&recordingsTable{},
		&attachmentsTable{},
		&eventsTable{},
		&topicsTable{},
		&coverageTable{},
		&messagesTable{},
	} {
		e.tables[t.Name()] = t
		e.order = append(e.order, t.Name())
	}
	return e
}

// TableNames lists the tables in catalog order.
func (e *Engine) TableNames() []string {
	return append([]string(nil), e.order...)
}

// TableColumns returns the column set for a table.
func (e *Engine) TableColumns(name string) ([]Column, bool) {
	t, ok := e.tables[name]
	if !ok {
		return nil, false
	}
	return t.Columns(), true
}

// dynamicColumns is implemented by tables with virtual columns beyond
// their declared set.
type dynamicColumns interface {
	dynamicColumn(name string) (Column, bool)
}

// ResolveColumn finds a column by name, including virtual columns such as
// the events table's metadata_<key> accessors.
func (e *Engine) ResolveColumn(tableName, column string) (Column, bool) {
	t, ok := e.tables[tableName]
	if !ok {
		return Column{}, false
	}
	if col, found := columnByName(t.Columns(), column); found {
		return col, true
	}
	if d, isDynamic := t.(dynamicColumns); isDynamic {
		return d.dynamicColumn(column)
	}
	return Column{}, false
}

// PlanScan runs predicate translation without fetching, for EXPLAIN.
func (e *Engine) PlanScan(tableName string, req ScanRequest) (Plan, error) {
	t, ok := e.tables[tableName]
	if !ok {
		return Plan{}, fmt.Errorf("unknown table %q", tableName)
	}
	return t.Plan(normalize(t, req))
}

// Scan executes one table scan. The returned iterator yields rows projected
// onto req.Columns (all columns when the request names none); ORDER BY and
// LIMIT that the remote side did not absorb are applied here.
func (e *Engine) Scan(ctx context.Context, tableName string, req ScanRequest) (RowIterator, error) {
	t, ok := e.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", tableName)
	}
	req = normalize(t, req)
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	metrics.QueriesTotal.WithLabelValues(tableName).Inc()
	metrics.ActiveScans.Inc()
	it, err := t.Scan(ctx, e, req)
	if err != nil {
		metrics.ActiveScans.Dec()
		return nil, err
	}
	it = &accountingIterator{inner: it, table: tableName, start: start}

	if len(req.Sort) > 0 && !plan.SortPushed {
		it, err = sortLocally(ctx, it, req)
		if err != nil {
			return nil, err
		}
	} else if req.Limit > 0 {
		it = &limitIterator{inner: it, remaining: req.Limit}
	}
	return it, nil
}

// normalize fills an empty projection with the full column set.
func normalize(t table, req ScanRequest) ScanRequest {
	if len(req.Columns) == 0 {
		cols := t.Columns()
		names := make([]string, len(cols))
		for i, col := range cols {
			names[i] = col.Name
		}
		req.Columns = names
	}
	return req
}

// sortLocally drains the iterator and orders rows by the requested keys.
// Sort keys must name projected columns; the SQL layer widens the
// projection before scanning when ORDER BY references a hidden column.
func sortLocally(ctx context.Context, it RowIterator, req ScanRequest) (RowIterator, error) {
	defer it.Close()
	var rows []Row
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	idx := make([]int, 0, len(req.Sort))
	desc := make([]bool, 0, len(req.Sort))
	for _, key := range req.Sort {
		for i, name := range req.Columns {
			if name == key.Column {
				idx = append(idx, i)
				desc = append(desc, key.Desc)
				break
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, col := range idx {
			cmp, ok := Compare(rows[i][col], rows[j][col])
			if !ok || cmp == 0 {
				continue
			}
			if desc[k] {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return newSliceIterator(rows, it.Warnings()), nil
}

// accountingIterator feeds the scan metrics as rows flow.
type accountingIterator struct {
	inner RowIterator
	table string
	start time.Time
	rows  int
	done  bool
}

func (it *accountingIterator) Next(ctx context.Context) (Row, error) {
	row, err := it.inner.Next(ctx)
	if err == nil {
		it.rows++
		return row, nil
	}
	if !it.done {
		it.done = true
		metrics.ActiveScans.Dec()
		metrics.QueryDuration.WithLabelValues(it.table).Observe(time.Since(it.start).Seconds())
		metrics.QueryRows.WithLabelValues(it.table).Add(float64(it.rows))
	}
	return nil, err
}

func (it *accountingIterator) Warnings() []Warning { return it.inner.Warnings() }

func (it *accountingIterator) Close() error {
	if !it.done {
		it.done = true
		metrics.ActiveScans.Dec()
	}
	return it.inner.Close()
}

// limitIterator caps the row count without materializing.
type limitIterator struct {
	inner     RowIterator
	remaining int
}

func (it *limitIterator) Next(ctx context.Context) (Row, error) {
	if it.remaining <= 0 {
		return nil, io.EOF
	}
	row, err := it.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	it.remaining--
	return row, nil
}

func (it *limitIterator) Warnings() []Warning { return it.inner.Warnings() }

func (it *limitIterator) Close() error { return it.inner.Close() }
