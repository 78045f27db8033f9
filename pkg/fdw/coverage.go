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
	"net/url"
	"strconv"
	"time"

	"github.com/roverdata/telesql/internal/metrics"
	"github.com/roverdata/telesql/pkg/interval"
)

type coverageTable struct{}

func (t *coverageTable) Name() string { return "coverage" }

func (t *coverageTable) Columns() []Column { return coverageColumns }

// tolerance is an input column: an equality constraint on it selects the
// merge tolerance in seconds, otherwise the configured default applies.
// Each output row echoes the tolerance that produced it.
var coverageColumns = []Column{
	{Name: "device_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "device_name", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "start_time", Type: TypeTimestamptz, Pushdown: timeRangeOps},
	{Name: "end_time", Type: TypeTimestamptz, Pushdown: timeRangeOps},
	{Name: "status", Type: TypeText},
	{Name: "import_status", Type: TypeText},
	{Name: "tolerance", Type: TypeInteger, Pushdown: []Op{OpEq}},
}

var coverageParams = map[string]string{
	"device_id":   "deviceId",
	"device_name": "deviceName",
}

// Plan requires at least one bound on the window; the missing side
// synthesizes to the epoch below or now above. Range constraints stay
// residual because merged spans extend past the requested window edges.
func (t *coverageTable) Plan(req ScanRequest) (Plan, error) {
	params := url.Values{"includeEdgeRecordings": []string{"true"}}
	timeQuals, rest := splitTimeQuals(req.Quals, "start_time", "end_time")

	var satisfied, residual []Qual
	var window timeWindow
	for _, q := range timeQuals {
		window.absorb(q)
		residual = append(residual, q)
	}
	if !window.hasAny() {
		metrics.UnscopedRejected.Inc()
		return Plan{}, &UnscopedQueryError{
			Table: t.Name(),
			Hint:  "constrain start_time or end_time to bound the coverage window",
		}
	}
	window.complete(time.Now())
	params.Set("start", apiTimestamp(*window.lower))
	params.Set("end", apiTimestamp(*window.upper))

	for _, q := range rest {
		switch {
		case q.Op == OpEq && coverageParams[q.Column] != "":
			params.Set(coverageParams[q.Column], q.Value.Text())
			satisfied = append(satisfied, q)
		case q.Column == "tolerance" && q.Op == OpEq && q.Value.Kind == KindNumber:
			params.Set("tolerance", strconv.Itoa(int(q.Value.Num)))
			satisfied = append(satisfied, q)
		default:
			residual = append(residual, q)
		}
	}
	return Plan{Params: params, Satisfied: satisfied, Residual: residual}, nil
}

func (t *coverageTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}
	tolerance := e.cfg.DefaultTolerance
	if v := plan.Params.Get("tolerance"); v != "" {
		tolerance, _ = strconv.Atoi(v)
	} else {
		plan.Params.Set("tolerance", strconv.Itoa(tolerance))
	}

	ranges, err := e.api.Coverage(ctx, plan.Params)
	if err != nil {
		return nil, err
	}

	spans := make([]interval.Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start == nil || r.End == nil {
			continue
		}
		span := interval.Range{
			DeviceID:     r.DeviceID,
			Start:        *r.Start,
			End:          *r.End,
			Status:       r.Status,
			ImportStatus: r.ImportStatus,
		}
		if r.Device != nil {
			if span.DeviceID == "" {
				span.DeviceID = r.Device.ID
			}
			span.DeviceName = r.Device.Name
		}
		spans = append(spans, span)
	}
	merged := interval.Merge(spans, time.Duration(tolerance)*time.Second)

	var rows []Row
	for _, span := range merged {
		rec := map[string]Value{
			"device_id":     optStr(span.DeviceID),
			"device_name":   optStr(span.DeviceName),
			"start_time":    TimeValue(span.Start),
			"end_time":      TimeValue(span.End),
			"status":        optStr(span.Status),
			"import_status": optStr(span.ImportStatus),
			"tolerance":     NumberValue(float64(tolerance)),
		}
		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		rows = append(rows, Project(rec, coverageColumns, req.Columns))
	}
	return newSliceIterator(rows, nil), nil
}
