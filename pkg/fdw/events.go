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
	"strings"
	"time"
)

type eventsTable struct{}

func (t *eventsTable) Name() string { return "events" }

// metadataColumnPrefix names virtual columns that read individual metadata
// keys: selecting metadata_zone projects metadata["zone"], and an equality
// constraint on it pushes down as a key:value search term.
const metadataColumnPrefix = "metadata_"

var eventColumns = []Column{
	{Name: "id", Type: TypeText, Sortable: true},
	{Name: "device_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "device_name", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "start_time", Type: TypeTimestamptz, Pushdown: timeRangeOps, Sortable: true},
	{Name: "end_time", Type: TypeTimestamptz, Pushdown: timeRangeOps, Sortable: true},
	{Name: "metadata", Type: TypeJSONB},
	{Name: "created_at", Type: TypeTimestamptz, Pushdown: []Op{OpGt, OpGe}, Sortable: true},
	{Name: "updated_at", Type: TypeTimestamptz, Pushdown: []Op{OpGt, OpGe}, Sortable: true},
	{Name: "project_id", Type: TypeText, Pushdown: []Op{OpEq}},
}

var eventParams = map[string]string{
	"device_id":   "deviceId",
	"device_name": "deviceName",
	"project_id":  "projectId",
}

var eventSortFields = map[string]string{
	"id":         "id",
	"start_time": "start",
	"end_time":   "end",
	"created_at": "createdAt",
	"updated_at": "updatedAt",
}

func (t *eventsTable) Columns() []Column { return eventColumns }

// dynamicColumn resolves the metadata_<key> virtual columns.
func (t *eventsTable) dynamicColumn(name string) (Column, bool) {
	if !strings.HasPrefix(name, metadataColumnPrefix) || len(name) == len(metadataColumnPrefix) {
		return Column{}, false
	}
	return Column{Name: name, Type: TypeText, Pushdown: []Op{OpEq}}, true
}

func (t *eventsTable) Plan(req ScanRequest) (Plan, error) {
	params := url.Values{}
	var satisfied, residual []Qual

	timeQuals, rest := splitTimeQuals(req.Quals, "start_time", "end_time")
	var window timeWindow
	for _, q := range timeQuals {
		window.absorb(q)
		residual = append(residual, q)
	}
	if window.hasAny() {
		window.complete(time.Now())
		params.Set("start", apiTimestamp(*window.lower))
		params.Set("end", apiTimestamp(*window.upper))
	}

	var queryTerms []string
	for _, q := range rest {
		// key:value terms feed the fuzzy query parameter, which can return
		// superset matches; the exact comparison stays residual.
		if key, ok := strings.CutPrefix(q.Column, metadataColumnPrefix); ok && key != "" && q.Op == OpEq {
			queryTerms = append(queryTerms, key+":"+q.Value.Text())
			residual = append(residual, q)
			continue
		}
		switch {
		case q.Op == OpEq && eventParams[q.Column] != "":
			params.Set(eventParams[q.Column], q.Value.Text())
			satisfied = append(satisfied, q)
		case q.Column == "created_at" && (q.Op == OpGt || q.Op == OpGe):
			if ts, ok := q.Value.AsTime(); ok {
				params.Set("createdAfter", apiTimestamp(ts))
			}
			residual = append(residual, q)
		case q.Column == "updated_at" && (q.Op == OpGt || q.Op == OpGe):
			if ts, ok := q.Value.AsTime(); ok {
				params.Set("updatedAfter", apiTimestamp(ts))
			}
			residual = append(residual, q)
		default:
			residual = append(residual, q)
		}
	}
	if len(queryTerms) > 0 {
		params.Set("query", strings.Join(queryTerms, " "))
	}

	sortPushed := pushSort(eventColumns, eventSortFields, req.Sort, params)
	return Plan{Params: params, Satisfied: satisfied, Residual: residual, SortPushed: sortPushed}, nil
}

func (t *eventsTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}
	events, truncated, err := e.api.ListEvents(ctx, plan.Params)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, ev := range events {
		rec := map[string]Value{
			"id":         optStr(ev.ID),
			"device_id":  optStr(ev.DeviceID),
			"start_time": optTime(ev.Start),
			"end_time":   optTime(ev.End),
			"metadata":   metadataCell(ev.Metadata),
			"created_at": optTime(ev.CreatedAt),
			"updated_at": optTime(ev.UpdatedAt),
			"project_id": optStr(ev.ProjectID),
		}
		if ev.Device != nil {
			rec["device_name"] = optStr(ev.Device.Name)
			if rec["device_id"].IsNull() {
				rec["device_id"] = optStr(ev.Device.ID)
			}
		}
		setMetaCell := func(name string) {
			if key, ok := strings.CutPrefix(name, metadataColumnPrefix); ok && key != "" {
				if v, present := ev.Metadata[key]; present {
					rec[name] = StringValue(v)
				}
			}
		}
		for _, name := range req.Columns {
			setMetaCell(name)
		}
		for _, q := range plan.Residual {
			setMetaCell(q.Column)
		}
		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		rows = append(rows, Project(rec, eventColumns, req.Columns))
	}

	var warnings []Warning
	if truncated {
		warnings = append(warnings, truncationWarning(t.Name()))
	}
	return newSliceIterator(rows, warnings), nil
}

func metadataCell(m map[string]string) Value {
	if m == nil {
		return Null
	}
	cells := make(map[string]Value, len(m))
	for k, v := range m {
		cells[k] = StringValue(v)
	}
	return MapValue(cells)
}
