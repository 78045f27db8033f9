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
	"time"

	"github.com/roverdata/telesql/internal/api"
)

type recordingsTable struct{}

func (t *recordingsTable) Name() string { return "recordings" }

var timeRangeOps = []Op{OpEq, OpLt, OpLe, OpGt, OpGe}

var recordingColumns = []Column{
	{Name: "id", Type: TypeText, Sortable: true},
	{Name: "project_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "path", Type: TypeText, Pushdown: []Op{OpEq}, Sortable: true},
	{Name: "size_bytes", Type: TypeBigint},
	{Name: "created_at", Type: TypeTimestamptz, Sortable: true},
	{Name: "imported_at", Type: TypeTimestamptz, Sortable: true},
	{Name: "start_time", Type: TypeTimestamptz, Pushdown: timeRangeOps, Sortable: true},
	{Name: "end_time", Type: TypeTimestamptz, Pushdown: timeRangeOps, Sortable: true},
	{Name: "duration", Type: TypeFloat8},
	{Name: "import_status", Type: TypeText, Pushdown: []Op{OpEq}, Sortable: true},
	{Name: "site_id", Type: TypeText},
	{Name: "site_name", Type: TypeText},
	{Name: "edge_site_id", Type: TypeText},
	{Name: "edge_site_name", Type: TypeText},
	{Name: "device_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "device_name", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "key", Type: TypeText},
	{Name: "metadata", Type: TypeJSONB},
}

var recordingParams = map[string]string{
	"project_id":    "projectId",
	"path":          "path",
	"import_status": "importStatus",
	"device_id":     "deviceId",
	"device_name":   "deviceName",
}

var recordingSortFields = map[string]string{
	"id":            "id",
	"path":          "path",
	"created_at":    "createdAt",
	"imported_at":   "importedAt",
	"start_time":    "start",
	"end_time":      "end",
	"import_status": "importStatus",
}

func (t *recordingsTable) Columns() []Column { return recordingColumns }

// Plan pushes equality filters and folds start/end range constraints into
// the API's overlap window. The window is a superset filter (the API
// matches any overlapping recording), so absorbed time constraints stay
// residual and are re-applied to each row.
func (t *recordingsTable) Plan(req ScanRequest) (Plan, error) {
	params := url.Values{}
	timeQuals, rest := splitTimeQuals(req.Quals, "start_time", "end_time")
	pushable, residual := splitQuals(recordingColumns, rest)
	satisfied, back := pushEq(pushable, recordingParams, params)
	residual = append(residual, back...)

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

	sortPushed := pushSort(recordingColumns, recordingSortFields, req.Sort, params)
	return Plan{Params: params, Satisfied: satisfied, Residual: residual, SortPushed: sortPushed}, nil
}

func (t *recordingsTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}
	recordings, truncated, err := e.api.ListRecordings(ctx, plan.Params)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range recordings {
		rec := map[string]Value{
			"id":            optStr(r.ID),
			"project_id":    optStr(r.ProjectID),
			"path":          optStr(r.Path),
			"size_bytes":    optInt64(r.Size),
			"created_at":    optTime(r.CreatedAt),
			"imported_at":   optTime(r.ImportedAt),
			"start_time":    optTime(r.Start),
			"end_time":      optTime(r.End),
			"duration":      durationSeconds(r.Start, r.End),
			"import_status": optStr(r.ImportStatus),
			"key":           optStr(r.Key),
			"metadata":      optMap(r.Metadata),
		}
		rec["site_id"], rec["site_name"] = refCells(r.Site)
		rec["edge_site_id"], rec["edge_site_name"] = refCells(r.EdgeSite)
		rec["device_id"], rec["device_name"] = refCells(r.Device)
		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		rows = append(rows, Project(rec, recordingColumns, req.Columns))
	}

	var warnings []Warning
	if truncated {
		warnings = append(warnings, truncationWarning(t.Name()))
	}
	return newSliceIterator(rows, warnings), nil
}

func durationSeconds(start, end *time.Time) Value {
	if start == nil || end == nil {
		return Null
	}
	return NumberValue(end.Sub(*start).Seconds())
}

func refCells(ref *api.NamedRef) (Value, Value) {
	if ref == nil {
		return Null, Null
	}
	return optStr(ref.ID), optStr(ref.Name)
}
