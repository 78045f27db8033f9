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
)

type devicesTable struct{}

func (t *devicesTable) Name() string { return "devices" }

var deviceColumns = []Column{
	{Name: "id", Type: TypeText, Sortable: true},
	{Name: "name", Type: TypeText, Pushdown: []Op{OpEq}, Sortable: true},
	{Name: "org_id", Type: TypeText},
	{Name: "project_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "created_at", Type: TypeTimestamptz},
	{Name: "updated_at", Type: TypeTimestamptz},
	{Name: "retain_recordings_seconds", Type: TypeBigint},
	{Name: "properties", Type: TypeJSONB},
}

var deviceParams = map[string]string{
	"project_id": "projectId",
}

var deviceSortFields = map[string]string{
	"id":   "id",
	"name": "name",
}

func (t *devicesTable) Columns() []Column { return deviceColumns }

func (t *devicesTable) Plan(req ScanRequest) (Plan, error) {
	params := url.Values{}
	pushable, residual := splitQuals(deviceColumns, req.Quals)

	// name maps onto the fuzzy query parameter, which can return superset
	// matches; the exact comparison stays residual.
	rest := pushable[:0]
	for _, q := range pushable {
		if q.Column == "name" && q.Op == OpEq {
			params.Set("query", q.Value.Text())
			residual = append(residual, q)
			continue
		}
		rest = append(rest, q)
	}
	satisfied, back := pushEq(rest, deviceParams, params)
	residual = append(residual, back...)
	sortPushed := pushSort(deviceColumns, deviceSortFields, req.Sort, params)
	return Plan{Params: params, Satisfied: satisfied, Residual: residual, SortPushed: sortPushed}, nil
}

func (t *devicesTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}
	devices, truncated, err := e.api.ListDevices(ctx, plan.Params)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, d := range devices {
		rec := map[string]Value{
			"id":                        optStr(d.ID),
			"name":                      optStr(d.Name),
			"org_id":                    optStr(d.OrgID),
			"project_id":                optStr(d.ProjectID),
			"created_at":                optTime(d.CreatedAt),
			"updated_at":                optTime(d.UpdatedAt),
			"retain_recordings_seconds": optInt64(d.RetainRecordingsSeconds),
			"properties":                optMap(d.Properties),
		}
		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		rows = append(rows, Project(rec, deviceColumns, req.Columns))
	}

	var warnings []Warning
	if truncated {
		warnings = append(warnings, truncationWarning(t.Name()))
	}
	return newSliceIterator(rows, warnings), nil
}
