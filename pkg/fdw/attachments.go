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

type attachmentsTable struct{}

func (t *attachmentsTable) Name() string { return "recording_attachments" }

// device_id, device_name, and project_id exist only to scope the remote
// fetch; the response does not echo them, so they project as null.
var attachmentColumns = []Column{
	{Name: "id", Type: TypeText, Sortable: true},
	{Name: "recording_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "site_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "name", Type: TypeText, Sortable: true},
	{Name: "media_type", Type: TypeText},
	{Name: "log_time", Type: TypeTimestamptz, Sortable: true},
	{Name: "create_time", Type: TypeTimestamptz},
	{Name: "crc", Type: TypeBigint},
	{Name: "size_bytes", Type: TypeBigint},
	{Name: "fingerprint", Type: TypeText},
	{Name: "lake_path", Type: TypeText},
	{Name: "device_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "device_name", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "project_id", Type: TypeText, Pushdown: []Op{OpEq}},
}

var attachmentParams = map[string]string{
	"recording_id": "recordingId",
	"site_id":      "siteId",
	"device_id":    "deviceId",
	"device_name":  "deviceName",
	"project_id":   "projectId",
}

var attachmentSortFields = map[string]string{
	"id":       "id",
	"name":     "name",
	"log_time": "logTime",
}

func (t *attachmentsTable) Columns() []Column { return attachmentColumns }

func (t *attachmentsTable) Plan(req ScanRequest) (Plan, error) {
	params := url.Values{}
	pushable, residual := splitQuals(attachmentColumns, req.Quals)
	satisfied, back := pushEq(pushable, attachmentParams, params)
	residual = append(residual, back...)
	sortPushed := pushSort(attachmentColumns, attachmentSortFields, req.Sort, params)
	return Plan{Params: params, Satisfied: satisfied, Residual: residual, SortPushed: sortPushed}, nil
}

func (t *attachmentsTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}
	attachments, truncated, err := e.api.ListAttachments(ctx, plan.Params)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, a := range attachments {
		rec := map[string]Value{
			"id":           optStr(a.ID),
			"recording_id": optStr(a.RecordingID),
			"site_id":      optStr(a.SiteID),
			"name":         optStr(a.Name),
			"media_type":   optStr(a.MediaType),
			"log_time":     optTime(a.LogTime),
			"create_time":  optTime(a.CreateTime),
			"crc":          optInt64(a.CRC),
			"size_bytes":   optInt64(a.Size),
			"fingerprint":  optStr(a.Fingerprint),
			"lake_path":    optStr(a.LakePath),
		}
		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		rows = append(rows, Project(rec, attachmentColumns, req.Columns))
	}

	var warnings []Warning
	if truncated {
		warnings = append(warnings, truncationWarning(t.Name()))
	}
	return newSliceIterator(rows, warnings), nil
}
