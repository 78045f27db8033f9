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

	"github.com/roverdata/telesql/internal/metrics"
)

type topicsTable struct{}

func (t *topicsTable) Name() string { return "topics" }

// The recording_* and device scope columns exist to address the fetch;
// the response does not echo them, so they project as null.
var topicColumns = []Column{
	{Name: "topic", Type: TypeText, Sortable: true},
	{Name: "version", Type: TypeText, Sortable: true},
	{Name: "encoding", Type: TypeText},
	{Name: "schema_name", Type: TypeText},
	{Name: "schema_encoding", Type: TypeText},
	{Name: "device_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "device_name", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "recording_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "recording_key", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "start_time", Type: TypeTimestamptz, Pushdown: timeRangeOps},
	{Name: "end_time", Type: TypeTimestamptz, Pushdown: timeRangeOps},
}

var topicParams = map[string]string{
	"device_id":     "deviceId",
	"device_name":   "deviceName",
	"recording_id":  "recordingId",
	"recording_key": "recordingKey",
}

var topicSortFields = map[string]string{
	"topic":   "topic",
	"version": "version",
}

func (t *topicsTable) Columns() []Column { return topicColumns }

// Plan requires the scan to be scoped: either to a recording, or to a
// device with an explicit time window on both ends. An unscoped scan would
// enumerate the full org and is rejected before any network traffic.
func (t *topicsTable) Plan(req ScanRequest) (Plan, error) {
	params := url.Values{"includeSchemas": []string{"false"}}
	timeQuals, rest := splitTimeQuals(req.Quals, "start_time", "end_time")
	pushable, residual := splitQuals(topicColumns, rest)
	satisfied, back := pushEq(pushable, topicParams, params)
	residual = append(residual, back...)

	var window timeWindow
	for _, q := range timeQuals {
		window.absorb(q)
	}
	if window.lower != nil {
		params.Set("start", apiTimestamp(*window.lower))
	}
	if window.upper != nil {
		params.Set("end", apiTimestamp(*window.upper))
	}

	hasRecording := params.Get("recordingId") != "" || params.Get("recordingKey") != ""
	hasDevice := params.Get("deviceId") != "" || params.Get("deviceName") != ""
	if !hasRecording && !(hasDevice && window.lower != nil && window.upper != nil) {
		metrics.UnscopedRejected.Inc()
		return Plan{}, &UnscopedQueryError{
			Table: t.Name(),
			Hint:  "constrain recording_id or recording_key, or constrain a device together with both start_time and end_time",
		}
	}

	sortPushed := pushSort(topicColumns, topicSortFields, req.Sort, params)
	return Plan{Params: params, Satisfied: satisfied, Residual: residual, SortPushed: sortPushed}, nil
}

func (t *topicsTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	plan, err := t.Plan(req)
	if err != nil {
		return nil, err
	}
	topics, truncated, err := e.api.ListTopics(ctx, plan.Params)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, tp := range topics {
		rec := map[string]Value{
			"topic":           optStr(tp.Topic),
			"version":         optStr(tp.Version),
			"encoding":        optStr(tp.Encoding),
			"schema_name":     optStr(tp.SchemaName),
			"schema_encoding": optStr(tp.SchemaEncoding),
		}
		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		rows = append(rows, Project(rec, topicColumns, req.Columns))
	}

	var warnings []Warning
	if truncated {
		warnings = append(warnings, truncationWarning(t.Name()))
	}
	return newSliceIterator(rows, warnings), nil
}
