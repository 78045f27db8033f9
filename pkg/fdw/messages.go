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
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/roverdata/telesql/internal/api"
	"github.com/roverdata/telesql/internal/metrics"
	"github.com/roverdata/telesql/pkg/mcap"
)

type messagesTable struct{}

func (t *messagesTable) Name() string { return "messages" }

var messageColumns = []Column{
	{Name: "device_id", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "device_name", Type: TypeText, Pushdown: []Op{OpEq}},
	{Name: "recording_id", Type: TypeText, Pushdown: []Op{OpEq, OpIn}},
	{Name: "recording_key", Type: TypeText, Pushdown: []Op{OpEq, OpIn}},
	{Name: "timestamp", Type: TypeTimestamptz, Pushdown: timeRangeOps},
	{Name: "topic", Type: TypeText, Pushdown: []Op{OpEq, OpIn}},
	{Name: "schema_name", Type: TypeText},
	{Name: "channel_id", Type: TypeInteger},
	{Name: "schema_id", Type: TypeInteger},
	{Name: "sequence_id", Type: TypeBigint},
	{Name: "encoding", Type: TypeText},
	{Name: "message", Type: TypeJSONB},
}

func (t *messagesTable) Columns() []Column { return messageColumns }

func (t *messagesTable) Plan(req ScanRequest) (Plan, error) {
	scopes, plan, err := t.translate(req)
	if err != nil {
		return Plan{}, err
	}
	// Mirror the export request in Params so EXPLAIN has something to show.
	for _, s := range scopes {
		if s.RecordingID != "" {
			plan.Params.Add("recordingId", s.RecordingID)
		}
		if s.RecordingKey != "" {
			plan.Params.Add("recordingKey", s.RecordingKey)
		}
	}
	return plan, nil
}

// translate turns the constraint set into one export request per recording
// scope (or a single device-window scope) plus the satisfied/residual
// split. A device scope needs at least one timestamp bound; the missing
// side synthesizes to the epoch or now. A scan with no recording and no
// bounded device window would export the whole org and is rejected before
// any network traffic.
func (t *messagesTable) translate(req ScanRequest) ([]api.StreamRequest, Plan, error) {
	base := api.StreamRequest{OutputFormat: "mcap"}
	params := url.Values{}
	var satisfied, residual []Qual
	var recordingIDs, recordingKeys, topics []string
	var window timeWindow

	for _, q := range req.Quals {
		switch q.Column {
		case "recording_id":
			switch q.Op {
			case OpEq:
				recordingIDs = append(recordingIDs, q.Value.Text())
				satisfied = append(satisfied, q)
			case OpIn:
				for _, v := range q.List {
					recordingIDs = append(recordingIDs, v.Text())
				}
				satisfied = append(satisfied, q)
			default:
				residual = append(residual, q)
			}
		case "recording_key":
			switch q.Op {
			case OpEq:
				recordingKeys = append(recordingKeys, q.Value.Text())
				satisfied = append(satisfied, q)
			case OpIn:
				for _, v := range q.List {
					recordingKeys = append(recordingKeys, v.Text())
				}
				satisfied = append(satisfied, q)
			default:
				residual = append(residual, q)
			}
		case "device_id":
			if q.Op == OpEq {
				base.DeviceID = q.Value.Text()
				params.Set("deviceId", base.DeviceID)
				satisfied = append(satisfied, q)
			} else {
				residual = append(residual, q)
			}
		case "device_name":
			if q.Op == OpEq {
				base.DeviceName = q.Value.Text()
				params.Set("deviceName", base.DeviceName)
				satisfied = append(satisfied, q)
			} else {
				residual = append(residual, q)
			}
		case "topic":
			switch q.Op {
			case OpEq:
				topics = append(topics, q.Value.Text())
				satisfied = append(satisfied, q)
			case OpIn:
				for _, v := range q.List {
					topics = append(topics, v.Text())
				}
				satisfied = append(satisfied, q)
			default:
				residual = append(residual, q)
			}
		case "timestamp":
			window.absorb(q)
			residual = append(residual, q)
		default:
			residual = append(residual, q)
		}
	}

	if window.lower != nil {
		base.Start = apiTimestamp(*window.lower)
		params.Set("start", base.Start)
	}
	if window.upper != nil {
		base.End = apiTimestamp(*window.upper)
		params.Set("end", base.End)
	}
	base.Topics = topics
	if len(topics) > 0 {
		params["topics"] = topics
	}

	var scopes []api.StreamRequest
	for _, id := range recordingIDs {
		s := base
		s.RecordingID = id
		scopes = append(scopes, s)
	}
	for _, key := range recordingKeys {
		s := base
		s.RecordingKey = key
		scopes = append(scopes, s)
	}
	if len(scopes) == 0 {
		hasDevice := base.DeviceID != "" || base.DeviceName != ""
		if !hasDevice || !window.hasAny() {
			metrics.UnscopedRejected.Inc()
			return nil, Plan{}, &UnscopedQueryError{
				Table: t.Name(),
				Hint:  "constrain recording_id or recording_key, or constrain a device together with a timestamp bound",
			}
		}
		window.complete(time.Now())
		base.Start = apiTimestamp(*window.lower)
		params.Set("start", base.Start)
		base.End = apiTimestamp(*window.upper)
		params.Set("end", base.End)
		scopes = append(scopes, base)
	}

	return scopes, Plan{Params: params, Satisfied: satisfied, Residual: residual}, nil
}

// Scan exports each scope and decodes it as it downloads. Scopes fetch
// concurrently under the worker cap; rows keep message order within a
// scope, and scopes emit in translation order.
func (t *messagesTable) Scan(ctx context.Context, e *Engine, req ScanRequest) (RowIterator, error) {
	scopes, plan, err := t.translate(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	streams := make([]*scopeStream, len(scopes))
	sem := make(chan struct{}, e.cfg.FetchWorkers)
	for i, scope := range scopes {
		streams[i] = &scopeStream{rows: make(chan Row, 256)}
		go func(scope api.StreamRequest, out *scopeStream) {
			defer close(out.rows)
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out.err = ctx.Err()
				return
			}
			defer func() { <-sem }()
			fetchScope(ctx, e, scope, plan, req, out)
		}(scope, streams[i])
	}

	return &messageIterator{streams: streams, cancel: cancel}, nil
}

// openContainer resolves one scope to a container byte stream. Scopes that
// cover a whole recording can read the mirrored object straight from the
// lake; everything else, and any lake miss, goes through a signed download
// link from the API.
func openContainer(ctx context.Context, e *Engine, scope api.StreamRequest) (io.ReadCloser, error) {
	wholeRecording := scope.RecordingID != "" && len(scope.Topics) == 0 && scope.Start == "" && scope.End == ""
	if e.lake != nil && wholeRecording {
		body, err := e.lake.Fetch(ctx, "recordings/"+scope.RecordingID+".mcap")
		if err == nil {
			return body, nil
		}
		e.logger.Warn("lake fetch missed, falling back to stream link",
			"recording_id", scope.RecordingID, "error", err)
	}
	link, err := e.api.StreamLink(ctx, scope)
	if err != nil {
		return nil, err
	}
	return e.api.Download(ctx, link)
}

// scopeStream carries one scope's rows; err and warnings are written by
// the producer before rows is closed.
type scopeStream struct {
	rows     chan Row
	err      error
	warnings []Warning
}

type messageIterator struct {
	streams  []*scopeStream
	pos      int
	cancel   context.CancelFunc
	warnings []Warning
}

func (it *messageIterator) Next(ctx context.Context) (Row, error) {
	for it.pos < len(it.streams) {
		cur := it.streams[it.pos]
		select {
		case row, ok := <-cur.rows:
			if ok {
				return row, nil
			}
			it.warnings = append(it.warnings, cur.warnings...)
			if cur.err != nil {
				return nil, cur.err
			}
			it.pos++
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, io.EOF
}

func (it *messageIterator) Warnings() []Warning { return it.warnings }

func (it *messageIterator) Close() error {
	it.cancel()
	for _, s := range it.streams {
		for range s.rows {
		}
	}
	return nil
}

func fetchScope(ctx context.Context, e *Engine, scope api.StreamRequest, plan Plan, req ScanRequest, out *scopeStream) {
	body, err := openContainer(ctx, e, scope)
	if err != nil {
		out.err = err
		return
	}
	defer body.Close()

	reader, err := mcap.NewReader(body)
	if err != nil {
		out.err = err
		return
	}
	metrics.ContainersDecoded.Inc()

	scopeCells := map[string]Value{
		"device_id":     optStr(scope.DeviceID),
		"device_name":   optStr(scope.DeviceName),
		"recording_id":  optStr(scope.RecordingID),
		"recording_key": optStr(scope.RecordingKey),
	}
	warned := map[string]bool{}
	emitted := 0

	for {
		msg, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			// A container that yielded nothing is a failure; one that broke
			// partway through emits what decoded and degrades to a warning.
			if emitted == 0 {
				out.err = err
				return
			}
			out.warnings = append(out.warnings, Warning{
				Code:    WarnPartialDecode,
				Message: fmt.Sprintf("container stream ended early after %d messages: %v", emitted, err),
			})
			return
		}

		ch, ok := reader.Channel(msg.ChannelID)
		if !ok {
			key := fmt.Sprintf("channel:%d", msg.ChannelID)
			if !warned[key] {
				warned[key] = true
				out.warnings = append(out.warnings, Warning{
					Code:    WarnPartialDecode,
					Message: fmt.Sprintf("message references undeclared channel %d; skipped", msg.ChannelID),
				})
			}
			continue
		}

		// A channel whose schema was never declared yields no rows at all;
		// the scan degrades to a warning while other channels keep decoding.
		schema, haveSchema := reader.SchemaFor(ch)
		if ch.SchemaID != 0 && !haveSchema {
			key := fmt.Sprintf("schema:%d", ch.SchemaID)
			if !warned[key] {
				warned[key] = true
				resolveErr := &mcap.UnresolvedSchemaError{ChannelID: ch.ID, SchemaID: ch.SchemaID, Topic: ch.Topic}
				out.warnings = append(out.warnings, Warning{
					Code:    WarnUnresolvedSchema,
					Message: resolveErr.Error(),
				})
			}
			continue
		}

		rec := make(map[string]Value, len(messageColumns))
		for k, v := range scopeCells {
			rec[k] = v
		}
		rec["timestamp"] = TimeValue(time.Unix(0, int64(msg.LogTime)))
		rec["topic"] = optStr(ch.Topic)
		rec["channel_id"] = NumberValue(float64(ch.ID))
		rec["schema_id"] = NumberValue(float64(ch.SchemaID))
		rec["sequence_id"] = NumberValue(float64(msg.Sequence))
		rec["encoding"] = optStr(ch.MessageEncoding)
		rec["message"] = Null
		rec["schema_name"] = optStr(schema.Name)

		raw, supported, decodeErr := e.decoder.Decode(schema, ch, msg.Data)
		switch {
		case decodeErr != nil:
			key := "decode:" + ch.Topic
			if !warned[key] {
				warned[key] = true
				out.warnings = append(out.warnings, Warning{
					Code:    WarnPartialDecode,
					Message: fmt.Sprintf("topic %q: %v", ch.Topic, decodeErr),
				})
			}
		case !supported:
			if !warned["encoding:"+ch.MessageEncoding] {
				warned["encoding:"+ch.MessageEncoding] = true
				out.warnings = append(out.warnings, Warning{
					Code:    WarnUnsupportedEncoding,
					Message: fmt.Sprintf("topic %q: encoding %q is not decodable; message projects as null", ch.Topic, ch.MessageEncoding),
				})
			}
		default:
			if doc, parseErr := ParseJSON(raw); parseErr == nil {
				rec["message"] = doc
			}
		}

		if !FilterResidual(rec, plan.Residual) {
			continue
		}
		emitted++
		select {
		case out.rows <- Project(rec, messageColumns, req.Columns):
		case <-ctx.Done():
			out.err = ctx.Err()
			return
		}
	}
}
