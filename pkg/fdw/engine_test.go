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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roverdata/telesql/internal/api"
	"github.com/roverdata/telesql/internal/config"
	"github.com/roverdata/telesql/pkg/mcap"
)

func newTestEngine(t *testing.T, srv *httptest.Server) *Engine {
	t.Helper()
	client := api.NewClient(config.APIConfig{
		BaseURL:        srv.URL,
		Key:            "fox_sk_test",
		TimeoutSeconds: 5,
		MaxAttempts:    1,
		BackoffMillis:  1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewEngine(client, nil, config.QueryConfig{
		FetchWorkers:     2,
		DefaultTolerance: 30,
		TimeoutSeconds:   30,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func drain(t *testing.T, it RowIterator) []Row {
	t.Helper()
	var rows []Row
	for {
		row, err := it.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestDevicesScanResidualFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"id":"dev_1","name":"rover-a","projectId":"prj_1"},
			{"id":"dev_2","name":"rover-b","projectId":"prj_1"}
		]`)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "devices", ScanRequest{
		Columns: []string{"id", "name", "properties"},
		Quals:   []Qual{eq("id", "dev_2")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 after residual filter", len(rows))
	}
	if rows[0][0].Str != "dev_2" || rows[0][1].Str != "rover-b" {
		t.Errorf("row = %+v", rows[0])
	}
	if !rows[0][2].IsNull() {
		t.Error("absent properties should project as null")
	}
}

func TestScanUnknownTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	if _, err := newTestEngine(t, srv).Scan(context.Background(), "nope", ScanRequest{}); err == nil {
		t.Fatal("expected unknown table error")
	}
}

func TestCoverageScanMerges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tolerance"); got != "30" {
			t.Errorf("tolerance = %q", got)
		}
		fmt.Fprint(w, `{"items":[
			{"deviceId":"dev_1","start":"2026-03-01T12:00:00Z","end":"2026-03-01T12:01:00Z","status":"full"},
			{"deviceId":"dev_1","start":"2026-03-01T12:01:20Z","end":"2026-03-01T12:02:00Z","status":"full"}
		],"nextCursor":""}`)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "coverage", ScanRequest{
		Columns: []string{"device_id", "start_time", "end_time", "tolerance"},
		Quals:   []Qual{tsQual("start_time", OpGe, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want merged single span", len(rows))
	}
	if rows[0][3].Num != 30 {
		t.Errorf("tolerance cell = %v", rows[0][3])
	}
}

func TestLocalSortFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sortBy") != "" {
			t.Error("multi-key sort must not push down")
		}
		fmt.Fprint(w, `[
			{"id":"dev_2","name":"beta"},
			{"id":"dev_1","name":"alpha"},
			{"id":"dev_3","name":"alpha"}
		]`)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "devices", ScanRequest{
		Columns: []string{"id", "name"},
		Sort:    []SortKey{{Column: "name"}, {Column: "id", Desc: true}},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	var got []string
	for _, row := range rows {
		got = append(got, row[0].Str)
	}
	want := []string{"dev_3", "dev_1", "dev_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func messagesFixture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := mcap.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.WriteChannel(mcap.Channel{ID: 1, Topic: "/diag", MessageEncoding: "json"})
	w.WriteChannel(mcap.Channel{ID: 2, Topic: "/scan", MessageEncoding: "cdr"})
	w.WriteMessage(mcap.Message{ChannelID: 1, Sequence: 1, LogTime: 1_000_000_000, Data: []byte(`{"level":1}`)})
	w.WriteMessage(mcap.Message{ChannelID: 2, Sequence: 2, LogTime: 2_000_000_000, Data: []byte{0x00}})
	w.WriteMessage(mcap.Message{ChannelID: 1, Sequence: 3, LogTime: 3_000_000_000, Data: []byte(`{"level":2}`)})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestMessagesScan(t *testing.T) {
	container := messagesFixture(t)
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/data/stream", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"link":%q}`, srv.URL+"/export/x")
	})
	mux.HandleFunc("/export/x", func(w http.ResponseWriter, r *http.Request) {
		w.Write(container)
	})

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "messages", ScanRequest{
		Columns: []string{"recording_id", "topic", "sequence_id", "encoding", "message"},
		Quals:   []Qual{eq("recording_id", "rec_1")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][1].Str != "/diag" || rows[0][4].IsNull() {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1][1].Str != "/scan" || !rows[1][4].IsNull() {
		t.Errorf("undecodable payload should project null message: %+v", rows[1])
	}
	if rows[2][2].Num != 3 {
		t.Errorf("sequence = %v", rows[2][2])
	}

	var sawUnsupported bool
	for _, warning := range it.Warnings() {
		if warning.Code == WarnUnsupportedEncoding {
			sawUnsupported = true
		}
	}
	if !sawUnsupported {
		t.Errorf("warnings = %+v, want unsupported encoding notice", it.Warnings())
	}
}

func TestMessagesScanMultiRecordingOrder(t *testing.T) {
	container := messagesFixture(t)
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/data/stream", func(w http.ResponseWriter, r *http.Request) {
		var req api.StreamRequest
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"link":%q}`, srv.URL+"/export/"+req.RecordingID)
	})
	mux.HandleFunc("/export/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(container)
	})

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "messages", ScanRequest{
		Columns: []string{"recording_id", "topic"},
		Quals: []Qual{{
			Column: "recording_id",
			Op:     OpIn,
			List:   []Value{StringValue("rec_1"), StringValue("rec_2")},
		}},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	// Scopes emit in translation order even though they fetch concurrently.
	for i, row := range rows {
		want := "rec_1"
		if i >= 3 {
			want = "rec_2"
		}
		if row[0].Str != want {
			t.Fatalf("row %d recording = %q, want %q", i, row[0].Str, want)
		}
	}
}

type memLake map[string][]byte

func (m memLake) Fetch(ctx context.Context, lakePath string) (io.ReadCloser, error) {
	data, ok := m[lakePath]
	if !ok {
		return nil, fmt.Errorf("no lake object %s", lakePath)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestMessagesScanFromLake(t *testing.T) {
	container := messagesFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("whole-recording scope must read from the lake, got %s", r.URL.Path)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := api.NewClient(config.APIConfig{
		BaseURL:        srv.URL,
		Key:            "fox_sk_test",
		TimeoutSeconds: 5,
		MaxAttempts:    1,
		BackoffMillis:  1,
	}, logger)
	e := NewEngine(client, memLake{"recordings/rec_1.mcap": container}, config.QueryConfig{
		FetchWorkers:     2,
		DefaultTolerance: 30,
		TimeoutSeconds:   30,
	}, logger)

	it, err := e.Scan(context.Background(), "messages", ScanRequest{
		Columns: []string{"recording_id", "topic"},
		Quals:   []Qual{eq("recording_id", "rec_1")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
}

func TestDevicesScanFuzzyNameFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "rover-a" {
			t.Errorf("query = %q", got)
		}
		// The search endpoint matches substrings, so it returns a superset.
		fmt.Fprint(w, `[
			{"id":"dev_1","name":"rover-a"},
			{"id":"dev_2","name":"rover-ab"}
		]`)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "devices", ScanRequest{
		Columns: []string{"id", "name"},
		Quals:   []Qual{eq("name", "rover-a")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 1 || rows[0][0].Str != "dev_1" {
		t.Fatalf("rows = %+v, want only the exact name match", rows)
	}
}

func TestEventsScanMetadataTermFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "zone:dock" {
			t.Errorf("query = %q", got)
		}
		fmt.Fprint(w, `[
			{"id":"evt_1","metadata":{"zone":"dock"}},
			{"id":"evt_2","metadata":{"zone":"dockyard"}}
		]`)
	}))
	defer srv.Close()

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "events", ScanRequest{
		Columns: []string{"id"},
		Quals:   []Qual{eq("metadata_zone", "dock")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) != 1 || rows[0][0].Str != "evt_1" {
		t.Fatalf("rows = %+v, want only the exact metadata match", rows)
	}
}

func TestMessagesUnresolvedSchemaChannel(t *testing.T) {
	var buf bytes.Buffer
	w, err := mcap.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.WriteSchema(mcap.Schema{ID: 1, Name: "Diag", Encoding: "jsonschema"})
	w.WriteChannel(mcap.Channel{ID: 1, SchemaID: 2, Topic: "/bad", MessageEncoding: "json"})
	w.WriteChannel(mcap.Channel{ID: 2, SchemaID: 1, Topic: "/good", MessageEncoding: "json"})
	w.WriteMessage(mcap.Message{ChannelID: 1, Sequence: 1, LogTime: 1_000_000_000, Data: []byte(`{"n":1}`)})
	w.WriteMessage(mcap.Message{ChannelID: 2, Sequence: 2, LogTime: 2_000_000_000, Data: []byte(`{"n":2}`)})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/data/stream", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"link":%q}`, srv.URL+"/export/x")
	})
	mux.HandleFunc("/export/x", func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	})

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "messages", ScanRequest{
		Columns: []string{"topic", "message"},
		Quals:   []Qual{eq("recording_id", "rec_1")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	// The channel with an undeclared schema yields nothing; the healthy
	// channel still decodes.
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0][0].Str != "/good" || rows[0][1].IsNull() {
		t.Errorf("row = %+v", rows[0])
	}
	var sawUnresolved bool
	for _, warning := range it.Warnings() {
		if warning.Code == WarnUnresolvedSchema {
			sawUnresolved = true
		}
	}
	if !sawUnresolved {
		t.Errorf("warnings = %+v, want unresolved schema notice", it.Warnings())
	}
}

func TestMessagesPartialContainer(t *testing.T) {
	container := messagesFixture(t)
	cut := container[:len(container)-15]
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()
	mux.HandleFunc("/data/stream", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"link":%q}`, srv.URL+"/export/x")
	})
	mux.HandleFunc("/export/x", func(w http.ResponseWriter, r *http.Request) {
		w.Write(cut)
	})

	e := newTestEngine(t, srv)
	it, err := e.Scan(context.Background(), "messages", ScanRequest{
		Columns: []string{"topic"},
		Quals:   []Qual{eq("recording_id", "rec_1")},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer it.Close()
	rows := drain(t, it)
	if len(rows) == 0 {
		t.Fatal("partial container should still emit decoded prefix")
	}
	var sawPartial bool
	for _, warning := range it.Warnings() {
		if warning.Code == WarnPartialDecode {
			sawPartial = true
		}
	}
	if !sawPartial {
		t.Errorf("warnings = %+v, want partial decode notice", it.Warnings())
	}
}
