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

package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgproto3/v2"

	"github.com/roverdata/telesql/internal/api"
	"github.com/roverdata/telesql/internal/config"
	"github.com/roverdata/telesql/pkg/fdw"
)

func newTestServer(t *testing.T, apiSrv *httptest.Server) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := api.NewClient(config.APIConfig{
		BaseURL:        apiSrv.URL,
		Key:            "fox_sk_test",
		TimeoutSeconds: 5,
		MaxAttempts:    1,
		BackoffMillis:  1,
	}, logger)
	engine := fdw.NewEngine(client, nil, config.QueryConfig{
		FetchWorkers:     2,
		DefaultTolerance: 30,
		TimeoutSeconds:   30,
	}, logger)
	cfg := config.Config{}
	cfg.Server.ServerVersion = "15.0"
	cfg.Server.ClientEncoding = "UTF8"
	cfg.Query.TimeoutSeconds = 30
	return New(cfg, engine, logger)
}

func newPipeBackend(t *testing.T) (*pgproto3.Backend, *pgproto3.Frontend, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(serverConn), serverConn)
	frontend := pgproto3.NewFrontend(pgproto3.NewChunkReader(clientConn), clientConn)
	cleanup := func() {
		_ = serverConn.Close()
		_ = clientConn.Close()
	}
	return backend, frontend, cleanup
}

type result struct {
	fields  []string
	rows    [][][]byte
	notices []string
	errMsg  string
	errCode string
	tag     string
}

// runQuery drives one statement through the handler the way the connection
// loop does, including the error-to-wire translation.
func runQuery(t *testing.T, srv *Server, query string) result {
	t.Helper()
	backend, frontend, cleanup := newPipeBackend(t)
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		err := srv.handleQuery(context.Background(), backend, query)
		if err != nil {
			_ = backend.Send(&pgproto3.ErrorResponse{
				Severity: "ERROR",
				Code:     sqlState(err),
				Message:  err.Error(),
			})
		}
		errCh <- err
	}()

	var res result
collect:
	for {
		msg, err := frontend.Receive()
		if err != nil {
			break
		}
		switch m := msg.(type) {
		case *pgproto3.RowDescription:
			for _, f := range m.Fields {
				res.fields = append(res.fields, string(f.Name))
			}
		case *pgproto3.DataRow:
			copied := make([][]byte, len(m.Values))
			for i, v := range m.Values {
				if v != nil {
					copied[i] = append([]byte(nil), v...)
				}
			}
			res.rows = append(res.rows, copied)
		case *pgproto3.NoticeResponse:
			res.notices = append(res.notices, m.Message)
		case *pgproto3.CommandComplete:
			res.tag = string(m.CommandTag)
			break collect
		case *pgproto3.ErrorResponse:
			res.errMsg = m.Message
			res.errCode = m.Code
			break collect
		}
	}

	if err := <-errCh; err != nil && res.errMsg == "" {
		res.errMsg = err.Error()
	}
	return res
}

func TestShowTables(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SHOW TABLES")
	if len(res.rows) != 7 {
		t.Fatalf("rows = %d, want 7 tables", len(res.rows))
	}
	if string(res.rows[0][0]) != "devices" {
		t.Errorf("first table = %s", res.rows[0][0])
	}
}

func TestDescribe(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "DESCRIBE messages")
	if res.errMsg != "" {
		t.Fatalf("error: %s", res.errMsg)
	}
	var sawMessage bool
	for _, row := range res.rows {
		if string(row[0]) == "message" && string(row[1]) == "jsonb" {
			sawMessage = true
		}
	}
	if !sawMessage {
		t.Errorf("message jsonb column missing: %+v", res.rows)
	}
}

func TestSelectDevices(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"dev_1","name":"rover-a","createdAt":"2026-02-01T10:00:00Z"},
			{"id":"dev_2","name":"rover-b"}
		]`)
	}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SELECT id, name, created_at FROM devices ORDER BY id")
	if res.errMsg != "" {
		t.Fatalf("error: %s", res.errMsg)
	}
	if res.tag != "SELECT 2" {
		t.Errorf("tag = %q", res.tag)
	}
	if len(res.rows) != 2 || string(res.rows[0][0]) != "dev_1" {
		t.Fatalf("rows = %+v", res.rows)
	}
	if string(res.rows[0][2]) != "2026-02-01 10:00:00+00" {
		t.Errorf("created_at = %q", res.rows[0][2])
	}
	if res.rows[1][2] != nil {
		t.Errorf("absent timestamp should be NULL, got %q", res.rows[1][2])
	}
}

func TestHiddenSortColumn(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"dev_1","name":"zeta"},
			{"id":"dev_2","name":"alpha"}
		]`)
	}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SELECT id FROM devices ORDER BY name, id")
	if res.errMsg != "" {
		t.Fatalf("error: %s", res.errMsg)
	}
	if len(res.fields) != 1 || res.fields[0] != "id" {
		t.Fatalf("fields = %v, sort column must stay hidden", res.fields)
	}
	if string(res.rows[0][0]) != "dev_2" {
		t.Errorf("order = %+v", res.rows)
	}
}

func TestUnknownTableAndColumn(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SELECT * FROM nope")
	if !strings.Contains(res.errMsg, "unknown table") {
		t.Errorf("err = %q", res.errMsg)
	}
	res = runQuery(t, srv, "SELECT wat FROM devices")
	if !strings.Contains(res.errMsg, "unknown column") {
		t.Errorf("err = %q", res.errMsg)
	}
}

func TestUnscopedSqlState(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unscoped query must not reach the API")
	}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SELECT * FROM messages")
	if res.errCode != "57014" {
		t.Errorf("code = %q, message = %q", res.errCode, res.errMsg)
	}
}

func TestExplain(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("explain must not fetch")
	}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "EXPLAIN SELECT * FROM recordings WHERE device_id = 'dev_1' AND size_bytes > 10")
	if res.errMsg != "" {
		t.Fatalf("error: %s", res.errMsg)
	}
	plan := make([]string, 0, len(res.rows))
	for _, row := range res.rows {
		plan = append(plan, string(row[0]))
	}
	joined := strings.Join(plan, "\n")
	if !strings.Contains(joined, "Remote Scan on recordings") {
		t.Errorf("plan = %s", joined)
	}
	if !strings.Contains(joined, "Remote Filter: device_id = dev_1") {
		t.Errorf("satisfied filter missing: %s", joined)
	}
	if !strings.Contains(joined, "Local Filter: size_bytes > 10") {
		t.Errorf("residual filter missing: %s", joined)
	}
}

func TestTruncationNotice(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := r.URL.Query().Get("limit")
		n := 0
		fmt.Sscanf(limit, "%d", &n)
		w.Write([]byte("["))
		for i := 0; i < n; i++ {
			if i > 0 {
				w.Write([]byte(","))
			}
			fmt.Fprintf(w, `{"id":"dev_%s_%d"}`, r.URL.Query().Get("offset"), i)
		}
		w.Write([]byte("]"))
	}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SELECT id FROM devices")
	if res.errMsg != "" {
		t.Fatalf("error: %s", res.errMsg)
	}
	if len(res.rows) != api.PageCeiling {
		t.Fatalf("rows = %d", len(res.rows))
	}
	var sawTruncation bool
	for _, notice := range res.notices {
		if strings.Contains(notice, "possibly_truncated") {
			sawTruncation = true
		}
	}
	if !sawTruncation {
		t.Errorf("notices = %v, want truncation warning", res.notices)
	}
}

func TestSessionCommands(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer apiSrv.Close()
	srv := newTestServer(t, apiSrv)

	res := runQuery(t, srv, "SET client_min_messages TO warning")
	if res.tag != "SET" {
		t.Errorf("tag = %q", res.tag)
	}
	res = runQuery(t, srv, "SELECT 1")
	if len(res.rows) != 1 || string(res.rows[0][0]) != "1" {
		t.Errorf("rows = %+v", res.rows)
	}
}
