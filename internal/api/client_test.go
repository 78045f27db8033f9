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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/roverdata/telesql/internal/config"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(config.APIConfig{
		BaseURL:        srv.URL,
		Key:            "fox_sk_test",
		TimeoutSeconds: 5,
		MaxAttempts:    3,
		BackoffMillis:  1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMissingKeyFailsBeforeNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached server without credential")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.key = ""
	_, _, err := c.ListDevices(context.Background(), nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, err := testClient(t, srv).ListDevices(context.Background(), nil)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", authErr.Status)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"id":"dev_1","name":"rover-a"}]`)
	}))
	defer srv.Close()

	devices, truncated, err := testClient(t, srv).ListDevices(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if truncated {
		t.Error("unexpected truncation flag")
	}
	if len(devices) != 1 || devices[0].ID != "dev_1" {
		t.Fatalf("devices = %+v", devices)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := testClient(t, srv).ListDevices(context.Background(), nil)
	var netErr *TransientNetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want TransientNetworkError", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, _, err := testClient(t, srv).ListDevices(context.Background(), nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestPaginationCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		// Server holds more rows than the ceiling; always returns full pages.
		rows := make([]Device, limit)
		for i := range rows {
			rows[i] = Device{ID: fmt.Sprintf("dev_%d", offset+i)}
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	devices, truncated, err := testClient(t, srv).ListDevices(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != PageCeiling {
		t.Fatalf("len = %d, want %d", len(devices), PageCeiling)
	}
	if !truncated {
		t.Error("truncation flag not set at ceiling")
	}
}

func TestPaginationStopsOnShortPage(t *testing.T) {
	total := 742
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		n := total - offset
		if n > limit {
			n = limit
		}
		if n < 0 {
			n = 0
		}
		rows := make([]Device, n)
		for i := range rows {
			rows[i] = Device{ID: fmt.Sprintf("dev_%d", offset+i)}
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	devices, truncated, err := testClient(t, srv).ListDevices(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != total {
		t.Fatalf("len = %d, want %d", len(devices), total)
	}
	if truncated {
		t.Error("truncation flag set below ceiling")
	}
}

func TestCoverageCursorWalk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"items":[{"deviceId":"dev_1"}],"nextCursor":"c2"}`)
		case "c2":
			fmt.Fprint(w, `{"items":[{"deviceId":"dev_2"}],"nextCursor":""}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	ranges, err := testClient(t, srv).Coverage(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if len(ranges) != 2 || ranges[0].DeviceID != "dev_1" || ranges[1].DeviceID != "dev_2" {
		t.Fatalf("ranges = %+v", ranges)
	}
}

func TestStreamLinkAndDownload(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/data/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var req StreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.OutputFormat != "mcap" {
			t.Errorf("outputFormat = %q", req.OutputFormat)
		}
		fmt.Fprintf(w, `{"link":%q}`, srv.URL+"/export/abc")
	})
	mux.HandleFunc("/export/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("bearer header leaked to pre-signed link")
		}
		w.Write([]byte("payload"))
	})

	c := testClient(t, srv)
	link, err := c.StreamLink(context.Background(), StreamRequest{OutputFormat: "mcap", RecordingID: "rec_1"})
	if err != nil {
		t.Fatalf("StreamLink: %v", err)
	}
	body, err := c.Download(context.Background(), link)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "payload" {
		t.Errorf("body = %q", data)
	}
}
