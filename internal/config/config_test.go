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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.roverdata.io/v1" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.API.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.API.MaxAttempts)
	}
	if cfg.Server.Listen != ":5432" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Query.DefaultTolerance != 30 {
		t.Errorf("tolerance = %d, want 30", cfg.Query.DefaultTolerance)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telesql.yaml")
	data := `
api:
  base_url: https://telemetry.example.com/v2
  timeout_seconds: 15
lake:
  bucket: recordings
  path_style: true
query:
  fetch_workers: 8
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://telemetry.example.com/v2" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutSeconds != 15 {
		t.Errorf("timeout = %d", cfg.API.TimeoutSeconds)
	}
	if !cfg.Lake.PathStyle {
		t.Error("path_style not set")
	}
	if cfg.Query.FetchWorkers != 8 {
		t.Errorf("workers = %d", cfg.Query.FetchWorkers)
	}
	// Defaults still fill the unset fields.
	if cfg.Server.MetricsListen != ":9090" {
		t.Errorf("metrics listen = %q", cfg.Server.MetricsListen)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELESQL_API_KEY", "fox_sk_test")
	t.Setenv("TELESQL_API_MAX_ATTEMPTS", "5")
	t.Setenv("TELESQL_LAKE_PATH_STYLE", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Key != "fox_sk_test" {
		t.Errorf("key = %q", cfg.API.Key)
	}
	if cfg.API.MaxAttempts != 5 {
		t.Errorf("attempts = %d", cfg.API.MaxAttempts)
	}
	if !cfg.Lake.PathStyle {
		t.Error("path style override ignored")
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	t.Setenv("TELESQL_API_BASE_URL", "ftp://nope")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-http base url")
	}
}
