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
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config defines the server configuration schema.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Lake   LakeConfig   `yaml:"lake"`
	Server ServerConfig `yaml:"server"`
	Query  QueryConfig  `yaml:"query"`
	Log    LogConfig    `yaml:"log"`
}

type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Key            string `yaml:"key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	BackoffMillis  int    `yaml:"backoff_ms"`
}

type LakeConfig struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	PathStyle bool   `yaml:"path_style"`
}

type ServerConfig struct {
	Listen         string `yaml:"listen"`
	MetricsListen  string `yaml:"metrics_listen"`
	MaxConnections int    `yaml:"max_connections"`
	ServerVersion  string `yaml:"server_version"`
	ClientEncoding string `yaml:"client_encoding"`
}

type QueryConfig struct {
	FetchWorkers     int `yaml:"fetch_workers"`
	DefaultTolerance int `yaml:"default_tolerance_seconds"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path (optional), applies defaults and
// TELESQL_* environment overrides, and validates. A missing API key is not
// an error here: credential absence surfaces on first use, not at startup.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if !strings.HasPrefix(cfg.API.BaseURL, "http") {
		return Config{}, fmt.Errorf("api.base_url must be an http(s) URL")
	}
	if cfg.Query.FetchWorkers < 1 {
		return Config{}, fmt.Errorf("query.fetch_workers must be positive")
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.roverdata.io/v1"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 60
	}
	if cfg.API.MaxAttempts == 0 {
		cfg.API.MaxAttempts = 3
	}
	if cfg.API.BackoffMillis == 0 {
		cfg.API.BackoffMillis = 250
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":5432"
	}
	if cfg.Server.MetricsListen == "" {
		cfg.Server.MetricsListen = ":9090"
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 100
	}
	if cfg.Server.ServerVersion == "" {
		cfg.Server.ServerVersion = "15.0"
	}
	if cfg.Server.ClientEncoding == "" {
		cfg.Server.ClientEncoding = "UTF8"
	}
	if cfg.Query.FetchWorkers == 0 {
		cfg.Query.FetchWorkers = 4
	}
	if cfg.Query.DefaultTolerance == 0 {
		cfg.Query.DefaultTolerance = 30
	}
	if cfg.Query.TimeoutSeconds == 0 {
		cfg.Query.TimeoutSeconds = 300
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.API.BaseURL, "TELESQL_API_BASE_URL")
	setString(&cfg.API.Key, "TELESQL_API_KEY")
	setInt(&cfg.API.TimeoutSeconds, "TELESQL_API_TIMEOUT_SECONDS")
	setInt(&cfg.API.MaxAttempts, "TELESQL_API_MAX_ATTEMPTS")
	setInt(&cfg.API.BackoffMillis, "TELESQL_API_BACKOFF_MS")

	setString(&cfg.Lake.Bucket, "TELESQL_LAKE_BUCKET")
	setString(&cfg.Lake.Prefix, "TELESQL_LAKE_PREFIX")
	setString(&cfg.Lake.Endpoint, "TELESQL_LAKE_ENDPOINT")
	setString(&cfg.Lake.Region, "TELESQL_LAKE_REGION")
	setBool(&cfg.Lake.PathStyle, "TELESQL_LAKE_PATH_STYLE")

	setString(&cfg.Server.Listen, "TELESQL_SERVER_LISTEN")
	setString(&cfg.Server.MetricsListen, "TELESQL_METRICS_LISTEN")
	setInt(&cfg.Server.MaxConnections, "TELESQL_SERVER_MAX_CONNECTIONS")
	setString(&cfg.Server.ServerVersion, "TELESQL_SERVER_VERSION")
	setString(&cfg.Server.ClientEncoding, "TELESQL_CLIENT_ENCODING")

	setInt(&cfg.Query.FetchWorkers, "TELESQL_QUERY_FETCH_WORKERS")
	setInt(&cfg.Query.DefaultTolerance, "TELESQL_QUERY_DEFAULT_TOLERANCE_SECONDS")
	setInt(&cfg.Query.TimeoutSeconds, "TELESQL_QUERY_TIMEOUT_SECONDS")

	setString(&cfg.Log.Level, "TELESQL_LOG_LEVEL")
	setString(&cfg.Log.Format, "TELESQL_LOG_FORMAT")
}

func setString(target *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*target = val
	}
}

func setInt(target *int, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parsed, err := strconv.Atoi(val)
		if err == nil {
			*target = parsed
		}
	}
}

func setBool(target *bool, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parsed, err := strconv.ParseBool(val)
		if err == nil {
			*target = parsed
		}
	}
}
