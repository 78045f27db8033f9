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

import "time"

// Device is one registered telemetry source.
type Device struct {
	ID                      string                 `json:"id"`
	Name                    string                 `json:"name"`
	OrgID                   string                 `json:"orgId"`
	ProjectID               string                 `json:"projectId"`
	CreatedAt               *time.Time             `json:"createdAt"`
	UpdatedAt               *time.Time             `json:"updatedAt"`
	RetainRecordingsSeconds *int64                 `json:"retainRecordingsSeconds"`
	Properties              map[string]interface{} `json:"properties"`
}

// NamedRef is an id/name pair nested in recording responses.
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Recording is one imported recording session.
type Recording struct {
	ID           string                 `json:"id"`
	ProjectID    string                 `json:"projectId"`
	Path         string                 `json:"path"`
	Size         *int64                 `json:"size"`
	CreatedAt    *time.Time             `json:"createdAt"`
	ImportedAt   *time.Time             `json:"importedAt"`
	Start        *time.Time             `json:"start"`
	End          *time.Time             `json:"end"`
	ImportStatus string                 `json:"importStatus"`
	Site         *NamedRef              `json:"site"`
	EdgeSite     *NamedRef              `json:"edgeSite"`
	Device       *NamedRef              `json:"device"`
	Key          string                 `json:"key"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Attachment is one file attached to a recording.
type Attachment struct {
	ID          string     `json:"id"`
	RecordingID string     `json:"recordingId"`
	SiteID      string     `json:"siteId"`
	Name        string     `json:"name"`
	MediaType   string     `json:"mediaType"`
	LogTime     *time.Time `json:"logTime"`
	CreateTime  *time.Time `json:"createTime"`
	CRC         *int64     `json:"crc"`
	Size        *int64     `json:"size"`
	Fingerprint string     `json:"fingerprint"`
	LakePath    string     `json:"lakePath"`
}

// Event is one annotated time range on a device.
type Event struct {
	ID        string            `json:"id"`
	DeviceID  string            `json:"deviceId"`
	Device    *NamedRef         `json:"device"`
	Start     *time.Time        `json:"start"`
	End       *time.Time        `json:"end"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt *time.Time        `json:"createdAt"`
	UpdatedAt *time.Time        `json:"updatedAt"`
	ProjectID string            `json:"projectId"`
}

// Topic is one channel name/version observed in scoped recordings.
type Topic struct {
	Topic          string `json:"topic"`
	Version        string `json:"version"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding"`
}

// CoverageRange is one contiguous span of stored data for a device.
type CoverageRange struct {
	DeviceID     string     `json:"deviceId"`
	Device       *NamedRef  `json:"device"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
	Status       string     `json:"status"`
	ImportStatus string     `json:"importStatus"`
}

// StreamRequest describes one message export.
type StreamRequest struct {
	OutputFormat string   `json:"outputFormat"`
	DeviceID     string   `json:"deviceId,omitempty"`
	DeviceName   string   `json:"deviceName,omitempty"`
	RecordingID  string   `json:"recordingId,omitempty"`
	RecordingKey string   `json:"recordingKey,omitempty"`
	Start        string   `json:"start,omitempty"`
	End          string   `json:"end,omitempty"`
	Topics       []string `json:"topics,omitempty"`
}

type streamResponse struct {
	Link string `json:"link"`
}
