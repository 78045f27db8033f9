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

package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "telesql"

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total table scans by table.",
		},
		[]string{"table"},
	)
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Table scan duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"table"},
	)
	QueryRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_rows_total",
			Help:      "Total rows returned by table.",
		},
		[]string{"table"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Remote API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Remote API errors by endpoint.",
		},
		[]string{"endpoint"},
	)
	APIRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Remote API retries by endpoint.",
		},
		[]string{"endpoint"},
	)
	APIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Remote API request duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	APIBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_bytes_downloaded_total",
			Help:      "Total bytes downloaded from the remote API.",
		},
	)
	Truncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncations_total",
			Help:      "Scans that hit the remote page ceiling without a cursor.",
		},
		[]string{"table"},
	)
	ContainersDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "containers_decoded_total",
			Help:      "Container payloads decoded.",
		},
	)
	MessagesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_decoded_total",
			Help:      "Container messages decoded into rows.",
		},
	)
	DecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Container decode errors.",
		},
	)
	UnsupportedEncodings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsupported_encodings_total",
			Help:      "Message payloads with an undecodable encoding.",
		},
		[]string{"encoding"},
	)
	LakeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lake_requests_total",
			Help:      "S3 lake requests by operation.",
		},
		[]string{"operation"},
	)
	LakeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lake_errors_total",
			Help:      "S3 lake errors by operation.",
		},
		[]string{"operation"},
	)
	LakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lake_request_duration_seconds",
			Help:      "S3 lake request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	LakeBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lake_bytes_downloaded_total",
			Help:      "Total bytes downloaded from the S3 lake.",
		},
	)
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Active client connections.",
		},
	)
	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total client connections accepted.",
		},
	)
	ActiveScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scans",
			Help:      "Table scans currently executing.",
		},
	)
	UnscopedRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unscoped_rejected_total",
			Help:      "Scans rejected for missing a required scope constraint.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryDuration,
		QueryRows,
		APIRequests,
		APIErrors,
		APIRetries,
		APIDuration,
		APIBytes,
		Truncations,
		ContainersDecoded,
		MessagesDecoded,
		DecodeErrors,
		UnsupportedEncodings,
		LakeRequests,
		LakeErrors,
		LakeDuration,
		LakeBytes,
		ConnectionsActive,
		ConnectionsTotal,
		ActiveScans,
		UnscopedRejected,
	)
}
