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

// Package lake reads exported artifacts straight from the S3 storage lake
// when a bucket is configured, bypassing the API's pre-signed download
// links for deployments with direct lake access.
package lake

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/roverdata/telesql/internal/config"
	"github.com/roverdata/telesql/internal/metrics"
)

// Fetcher streams objects out of the lake by their lake path.
type Fetcher interface {
	Fetch(ctx context.Context, lakePath string) (io.ReadCloser, error)
}

type s3Fetcher struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3-backed fetcher, or returns nil when no bucket is
// configured and all downloads must go through the API.
func New(cfg config.LakeConfig) (Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOptions = append(loadOptions, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
		if cfg.PathStyle {
			opts.UsePathStyle = true
		}
	})

	return &s3Fetcher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (f *s3Fetcher) Fetch(ctx context.Context, lakePath string) (io.ReadCloser, error) {
	key := strings.TrimLeft(lakePath, "/")
	if f.prefix != "" {
		key = f.prefix + "/" + key
	}

	start := time.Now()
	metrics.LakeRequests.WithLabelValues("get").Inc()
	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	metrics.LakeDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LakeErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("lake get %s: %w", key, err)
	}
	return &countingBody{body: resp.Body}, nil
}

// countingBody feeds the byte counter as the caller streams.
type countingBody struct {
	body io.ReadCloser
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.body.Read(p)
	if n > 0 {
		metrics.LakeBytes.Add(float64(n))
	}
	return n, err
}

func (c *countingBody) Close() error { return c.body.Close() }
