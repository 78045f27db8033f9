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

import "fmt"

// AuthError reports a missing or rejected API credential. It is terminal:
// retrying the same request cannot succeed.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return "api: no API key configured (set TELESQL_API_KEY or api.key)"
	}
	if e.Detail != "" {
		return fmt.Sprintf("api: authentication rejected (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api: authentication rejected (status %d)", e.Status)
}

// TransientNetworkError wraps a failure that survived the retry schedule.
type TransientNetworkError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("api: %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// StatusError reports a non-retryable HTTP failure from the API.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api: %s returned status %d: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("api: %s returned status %d", e.Endpoint, e.Status)
}
