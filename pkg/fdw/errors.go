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

import "fmt"

// UnscopedQueryError rejects a scan that would require an enumeration the
// remote API does not offer. It is raised before any network request.
type UnscopedQueryError struct {
	Table string
	Hint  string
}

func (e *UnscopedQueryError) Error() string {
	return fmt.Sprintf("unscoped query on %s: %s", e.Table, e.Hint)
}

// WarningCode tags non-fatal scan conditions.
type WarningCode string

const (
	WarnTruncated           WarningCode = "possibly_truncated"
	WarnUnsupportedEncoding WarningCode = "unsupported_encoding"
	WarnUnresolvedSchema    WarningCode = "unresolved_schema"
	WarnPartialDecode       WarningCode = "partial_decode"
)

// Warning is attached to a scan result instead of failing it. No condition
// is ever swallowed without one reaching the caller.
type Warning struct {
	Code    WarningCode
	Message string
}

func (w Warning) String() string { return string(w.Code) + ": " + w.Message }
