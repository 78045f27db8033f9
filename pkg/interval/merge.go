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

// Package interval merges per-device coverage ranges whose gaps fall
// within a tolerance, collapsing fragmented storage spans into the
// contiguous windows a caller actually cares about.
package interval

import (
	"sort"
	"time"
)

// Range is one span of stored data for a device.
type Range struct {
	DeviceID     string
	DeviceName   string
	Start        time.Time
	End          time.Time
	Status       string
	ImportStatus string
}

// Merge collapses ranges per device: two ranges on the same device join
// when the gap between them is at most tolerance. Empty and inverted
// ranges are discarded. Metadata on a merged range comes from its
// earliest-starting contributor. The result is ordered by device id,
// then start time, and Merge is idempotent: merging its own output
// changes nothing.
func Merge(ranges []Range, tolerance time.Duration) []Range {
	byDevice := make(map[string][]Range)
	var order []string
	for _, r := range ranges {
		if !r.End.After(r.Start) {
			continue
		}
		if _, seen := byDevice[r.DeviceID]; !seen {
			order = append(order, r.DeviceID)
		}
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}
	sort.Strings(order)

	var out []Range
	for _, dev := range order {
		spans := byDevice[dev]
		sort.Slice(spans, func(i, j int) bool {
			if !spans[i].Start.Equal(spans[j].Start) {
				return spans[i].Start.Before(spans[j].Start)
			}
			return spans[i].End.Before(spans[j].End)
		})
		cur := spans[0]
		for _, next := range spans[1:] {
			if !next.Start.After(cur.End.Add(tolerance)) {
				if next.End.After(cur.End) {
					cur.End = next.End
				}
				continue
			}
			out = append(out, cur)
			cur = next
		}
		out = append(out, cur)
	}
	return out
}
