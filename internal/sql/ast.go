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

// Package sql parses the statement subset the wire server accepts:
// single-table SELECT with AND-combined comparisons, ORDER BY, LIMIT,
// plus SHOW TABLES, DESCRIBE, and EXPLAIN.
package sql

import "github.com/roverdata/telesql/pkg/fdw"

type QueryType int

const (
	QueryUnknown QueryType = iota
	QuerySelect
	QuerySelectValues
	QueryShowTables
	QueryDescribe
	QueryExplain
)

// Query is one parsed statement. For QuerySelect, Columns nil means "*".
type Query struct {
	Type    QueryType
	Table   string
	Columns []string
	Where   []fdw.Qual
	OrderBy []fdw.SortKey
	Limit   int

	// QuerySelectValues: literal row for FROM-less selects such as SELECT 1.
	Values []fdw.Value

	// QueryExplain wraps the inner select.
	Explain *Query
}
