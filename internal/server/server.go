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

// Package server speaks the Postgres wire protocol over the table engine,
// enough of it for psql and standard drivers: simple query flow, catalog
// shims for clients that introspect, and NOTICE delivery for scan warnings.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgproto3/v2"

	"github.com/roverdata/telesql/internal/api"
	"github.com/roverdata/telesql/internal/config"
	"github.com/roverdata/telesql/internal/metrics"
	telesql "github.com/roverdata/telesql/internal/sql"
	"github.com/roverdata/telesql/pkg/fdw"
)

type Server struct {
	listenAddr     string
	serverVersion  string
	clientEncoding string
	maxConns       int
	queryTimeout   time.Duration
	logger         *slog.Logger
	engine         *fdw.Engine
}

func New(cfg config.Config, engine *fdw.Engine, logger *slog.Logger) *Server {
	return &Server{
		listenAddr:     cfg.Server.Listen,
		serverVersion:  cfg.Server.ServerVersion,
		clientEncoding: cfg.Server.ClientEncoding,
		maxConns:       cfg.Server.MaxConnections,
		queryTimeout:   time.Duration(cfg.Query.TimeoutSeconds) * time.Second,
		logger:         logger,
		engine:         engine,
	}
}

func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.logger.Info("wire server listening", "addr", s.listenAddr)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	maxConns := s.maxConns
	if maxConns <= 0 {
		maxConns = 200
	}
	sem := make(chan struct{}, maxConns)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			errCh <- err
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.handleConnection(ctx, conn)
		}()
	}

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
	startup, err := backend.ReceiveStartupMessage()
	if err != nil {
		s.logger.Warn("startup failed", "error", err)
		return
	}
	if _, ok := startup.(*pgproto3.SSLRequest); ok {
		if _, err := conn.Write([]byte{'N'}); err != nil {
			return
		}
		if _, err := backend.ReceiveStartupMessage(); err != nil {
			return
		}
	}

	_ = backend.Send(&pgproto3.AuthenticationOk{})
	_ = backend.Send(&pgproto3.ParameterStatus{Name: "client_encoding", Value: s.clientEncoding})
	_ = backend.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: s.serverVersion})
	_ = backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case *pgproto3.Terminate:
			return
		case *pgproto3.Query:
			if err := s.handleQuery(ctx, backend, m.String); err != nil {
				_ = backend.Send(&pgproto3.ErrorResponse{
					Severity: "ERROR",
					Code:     sqlState(err),
					Message:  err.Error(),
				})
			}
			_ = backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		default:
			_ = backend.Send(&pgproto3.ErrorResponse{
				Severity: "ERROR",
				Code:     "0A000",
				Message:  "only the simple query protocol is supported",
			})
			_ = backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		}
	}
}

// sqlState maps the engine's error taxonomy onto SQLSTATE codes.
func sqlState(err error) string {
	var authErr *api.AuthError
	var unscoped *fdw.UnscopedQueryError
	var netErr *api.TransientNetworkError
	switch {
	case errors.As(err, &authErr):
		return "28000"
	case errors.As(err, &unscoped):
		return "57014"
	case errors.As(err, &netErr):
		return "08006"
	case strings.Contains(err.Error(), "unknown table"), strings.Contains(err.Error(), "unknown column"):
		return "42P01"
	default:
		return "XX000"
	}
}

func (s *Server) handleQuery(ctx context.Context, backend *pgproto3.Backend, query string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if handled, err := s.handleSessionCommand(backend, query); handled {
		return err
	}
	if handled, err := s.handleCatalogQuery(backend, query); handled {
		return err
	}

	parsed, err := telesql.Parse(query)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	switch parsed.Type {
	case telesql.QueryShowTables:
		return s.sendShowTables(backend)
	case telesql.QueryDescribe:
		return s.sendDescribe(backend, parsed.Table)
	case telesql.QuerySelectValues:
		return s.sendLiteralRow(backend, parsed.Values)
	case telesql.QueryExplain:
		return s.sendExplain(backend, *parsed.Explain)
	case telesql.QuerySelect:
		return s.executeSelect(ctx, backend, parsed)
	default:
		return fmt.Errorf("unsupported statement")
	}
}

// handleSessionCommand absorbs the session chatter drivers emit.
func (s *Server) handleSessionCommand(backend *pgproto3.Backend, query string) (bool, error) {
	lower := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";")))
	var tag string
	switch {
	case strings.HasPrefix(lower, "set "):
		tag = "SET"
	case strings.HasPrefix(lower, "reset "):
		tag = "RESET"
	case lower == "begin", lower == "begin transaction":
		tag = "BEGIN"
	case lower == "commit", lower == "rollback":
		tag = strings.ToUpper(lower)
	default:
		return false, nil
	}
	return true, backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
}

func (s *Server) handleCatalogQuery(backend *pgproto3.Backend, query string) (bool, error) {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "information_schema.tables"):
		return true, s.catalogTables(backend)
	case strings.Contains(lower, "information_schema.columns"):
		return true, s.catalogColumns(backend)
	case strings.Contains(lower, "pg_catalog"):
		return true, fmt.Errorf("unsupported catalog query")
	default:
		return false, nil
	}
}

func (s *Server) executeSelect(ctx context.Context, backend *pgproto3.Backend, q telesql.Query) error {
	req, outCols, err := s.buildScanRequest(q)
	if err != nil {
		return err
	}

	it, err := s.engine.Scan(ctx, q.Table, req)
	if err != nil {
		return err
	}
	defer it.Close()

	fields := make([]pgproto3.FieldDescription, len(outCols))
	for i, col := range outCols {
		fields[i] = fieldDescription(col)
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}

	count := 0
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			// The row description is already on the wire; surface the
			// failure as the statement error.
			return err
		}
		// Rows may carry trailing sort-only cells; only the selected
		// columns go on the wire.
		values := make([][]byte, len(outCols))
		for i := range outCols {
			values[i] = cellBytes(row[i])
		}
		if err := backend.Send(&pgproto3.DataRow{Values: values}); err != nil {
			return err
		}
		count++
	}

	for _, warning := range it.Warnings() {
		_ = backend.Send(&pgproto3.NoticeResponse{
			Severity: "WARNING",
			Code:     "01000",
			Message:  string(warning.Code) + ": " + warning.Message,
		})
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(count)})
}

// buildScanRequest validates the statement against the table's columns and
// widens the projection when ORDER BY names a column outside the select
// list; appended sort-only columns stay out of the row description.
func (s *Server) buildScanRequest(q telesql.Query) (fdw.ScanRequest, []fdw.Column, error) {
	tableCols, ok := s.engine.TableColumns(q.Table)
	if !ok {
		return fdw.ScanRequest{}, nil, fmt.Errorf("unknown table %q", q.Table)
	}

	names := q.Columns
	if names == nil {
		names = make([]string, len(tableCols))
		for i, col := range tableCols {
			names[i] = col.Name
		}
	}

	outCols := make([]fdw.Column, len(names))
	for i, name := range names {
		col, ok := s.engine.ResolveColumn(q.Table, name)
		if !ok {
			return fdw.ScanRequest{}, nil, fmt.Errorf("unknown column %q in table %q", name, q.Table)
		}
		outCols[i] = col
	}

	for _, qual := range q.Where {
		if _, ok := s.engine.ResolveColumn(q.Table, qual.Column); !ok {
			return fdw.ScanRequest{}, nil, fmt.Errorf("unknown column %q in table %q", qual.Column, q.Table)
		}
	}

	scanNames := names
	for _, key := range q.OrderBy {
		if _, ok := s.engine.ResolveColumn(q.Table, key.Column); !ok {
			return fdw.ScanRequest{}, nil, fmt.Errorf("unknown column %q in table %q", key.Column, q.Table)
		}
		present := false
		for _, name := range scanNames {
			if name == key.Column {
				present = true
				break
			}
		}
		if !present {
			scanNames = append(scanNames, key.Column)
		}
	}

	req := fdw.ScanRequest{
		Columns: scanNames,
		Quals:   q.Where,
		Sort:    q.OrderBy,
		Limit:   q.Limit,
	}
	return req, outCols, nil
}

func (s *Server) sendShowTables(backend *pgproto3.Backend) error {
	fields := []pgproto3.FieldDescription{
		{Name: []byte("table_name"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}
	names := s.engine.TableNames()
	for _, name := range names {
		if err := backend.Send(&pgproto3.DataRow{Values: [][]byte{[]byte(name)}}); err != nil {
			return err
		}
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(len(names))})
}

func (s *Server) sendDescribe(backend *pgproto3.Backend, table string) error {
	cols, ok := s.engine.TableColumns(table)
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	fields := []pgproto3.FieldDescription{
		{Name: []byte("column_name"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("data_type"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("pushdown"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}
	for _, col := range cols {
		ops := make([]string, len(col.Pushdown))
		for i, op := range col.Pushdown {
			ops[i] = string(op)
		}
		row := [][]byte{
			[]byte(col.Name),
			[]byte(typeName(col.Type)),
			[]byte(strings.Join(ops, ",")),
		}
		if err := backend.Send(&pgproto3.DataRow{Values: row}); err != nil {
			return err
		}
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(len(cols))})
}

func (s *Server) sendLiteralRow(backend *pgproto3.Backend, values []fdw.Value) error {
	fields := make([]pgproto3.FieldDescription, len(values))
	row := make([][]byte, len(values))
	for i, v := range values {
		fields[i] = pgproto3.FieldDescription{
			Name: []byte("?column?"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0,
		}
		row[i] = cellBytes(v)
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}
	if err := backend.Send(&pgproto3.DataRow{Values: row}); err != nil {
		return err
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(1)})
}

// sendExplain shows the predicate translation outcome: which constraints
// the remote side satisfies, which stay local, and the parameters the scan
// would send.
func (s *Server) sendExplain(backend *pgproto3.Backend, q telesql.Query) error {
	req, _, err := s.buildScanRequest(q)
	if err != nil {
		return err
	}
	plan, err := s.engine.PlanScan(q.Table, req)
	if err != nil {
		return err
	}

	var lines []string
	lines = append(lines, "Remote Scan on "+q.Table)
	paramKeys := make([]string, 0, len(plan.Params))
	for k := range plan.Params {
		paramKeys = append(paramKeys, k)
	}
	sort.Strings(paramKeys)
	for _, k := range paramKeys {
		lines = append(lines, fmt.Sprintf("  Param: %s=%s", k, strings.Join(plan.Params[k], ",")))
	}
	for _, qual := range plan.Satisfied {
		lines = append(lines, "  Remote Filter: "+qual.String())
	}
	for _, qual := range plan.Residual {
		lines = append(lines, "  Local Filter: "+qual.String())
	}
	if len(q.OrderBy) > 0 {
		where := "local"
		if plan.SortPushed {
			where = "remote"
		}
		lines = append(lines, "  Sort: "+where)
	}
	if q.Limit > 0 {
		lines = append(lines, fmt.Sprintf("  Limit: %d", q.Limit))
	}

	fields := []pgproto3.FieldDescription{
		{Name: []byte("QUERY PLAN"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}
	for _, line := range lines {
		if err := backend.Send(&pgproto3.DataRow{Values: [][]byte{[]byte(line)}}); err != nil {
			return err
		}
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(len(lines))})
}

func (s *Server) catalogTables(backend *pgproto3.Backend) error {
	fields := []pgproto3.FieldDescription{
		{Name: []byte("table_catalog"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("table_schema"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("table_name"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("table_type"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}
	names := s.engine.TableNames()
	for _, name := range names {
		row := [][]byte{[]byte("telesql"), []byte("public"), []byte(name), []byte("FOREIGN")}
		if err := backend.Send(&pgproto3.DataRow{Values: row}); err != nil {
			return err
		}
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(len(names))})
}

func (s *Server) catalogColumns(backend *pgproto3.Backend) error {
	fields := []pgproto3.FieldDescription{
		{Name: []byte("table_catalog"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("table_schema"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("table_name"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("column_name"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
		{Name: []byte("ordinal_position"), DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 0},
		{Name: []byte("data_type"), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
	}
	if err := backend.Send(&pgproto3.RowDescription{Fields: fields}); err != nil {
		return err
	}
	count := 0
	for _, name := range s.engine.TableNames() {
		cols, _ := s.engine.TableColumns(name)
		for i, col := range cols {
			row := [][]byte{
				[]byte("telesql"),
				[]byte("public"),
				[]byte(name),
				[]byte(col.Name),
				[]byte(strconv.Itoa(i + 1)),
				[]byte(typeName(col.Type)),
			}
			if err := backend.Send(&pgproto3.DataRow{Values: row}); err != nil {
				return err
			}
			count++
		}
	}
	return backend.Send(&pgproto3.CommandComplete{CommandTag: commandTag(count)})
}

func fieldDescription(col fdw.Column) pgproto3.FieldDescription {
	oid, size := uint32(25), int16(-1)
	switch col.Type {
	case fdw.TypeInteger:
		oid, size = 23, 4
	case fdw.TypeBigint:
		oid, size = 20, 8
	case fdw.TypeFloat8:
		oid, size = 701, 8
	case fdw.TypeBool:
		oid, size = 16, 1
	case fdw.TypeTimestamptz:
		oid, size = 1184, 8
	case fdw.TypeJSONB:
		oid, size = 3802, -1
	}
	return pgproto3.FieldDescription{
		Name:         []byte(col.Name),
		DataTypeOID:  oid,
		DataTypeSize: size,
		TypeModifier: -1,
		Format:       0,
	}
}

func typeName(t fdw.ColType) string {
	switch t {
	case fdw.TypeInteger:
		return "integer"
	case fdw.TypeBigint:
		return "bigint"
	case fdw.TypeFloat8:
		return "double precision"
	case fdw.TypeBool:
		return "boolean"
	case fdw.TypeTimestamptz:
		return "timestamp with time zone"
	case fdw.TypeJSONB:
		return "jsonb"
	default:
		return "text"
	}
}

// cellBytes renders one cell in text format; nil marks SQL NULL.
func cellBytes(v fdw.Value) []byte {
	if v.IsNull() {
		return nil
	}
	if v.Kind == fdw.KindMap || v.Kind == fdw.KindSeq {
		return []byte(v.JSON())
	}
	return []byte(v.Text())
}

func commandTag(rows int) []byte {
	return []byte("SELECT " + strconv.Itoa(rows))
}
