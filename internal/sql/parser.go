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

package sql

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roverdata/telesql/pkg/fdw"
)

func Parse(query string) (Query, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return Query{}, err
	}
	if len(tokens) == 0 {
		return Query{}, fmt.Errorf("empty query")
	}
	p := &parser{tokens: tokens}

	switch strings.ToLower(tokens[0].text) {
	case "select":
		return p.parseSelect()
	case "show":
		return p.parseShow()
	case "describe", "desc":
		return p.parseDescribe()
	case "explain":
		return p.parseExplain()
	default:
		return Query{}, fmt.Errorf("unsupported statement %q", tokens[0].text)
	}
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(query string) ([]token, error) {
	var tokens []token
	runes := []rune(strings.TrimSpace(query))
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == ';':
			i++
		case c == '\'':
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String()})
		case c == '<' || c == '>':
			op := string(c)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			i++
			tokens = append(tokens, token{kind: tokSymbol, text: op})
		case c == '=' || c == '(' || c == ')' || c == ',' || c == '*':
			tokens = append(tokens, token{kind: tokSymbol, text: string(c)})
			i++
		case c == '-' || unicode.IsDigit(c):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E' || runes[i] == '+' || runes[i] == '-') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i])})
		case unicode.IsLetter(c) || c == '_' || c == '"':
			quoted := c == '"'
			if quoted {
				i++
			}
			start := i
			for i < len(runes) {
				r := runes[i]
				if quoted {
					if r == '"' {
						break
					}
				} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
					break
				}
				i++
			}
			text := string(runes[start:i])
			if quoted {
				if i >= len(runes) {
					return nil, fmt.Errorf("unterminated quoted identifier")
				}
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: text})
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) acceptKeyword(words ...string) bool {
	t, ok := p.peek()
	if !ok || t.kind != tokIdent {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(t.text, w) {
			p.pos++
			return true
		}
	}
	return false
}

func (p *parser) expectIdent(what string) (string, error) {
	t, ok := p.next()
	if !ok || t.kind != tokIdent {
		return "", fmt.Errorf("expected %s", what)
	}
	return t.text, nil
}

func (p *parser) parseShow() (Query, error) {
	p.pos++ // show
	if p.acceptKeyword("tables") {
		return Query{Type: QueryShowTables}, nil
	}
	return Query{}, fmt.Errorf("unsupported show statement")
}

func (p *parser) parseDescribe() (Query, error) {
	p.pos++ // describe
	name, err := p.expectIdent("table name")
	if err != nil {
		return Query{}, err
	}
	return Query{Type: QueryDescribe, Table: strings.ToLower(name)}, nil
}

func (p *parser) parseExplain() (Query, error) {
	p.pos++ // explain
	inner, err := p.parseSelect()
	if err != nil {
		return Query{}, err
	}
	if inner.Type != QuerySelect {
		return Query{}, fmt.Errorf("explain supports select only")
	}
	return Query{Type: QueryExplain, Explain: &inner}, nil
}

func (p *parser) parseSelect() (Query, error) {
	if !p.acceptKeyword("select") {
		return Query{}, fmt.Errorf("expected select")
	}

	var q Query
	star := false
	for {
		t, ok := p.peek()
		if !ok {
			break
		}
		if t.kind == tokSymbol && t.text == "*" {
			star = true
			p.pos++
		} else if t.kind == tokIdent && !isClauseKeyword(t.text) {
			q.Columns = append(q.Columns, strings.ToLower(t.text))
			p.pos++
		} else if t.kind == tokNumber || t.kind == tokString {
			v, err := literalValue(t)
			if err != nil {
				return Query{}, err
			}
			q.Values = append(q.Values, v)
			p.pos++
		} else {
			break
		}
		if t, ok := p.peek(); ok && t.kind == tokSymbol && t.text == "," {
			p.pos++
			continue
		}
		break
	}

	if !p.acceptKeyword("from") {
		if len(q.Values) > 0 && len(q.Columns) == 0 && !star {
			q.Type = QuerySelectValues
			return q, nil
		}
		return Query{}, fmt.Errorf("expected from clause")
	}
	if star {
		q.Columns = nil
	}
	table, err := p.expectIdent("table name")
	if err != nil {
		return Query{}, err
	}
	q.Table = strings.ToLower(table)
	q.Type = QuerySelect

	if p.acceptKeyword("where") {
		for {
			qual, err := p.parseCondition()
			if err != nil {
				return Query{}, err
			}
			q.Where = append(q.Where, qual)
			if !p.acceptKeyword("and") {
				break
			}
		}
	}

	if p.acceptKeyword("order") {
		if !p.acceptKeyword("by") {
			return Query{}, fmt.Errorf("expected by after order")
		}
		for {
			col, err := p.expectIdent("order column")
			if err != nil {
				return Query{}, err
			}
			key := fdw.SortKey{Column: strings.ToLower(col)}
			if p.acceptKeyword("desc") {
				key.Desc = true
			} else {
				p.acceptKeyword("asc")
			}
			q.OrderBy = append(q.OrderBy, key)
			if t, ok := p.peek(); ok && t.kind == tokSymbol && t.text == "," {
				p.pos++
				continue
			}
			break
		}
	}

	if p.acceptKeyword("limit") {
		t, ok := p.next()
		if !ok || t.kind != tokNumber {
			return Query{}, fmt.Errorf("limit requires a number")
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("invalid limit %q", t.text)
		}
		q.Limit = n
	}

	if t, ok := p.peek(); ok {
		return Query{}, fmt.Errorf("unexpected token %q", t.text)
	}
	return q, nil
}

func (p *parser) parseCondition() (fdw.Qual, error) {
	col, err := p.expectIdent("column name")
	if err != nil {
		return fdw.Qual{}, err
	}
	column := strings.ToLower(col)

	if p.acceptKeyword("in") {
		t, ok := p.next()
		if !ok || t.text != "(" {
			return fdw.Qual{}, fmt.Errorf("in requires a value list")
		}
		var list []fdw.Value
		for {
			lit, ok := p.next()
			if !ok {
				return fdw.Qual{}, fmt.Errorf("unterminated in list")
			}
			v, err := literalValue(lit)
			if err != nil {
				return fdw.Qual{}, err
			}
			list = append(list, v)
			sep, ok := p.next()
			if !ok {
				return fdw.Qual{}, fmt.Errorf("unterminated in list")
			}
			if sep.text == ")" {
				break
			}
			if sep.text != "," {
				return fdw.Qual{}, fmt.Errorf("unexpected %q in value list", sep.text)
			}
		}
		return fdw.Qual{Column: column, Op: fdw.OpIn, List: list}, nil
	}

	opTok, ok := p.next()
	if !ok || opTok.kind != tokSymbol {
		return fdw.Qual{}, fmt.Errorf("expected comparison operator after %q", column)
	}
	var op fdw.Op
	switch opTok.text {
	case "=":
		op = fdw.OpEq
	case "<":
		op = fdw.OpLt
	case "<=":
		op = fdw.OpLe
	case ">":
		op = fdw.OpGt
	case ">=":
		op = fdw.OpGe
	default:
		return fdw.Qual{}, fmt.Errorf("unsupported operator %q", opTok.text)
	}

	lit, ok := p.next()
	if !ok {
		return fdw.Qual{}, fmt.Errorf("expected literal after operator")
	}
	v, err := literalValue(lit)
	if err != nil {
		return fdw.Qual{}, err
	}
	return fdw.Qual{Column: column, Op: op, Value: v}, nil
}

func literalValue(t token) (fdw.Value, error) {
	switch t.kind {
	case tokString:
		return fdw.StringValue(t.text), nil
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return fdw.Null, fmt.Errorf("invalid number %q", t.text)
		}
		return fdw.NumberValue(n), nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return fdw.BoolValue(true), nil
		case "false":
			return fdw.BoolValue(false), nil
		case "null":
			return fdw.Null, nil
		}
	}
	return fdw.Null, fmt.Errorf("expected literal, got %q", t.text)
}

func isClauseKeyword(word string) bool {
	switch strings.ToLower(word) {
	case "from", "where", "order", "limit", "and", "in", "by", "asc", "desc":
		return true
	}
	return false
}
