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

package mcap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxRecordLen bounds a single record allocation so a corrupt length
// prefix cannot demand the whole address space.
const maxRecordLen = 1 << 30

// Reader pulls messages out of a container stream, tracking schema and
// channel declarations as they appear. Construction consumes and checks
// the magic prefix.
type Reader struct {
	r        *bufio.Reader
	schemas  map[uint16]Schema
	channels map[uint16]Channel
	footer   bool
}

func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	head := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("mcap: read magic: %w", err)
	}
	for i, b := range Magic {
		if head[i] != b {
			return nil, fmt.Errorf("mcap: bad magic %q", head)
		}
	}
	return &Reader{
		r:        br,
		schemas:  make(map[uint16]Schema),
		channels: make(map[uint16]Channel),
	}, nil
}

// SchemaFor resolves the schema for a channel, if both were declared.
func (r *Reader) SchemaFor(ch Channel) (Schema, bool) {
	s, ok := r.schemas[ch.SchemaID]
	return s, ok
}

// Channel returns the declaration for a channel id.
func (r *Reader) Channel(id uint16) (Channel, bool) {
	ch, ok := r.channels[id]
	return ch, ok
}

// Next returns the next message in the stream. Schema and channel records
// are absorbed into the registries; unknown record types are skipped.
// io.EOF signals a clean end (footer seen or stream exhausted between
// records); any mid-record truncation is io.ErrUnexpectedEOF so callers
// can distinguish a partial container from a complete one.
func (r *Reader) Next() (Message, error) {
	for {
		if r.footer {
			return Message{}, io.EOF
		}
		op, err := r.r.ReadByte()
		if err == io.EOF {
			return Message{}, io.EOF
		}
		if err != nil {
			return Message{}, fmt.Errorf("mcap: read opcode: %w", err)
		}
		var lenBuf [8]byte
		if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
			return Message{}, unexpected(err)
		}
		length := binary.LittleEndian.Uint64(lenBuf[:])
		if length > maxRecordLen {
			return Message{}, fmt.Errorf("mcap: record length %d exceeds limit", length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return Message{}, unexpected(err)
		}

		switch op {
		case OpSchema:
			s, err := parseSchema(payload)
			if err != nil {
				return Message{}, fmt.Errorf("mcap: %w", err)
			}
			r.schemas[s.ID] = s
		case OpChannel:
			ch, err := parseChannel(payload)
			if err != nil {
				return Message{}, fmt.Errorf("mcap: %w", err)
			}
			r.channels[ch.ID] = ch
		case OpMessage:
			m, err := parseMessage(payload)
			if err != nil {
				return Message{}, fmt.Errorf("mcap: %w", err)
			}
			return m, nil
		case OpFooter:
			r.footer = true
			return Message{}, io.EOF
		default:
			// Header and future record types carry nothing we project.
		}
	}
}

func unexpected(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("mcap: truncated record: %w", err)
}
