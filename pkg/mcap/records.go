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

// Package mcap reads and writes the container format used by message
// exports: a magic prefix followed by length-framed, little-endian typed
// records. Unknown record types are skipped by their declared length so
// format additions stay readable.
package mcap

import (
	"encoding/binary"
	"fmt"
)

// Magic is the container file prefix.
var Magic = []byte("\x89MCAP0\r\n")

// Record opcodes.
const (
	OpHeader  byte = 0x01
	OpFooter  byte = 0x02
	OpSchema  byte = 0x03
	OpChannel byte = 0x04
	OpMessage byte = 0x05
)

// Schema describes one message layout referenced by channels.
type Schema struct {
	ID       uint16
	Name     string
	Encoding string
	Data     []byte
}

// Channel binds a topic to a schema and a message encoding.
type Channel struct {
	ID              uint16
	SchemaID        uint16
	Topic           string
	MessageEncoding string
}

// Message is one timestamped payload on a channel.
type Message struct {
	ChannelID   uint16
	Sequence    uint32
	LogTime     uint64
	PublishTime uint64
	Data        []byte
}

// UnresolvedSchemaError reports a channel whose schema id was never
// declared in the stream.
type UnresolvedSchemaError struct {
	ChannelID uint16
	SchemaID  uint16
	Topic     string
}

func (e *UnresolvedSchemaError) Error() string {
	return fmt.Sprintf("mcap: channel %d (topic %q) references undeclared schema %d", e.ChannelID, e.Topic, e.SchemaID)
}

func parseSchema(payload []byte) (Schema, error) {
	var s Schema
	if len(payload) < 2 {
		return s, fmt.Errorf("schema record too short")
	}
	s.ID = binary.LittleEndian.Uint16(payload)
	rest := payload[2:]
	var err error
	if s.Name, rest, err = readString(rest); err != nil {
		return s, fmt.Errorf("schema name: %w", err)
	}
	if s.Encoding, rest, err = readString(rest); err != nil {
		return s, fmt.Errorf("schema encoding: %w", err)
	}
	if s.Data, _, err = readBytes(rest); err != nil {
		return s, fmt.Errorf("schema data: %w", err)
	}
	return s, nil
}

func parseChannel(payload []byte) (Channel, error) {
	var ch Channel
	if len(payload) < 4 {
		return ch, fmt.Errorf("channel record too short")
	}
	ch.ID = binary.LittleEndian.Uint16(payload)
	ch.SchemaID = binary.LittleEndian.Uint16(payload[2:])
	rest := payload[4:]
	var err error
	if ch.Topic, rest, err = readString(rest); err != nil {
		return ch, fmt.Errorf("channel topic: %w", err)
	}
	if ch.MessageEncoding, _, err = readString(rest); err != nil {
		return ch, fmt.Errorf("channel encoding: %w", err)
	}
	return ch, nil
}

func parseMessage(payload []byte) (Message, error) {
	var m Message
	if len(payload) < 22 {
		return m, fmt.Errorf("message record too short")
	}
	m.ChannelID = binary.LittleEndian.Uint16(payload)
	m.Sequence = binary.LittleEndian.Uint32(payload[2:])
	m.LogTime = binary.LittleEndian.Uint64(payload[6:])
	m.PublishTime = binary.LittleEndian.Uint64(payload[14:])
	m.Data = payload[22:]
	return m, nil
}

func readString(b []byte) (string, []byte, error) {
	data, rest, err := readBytes(b)
	return string(data), rest, err
}

func readBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("declared length %d exceeds remaining %d bytes", n, len(b))
	}
	return b[:n], b[n:], nil
}
