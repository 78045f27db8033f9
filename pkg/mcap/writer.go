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
	"encoding/binary"
	"io"
)

// Writer emits a container stream. It is the counterpart of Reader and
// backs the test fixtures for the decode path.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(Magic); err != nil {
		return nil, err
	}
	return &Writer{w: w}, nil
}

func (w *Writer) record(op byte, payload []byte) {
	if w.err != nil {
		return
	}
	var head [9]byte
	head[0] = op
	binary.LittleEndian.PutUint64(head[1:], uint64(len(payload)))
	if _, err := w.w.Write(head[:]); err != nil {
		w.err = err
		return
	}
	_, w.err = w.w.Write(payload)
}

func (w *Writer) WriteSchema(s Schema) {
	buf := make([]byte, 0, 2+4+len(s.Name)+4+len(s.Encoding)+4+len(s.Data))
	buf = binary.LittleEndian.AppendUint16(buf, s.ID)
	buf = appendBytes(buf, []byte(s.Name))
	buf = appendBytes(buf, []byte(s.Encoding))
	buf = appendBytes(buf, s.Data)
	w.record(OpSchema, buf)
}

func (w *Writer) WriteChannel(ch Channel) {
	buf := make([]byte, 0, 4+4+len(ch.Topic)+4+len(ch.MessageEncoding))
	buf = binary.LittleEndian.AppendUint16(buf, ch.ID)
	buf = binary.LittleEndian.AppendUint16(buf, ch.SchemaID)
	buf = appendBytes(buf, []byte(ch.Topic))
	buf = appendBytes(buf, []byte(ch.MessageEncoding))
	w.record(OpChannel, buf)
}

func (w *Writer) WriteMessage(m Message) {
	buf := make([]byte, 0, 22+len(m.Data))
	buf = binary.LittleEndian.AppendUint16(buf, m.ChannelID)
	buf = binary.LittleEndian.AppendUint32(buf, m.Sequence)
	buf = binary.LittleEndian.AppendUint64(buf, m.LogTime)
	buf = binary.LittleEndian.AppendUint64(buf, m.PublishTime)
	buf = append(buf, m.Data...)
	w.record(OpMessage, buf)
}

// WriteRaw emits an arbitrary record, used to exercise the skip path.
func (w *Writer) WriteRaw(op byte, payload []byte) {
	w.record(op, payload)
}

// Close writes the footer record.
func (w *Writer) Close() error {
	w.record(OpFooter, nil)
	return w.err
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}
