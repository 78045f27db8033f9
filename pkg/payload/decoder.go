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

// Package payload turns raw message bodies into JSON documents. Protobuf
// bodies are decoded through their self-describing schema; JSON bodies
// pass through after a validity check. Anything else is unsupported and
// projects as null rather than failing the scan.
package payload

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/roverdata/telesql/internal/metrics"
	"github.com/roverdata/telesql/pkg/mcap"
)

// Decoder caches compiled schema descriptors across messages. The cache
// keys on the schema name plus a digest of the descriptor set, never on
// the numeric schema id: ids are container-local, and two containers can
// reuse the same id for different types. Safe for concurrent use.
type Decoder struct {
	mu    sync.Mutex
	descs map[descriptorKey]protoreflect.MessageDescriptor
}

type descriptorKey struct {
	name   string
	digest [sha256.Size]byte
}

func NewDecoder() *Decoder {
	return &Decoder{descs: make(map[descriptorKey]protoreflect.MessageDescriptor)}
}

var jsonOpts = protojson.MarshalOptions{
	UseProtoNames:   true,
	EmitUnpopulated: true,
}

// Decode converts one message body to a JSON document. A nil result with
// ok=false means the encoding pair is unsupported; the caller projects
// null and raises a warning instead of failing.
func (d *Decoder) Decode(schema mcap.Schema, ch mcap.Channel, data []byte) (raw []byte, ok bool, err error) {
	switch {
	case ch.MessageEncoding == "protobuf" && schema.Encoding == "protobuf":
		raw, err = d.decodeProto(schema, data)
		if err != nil {
			metrics.DecodeErrors.Inc()
			return nil, true, err
		}
		metrics.MessagesDecoded.Inc()
		return raw, true, nil
	case ch.MessageEncoding == "json":
		if !json.Valid(data) {
			metrics.DecodeErrors.Inc()
			return nil, true, fmt.Errorf("payload: invalid JSON body on topic %q", ch.Topic)
		}
		metrics.MessagesDecoded.Inc()
		return data, true, nil
	default:
		metrics.UnsupportedEncodings.WithLabelValues(ch.MessageEncoding).Inc()
		return nil, false, nil
	}
}

func (d *Decoder) decodeProto(schema mcap.Schema, data []byte) ([]byte, error) {
	desc, err := d.descriptor(schema)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("payload: unmarshal %s: %w", schema.Name, err)
	}
	out, err := jsonOpts.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("payload: marshal %s to JSON: %w", schema.Name, err)
	}
	return out, nil
}

// descriptor compiles the schema's FileDescriptorSet and resolves the
// named message, caching by content for the life of the decoder.
func (d *Decoder) descriptor(schema mcap.Schema) (protoreflect.MessageDescriptor, error) {
	key := descriptorKey{name: schema.Name, digest: sha256.Sum256(schema.Data)}
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc, ok := d.descs[key]; ok {
		return desc, nil
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(schema.Data, &set); err != nil {
		return nil, fmt.Errorf("payload: schema %q descriptor set: %w", schema.Name, err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("payload: schema %q registry: %w", schema.Name, err)
	}
	found, err := files.FindDescriptorByName(protoreflect.FullName(schema.Name))
	if err != nil {
		return nil, fmt.Errorf("payload: schema %q: %w", schema.Name, err)
	}
	desc, ok := found.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("payload: schema %q is not a message", schema.Name)
	}
	d.descs[key] = desc
	return desc, nil
}
