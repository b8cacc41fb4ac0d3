package eventstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ProtoSerializer implements Serializer for the typed payload path: each
// payload_type/payload_revision is backed by a compiled .proto message, and
// the stored payload bytes are the protobuf wire encoding of a dynamicpb
// message built from that descriptor.
//
// Metadata is still a flat string map, encoded as protobuf (rather than
// JSON) through a metadata message the caller registers with
// RegisterMetadataSchema, so the whole row stays in one wire format.
type ProtoSerializer struct {
	descriptors map[protoRevisionKey]protoreflect.MessageDescriptor
	metaDesc    protoreflect.MessageDescriptor
}

type protoRevisionKey struct {
	payloadType string
	revision    int
}

// NewProtoSerializer compiles no schemas up front; call RegisterSchema for
// each (payloadType, revision) the caller wants to append or read.
func NewProtoSerializer() *ProtoSerializer {
	return &ProtoSerializer{
		descriptors: make(map[protoRevisionKey]protoreflect.MessageDescriptor),
	}
}

// RegisterSchema compiles a .proto definition (expected to declare exactly
// one top-level message) and registers it for payloadType at revision.
func (s *ProtoSerializer) RegisterSchema(ctx context.Context, payloadType string, revision int, protoSource string) error {
	fileName := fmt.Sprintf("%s_v%d.proto", strings.ReplaceAll(payloadType, ".", "_"), revision)

	compiler := protocompile.Compiler{
		Resolver:       protocompile.WithStandardImports(&singleFileResolver{fileName: fileName, content: protoSource}),
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(ctx, fileName)
	if err != nil {
		return fmt.Errorf("eventstore: compile proto schema for %q rev %d: %w", payloadType, revision, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("eventstore: no files compiled for %q rev %d", payloadType, revision)
	}

	messages := files[0].Messages()
	if messages.Len() == 0 {
		return fmt.Errorf("eventstore: proto schema for %q rev %d defines no message", payloadType, revision)
	}

	s.descriptors[protoRevisionKey{payloadType, revision}] = messages.Get(0)
	return nil
}

func (s *ProtoSerializer) Serialize(evt DomainEvent) (payload, metadata []byte, err error) {
	msg, ok := evt.Payload.(proto.Message)
	if !ok {
		return nil, nil, fmt.Errorf("eventstore: proto serializer requires a proto.Message payload for %q, got %T", evt.Type, evt.Payload)
	}

	payload, err = proto.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("eventstore: marshal proto payload: %w", err)
	}

	if len(evt.Metadata) > 0 {
		metaMsg, buildErr := s.buildMetadataMessage(evt.Metadata)
		if buildErr != nil {
			return nil, nil, buildErr
		}
		metadata, err = proto.Marshal(metaMsg)
		if err != nil {
			return nil, nil, fmt.Errorf("eventstore: marshal proto metadata: %w", err)
		}
	}

	return payload, metadata, nil
}

func (s *ProtoSerializer) Deserialize(payloadType string, payloadRevision int, payload, metadata []byte) (DomainEvent, error) {
	desc, ok := s.descriptors[protoRevisionKey{payloadType, payloadRevision}]
	if !ok {
		return DomainEvent{}, fmt.Errorf("eventstore: no proto schema registered for %q rev %d", payloadType, payloadRevision)
	}

	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return DomainEvent{}, fmt.Errorf("eventstore: unmarshal proto payload for %q rev %d: %w", payloadType, payloadRevision, err)
	}

	result := DomainEvent{
		Type:     payloadType,
		Revision: payloadRevision,
		Payload:  msg,
	}

	if len(metadata) > 0 && s.metaDesc != nil {
		metaMsg := dynamicpb.NewMessage(s.metaDesc)
		if err := proto.Unmarshal(metadata, metaMsg); err != nil {
			return DomainEvent{}, fmt.Errorf("eventstore: unmarshal proto metadata: %w", err)
		}
		result.Metadata = flattenMetadataMessage(metaMsg)
	}

	return result, nil
}

// buildMetadataMessage and flattenMetadataMessage round-trip a
// map[string]string through the metaDesc descriptor, when one has been
// registered via RegisterMetadataSchema. Without a registered descriptor,
// Serialize fails for an event that carries metadata, and Deserialize
// ignores any stored metadata bytes.
func (s *ProtoSerializer) buildMetadataMessage(meta map[string]string) (proto.Message, error) {
	if s.metaDesc == nil {
		return nil, fmt.Errorf("eventstore: metadata provided but no metadata schema registered")
	}
	msg := dynamicpb.NewMessage(s.metaDesc)
	fields := s.metaDesc.Fields()
	mapField := fields.ByName("entries")
	if mapField == nil || !mapField.IsMap() {
		return nil, fmt.Errorf("eventstore: metadata schema must declare a map<string,string> field named entries")
	}
	mapValue := msg.NewField(mapField).Map()
	for k, v := range meta {
		mapValue.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfString(v))
	}
	msg.Set(mapField, protoreflect.ValueOfMap(mapValue))
	return msg, nil
}

func flattenMetadataMessage(msg *dynamicpb.Message) map[string]string {
	fields := msg.Descriptor().Fields()
	mapField := fields.ByName("entries")
	if mapField == nil || !mapField.IsMap() {
		return nil
	}
	out := make(map[string]string)
	msg.Get(mapField).Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

// RegisterMetadataSchema compiles a .proto message describing the metadata
// envelope (expected shape: `message Metadata { map<string,string> entries = 1; }`).
func (s *ProtoSerializer) RegisterMetadataSchema(ctx context.Context, protoSource string) error {
	compiler := protocompile.Compiler{
		Resolver:       protocompile.WithStandardImports(&singleFileResolver{fileName: "eventstore_metadata.proto", content: protoSource}),
		SourceInfoMode: protocompile.SourceInfoNone,
	}
	files, err := compiler.Compile(ctx, "eventstore_metadata.proto")
	if err != nil {
		return fmt.Errorf("eventstore: compile metadata schema: %w", err)
	}
	if len(files) == 0 || files[0].Messages().Len() == 0 {
		return fmt.Errorf("eventstore: metadata schema defines no message")
	}
	s.metaDesc = files[0].Messages().Get(0)
	return nil
}

// singleFileResolver provides in-memory proto source to protocompile.
type singleFileResolver struct {
	fileName string
	content  string
}

func (r *singleFileResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	if path == r.fileName {
		return protocompile.SearchResult{Source: strings.NewReader(r.content)}, nil
	}
	return protocompile.SearchResult{}, fmt.Errorf("file not found: %s", path)
}
