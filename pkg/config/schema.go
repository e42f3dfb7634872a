package config

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	stringField = descriptorpb.FieldDescriptorProto_TYPE_STRING
	boolField   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	int64Field  = descriptorpb.FieldDescriptorProto_TYPE_INT64
	uint64Field = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	doubleField = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
)

// configField is a leaf field of the config file; its name is the flag it sets. Durations are strings like "5m".
type configField struct {
	name string
	kind descriptorpb.FieldDescriptorProto_Type
}

// configGroups lists the sections of the config file, e.g. `cache { cache_ttl: "10m" }`.
var configGroups = []struct {
	field   string // Field name of the section inside Config.
	message string // Message type name of the section.
	fields  []configField
}{
	{field: "log", message: "LogConfig", fields: []configField{
		{"log_handler_type", stringField},
		{"log_level", stringField},
		{"log_file", stringField},
		{"log_file_max_size_mb", int64Field},
		{"log_file_max_backups", int64Field},
	}},
	{field: "cache", message: "CacheConfig", fields: []configField{
		{"cache_enabled", boolField},
		{"cache_ttl", stringField},
		{"cache_max_size", int64Field},
		{"cache_shard_count", int64Field},
	}},
	{field: "aside", message: "AsideConfig", fields: []configField{
		{"aside_bloom_capacity", uint64Field},
	}},
	{field: "weather", message: "WeatherConfig", fields: []configField{
		{"weather_api_url", stringField},
		{"weather_fetch_timeout", stringField},
		{"weather_rate_limit", doubleField},
		{"weather_rate_burst", int64Field},
	}},
	{field: "server", message: "ServerConfig", fields: []configField{
		{"redis_address", stringField},
		{"http_address", stringField},
		{"http_shutdown_timeout", stringField},
	}},
	{field: "trace", message: "TraceConfig", fields: []configField{
		{"trace_stdout", boolField},
	}},
}

// configDescriptor returns the descriptor of the `hitcache.Config` message, which is built once from configGroups.
var configDescriptor = sync.OnceValues(buildConfigDescriptor)

// buildConfigDescriptor assembles a proto2 file holding the Config message and one message per config section.
// Fields are optional so the parsed message tells which flags the file actually sets.
func buildConfigDescriptor() (protoreflect.MessageDescriptor, error) {
	fileProto := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("hitcache/config.proto"),
		Package: proto.String("hitcache"),
		Syntax:  proto.String("proto2"),
	}
	rootProto := &descriptorpb.DescriptorProto{Name: proto.String("Config")}
	for groupIdx, group := range configGroups {
		groupProto := &descriptorpb.DescriptorProto{Name: proto.String(group.message)}
		for fieldIdx, field := range group.fields {
			groupProto.Field = append(groupProto.Field, &descriptorpb.FieldDescriptorProto{
				Name:   proto.String(field.name),
				Number: proto.Int32(int32(fieldIdx + 1)),
				Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:   field.kind.Enum(),
			})
		}
		fileProto.MessageType = append(fileProto.MessageType, groupProto)
		rootProto.Field = append(rootProto.Field, &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(group.field),
			Number:   proto.Int32(int32(groupIdx + 1)),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName: proto.String(".hitcache." + group.message),
		})
	}
	fileProto.MessageType = append(fileProto.MessageType, rootProto)

	file, err := protodesc.NewFile(fileProto, new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("failed to build config descriptor: %w", err)
	}
	return file.Messages().ByName("Config"), nil
}
