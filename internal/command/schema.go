package command

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
)

// SchemaFile is the path of the service definition, relative to proto/.
const SchemaFile = "flock/v1/flock.proto"

const protoPackage = "flock.v1"

// The descriptors below mirror proto/flock/v1/flock.proto field for field.
// They are registered with the global registry so server reflection and
// protoregistry lookups see the service.
var (
	schema protoreflect.FileDescriptor

	vec3Desc          protoreflect.MessageDescriptor
	vec2Desc          protoreflect.MessageDescriptor
	moveRequestDesc   protoreflect.MessageDescriptor
	commandResultDesc protoreflect.MessageDescriptor
	agentRequestDesc  protoreflect.MessageDescriptor
	agentStateDesc    protoreflect.MessageDescriptor
	flockDesc         protoreflect.MessageDescriptor
	flockListDesc     protoreflect.MessageDescriptor
	markerDesc        protoreflect.MessageDescriptor
	snapshotDesc      protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(schemaProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("command: build %s: %v", SchemaFile, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("command: register %s: %v", SchemaFile, err))
	}
	schema = fd

	vec3Desc = messageDesc("Vec3")
	vec2Desc = messageDesc("Vec2")
	moveRequestDesc = messageDesc("IssueMoveRequest")
	commandResultDesc = messageDesc("CommandResult")
	agentRequestDesc = messageDesc("GetAgentStateRequest")
	agentStateDesc = messageDesc("AgentState")
	flockDesc = messageDesc("Flock")
	flockListDesc = messageDesc("ListFlocksResponse")
	markerDesc = messageDesc("Marker")
	snapshotDesc = messageDesc("Snapshot")
}

func messageDesc(name protoreflect.Name) protoreflect.MessageDescriptor {
	md := schema.Messages().ByName(name)
	if md == nil {
		panic(fmt.Sprintf("command: %s has no message %s", SchemaFile, name))
	}
	return md
}

type fieldKind = descriptorpb.FieldDescriptorProto_Type

const (
	kDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	kString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	kUint64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	kBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	kMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

func scalar(name string, num int32, kind fieldKind) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   kind.Enum(),
	}
}

func repeated(name string, num int32, kind fieldKind) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, num, kind)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func nested(name string, num int32, message string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, num, kMessage)
	f.TypeName = proto.String("." + protoPackage + "." + message)
	return f
}

func nestedList(name string, num int32, message string) *descriptorpb.FieldDescriptorProto {
	f := nested(name, num, message)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func msgProto(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func rpcProto(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(in),
		OutputType: proto.String(out),
	}
}

func schemaProto() *descriptorpb.FileDescriptorProto {
	local := func(name string) string { return "." + protoPackage + "." + name }
	const empty = ".google.protobuf.Empty"

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(SchemaFile),
		Package:    proto.String(protoPackage),
		Dependency: []string{"google/protobuf/empty.proto"},
		Syntax:     proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/signalsfoundry/flock-simulator/internal/command"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			msgProto("Vec3", scalar("x", 1, kDouble), scalar("y", 2, kDouble), scalar("z", 3, kDouble)),
			msgProto("Vec2", scalar("x", 1, kDouble), scalar("z", 2, kDouble)),
			msgProto("IssueMoveRequest",
				repeated("agent_ids", 1, kString),
				nested("target", 2, "Vec3"),
			),
			msgProto("CommandResult",
				scalar("command_id", 1, kString),
				scalar("tick", 2, kUint64),
				scalar("flock_id", 3, kUint64),
				repeated("admitted", 4, kString),
				repeated("skipped", 5, kString),
			),
			msgProto("GetAgentStateRequest", scalar("agent_id", 1, kString)),
			msgProto("AgentState",
				scalar("id", 1, kString),
				scalar("name", 2, kString),
				nested("position", 3, "Vec3"),
				scalar("yaw", 4, kDouble),
				nested("velocity", 5, "Vec2"),
				scalar("state", 6, kString),
				scalar("flock_id", 7, kUint64),
				scalar("max_speed", 8, kDouble),
				scalar("selection_radius", 9, kDouble),
				scalar("stationary", 10, kBool),
			),
			msgProto("Flock",
				scalar("id", 1, kUint64),
				nested("target", 2, "Vec2"),
				repeated("members", 3, kString),
			),
			msgProto("ListFlocksResponse", nestedList("flocks", 1, "Flock")),
			msgProto("Marker",
				scalar("id", 1, kUint64),
				nested("position", 2, "Vec3"),
				scalar("placed_at", 3, kUint64),
			),
			msgProto("Snapshot",
				scalar("tick", 1, kUint64),
				nestedList("agents", 2, "AgentState"),
				nestedList("flocks", 3, "Flock"),
				nestedList("markers", 4, "Marker"),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("FlockService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				rpcProto("IssueMove", local("IssueMoveRequest"), local("CommandResult")),
				rpcProto("GetAgentState", local("GetAgentStateRequest"), local("AgentState")),
				rpcProto("ListFlocks", empty, local("ListFlocksResponse")),
				rpcProto("Snapshot", empty, local("Snapshot")),
			},
		}},
	}
}
