// Package vtpb holds the vt.v1 protobuf schema and its gRPC bindings.
//
// The file descriptor is declared in Go and registered with the global
// registry at init, so server reflection and any protobuf tooling can
// resolve vt.v1 symbols. Messages travel as dynamicpb values and are
// converted to the plain structs below at the API boundary.
package vtpb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	FileName    = "vt/v1/dogs.proto"
	PackageName = "vt.v1"
	ServiceName = "vt.v1.DogService"
)

var (
	dogDesc           protoreflect.MessageDescriptor
	dogsResponseDesc  protoreflect.MessageDescriptor
	delayRequestDesc  protoreflect.MessageDescriptor
	delayResponseDesc protoreflect.MessageDescriptor
)

func init() {
	// empty.proto must be in the registry before dogs.proto can resolve it.
	_ = emptypb.File_google_protobuf_empty_proto

	fd, err := protodesc.NewFile(fileProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("vtpb: build %s: %v", FileName, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("vtpb: register %s: %v", FileName, err))
	}

	msgs := fd.Messages()
	dogDesc = msgs.ByName("Dog")
	dogsResponseDesc = msgs.ByName("DogsResponse")
	delayRequestDesc = msgs.ByName("DelayRequest")
	delayResponseDesc = msgs.ByName("DelayResponse")
}

func fileProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String(PackageName),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/empty.proto"},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/unajo/vt/internal/rpc/vtpb"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("Dog",
				scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("description", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message("DogsResponse", repeatedMessage("dogs", 1, ".vt.v1.Dog")),
			message("DelayRequest",
				scalar("seconds", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message("DelayResponse",
				scalar("done", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				scalar("message", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("DogService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("All"),
					InputType:  proto.String(".google.protobuf.Empty"),
					OutputType: proto.String(".vt.v1.DogsResponse"),
				},
				{
					Name:       proto.String("Delay"),
					InputType:  proto.String(".vt.v1.DelayRequest"),
					OutputType: proto.String(".vt.v1.DelayResponse"),
				},
			},
		}},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func scalar(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeatedMessage(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
	}
}

type Dog struct {
	ID          int64
	Name        string
	Description string
}

type DogsResponse struct {
	Dogs []Dog
}

type DelayRequest struct {
	Seconds int64
}

type DelayResponse struct {
	Done    bool
	Message string
}

func setField(m *dynamicpb.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(name), v)
}

func getField(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}

func (d Dog) toProto() *dynamicpb.Message {
	m := dynamicpb.NewMessage(dogDesc)
	setField(m, "id", protoreflect.ValueOfInt64(d.ID))
	setField(m, "name", protoreflect.ValueOfString(d.Name))
	setField(m, "description", protoreflect.ValueOfString(d.Description))
	return m
}

func dogFromProto(m protoreflect.Message) Dog {
	return Dog{
		ID:          getField(m, "id").Int(),
		Name:        getField(m, "name").String(),
		Description: getField(m, "description").String(),
	}
}

// ToProto converts r into its wire message.
func (r *DogsResponse) ToProto() proto.Message {
	m := dynamicpb.NewMessage(dogsResponseDesc)
	list := m.Mutable(dogsResponseDesc.Fields().ByName("dogs")).List()
	for _, d := range r.Dogs {
		list.Append(protoreflect.ValueOfMessage(d.toProto()))
	}
	return m
}

func dogsResponseFromProto(m protoreflect.Message) *DogsResponse {
	list := getField(m, "dogs").List()
	out := &DogsResponse{Dogs: make([]Dog, 0, list.Len())}
	for i := 0; i < list.Len(); i++ {
		out.Dogs = append(out.Dogs, dogFromProto(list.Get(i).Message()))
	}
	return out
}

// ToProto treats a nil request as seconds=0.
func (r *DelayRequest) ToProto() proto.Message {
	m := dynamicpb.NewMessage(delayRequestDesc)
	if r == nil {
		return m
	}
	setField(m, "seconds", protoreflect.ValueOfInt64(r.Seconds))
	return m
}

func delayRequestFromProto(m protoreflect.Message) *DelayRequest {
	return &DelayRequest{Seconds: getField(m, "seconds").Int()}
}

func (r *DelayResponse) ToProto() proto.Message {
	m := dynamicpb.NewMessage(delayResponseDesc)
	setField(m, "done", protoreflect.ValueOfBool(r.Done))
	setField(m, "message", protoreflect.ValueOfString(r.Message))
	return m
}

func delayResponseFromProto(m protoreflect.Message) *DelayResponse {
	return &DelayResponse{
		Done:    getField(m, "done").Bool(),
		Message: getField(m, "message").String(),
	}
}

// Wire message constructors, used as decode targets.
func newDelayRequest() *dynamicpb.Message  { return dynamicpb.NewMessage(delayRequestDesc) }
func newDelayResponse() *dynamicpb.Message { return dynamicpb.NewMessage(delayResponseDesc) }
func newDogsResponse() *dynamicpb.Message  { return dynamicpb.NewMessage(dogsResponseDesc) }
