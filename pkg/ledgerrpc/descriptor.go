package ledgerrpc

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	// FileName 描述檔名稱 (gRPC reflection 回報的路徑)
	FileName    = "ledger/v1/ledger.proto"
	packageName = "ledger.v1"
	goPackage   = "github.com/JoeShih716/go-wallet-ledger/pkg/ledgerrpc"
)

// messageTypes ledger.v1 的所有訊息，順序即 .proto 內的宣告順序
var messageTypes = []any{
	CreateAccountRequest{},
	CreateAccountResponse{},
	GetBalanceRequest{},
	GetBalanceResponse{},
	TransferRequest{},
	TransferResponse{},
	ApplyExternalPaymentRequest{},
	ApplyExternalPaymentResponse{},
	ListEntriesRequest{},
	Entry{},
	ListEntriesResponse{},
	AuditRequest{},
	AuditMismatch{},
	AuditResponse{},
}

var timeType = reflect.TypeOf(time.Time{})

// File ledger/v1/ledger.proto 的描述，啟動時由訊息的 protobuf tag 建出並註冊到 protoregistry.GlobalFiles
var File protoreflect.FileDescriptor

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("ledgerrpc: build %s: %v", FileName, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("ledgerrpc: register %s: %v", FileName, err))
	}
	File = fd
}

// tagField 解析後的 protobuf struct tag
type tagField struct {
	index    int
	number   protoreflect.FieldNumber
	name     string
	repeated bool
}

var fieldCache sync.Map // reflect.Type -> []tagField

// fieldsOf 回傳 struct 上所有帶 protobuf tag 的欄位
func fieldsOf(t reflect.Type) []tagField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]tagField)
	}
	var fields []tagField
	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("protobuf")
		if !ok {
			continue
		}
		f, err := parseTag(tag)
		if err != nil {
			panic(fmt.Sprintf("ledgerrpc: %s.%s: %v", t.Name(), t.Field(i).Name, err))
		}
		f.index = i
		fields = append(fields, f)
	}
	fieldCache.Store(t, fields)
	return fields
}

// parseTag 解析 `protobuf:"bytes,1,opt,name=account_id"`
func parseTag(tag string) (tagField, error) {
	parts := strings.Split(tag, ",")
	if len(parts) < 4 {
		return tagField{}, fmt.Errorf("malformed protobuf tag %q", tag)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n <= 0 {
		return tagField{}, fmt.Errorf("bad field number in %q", tag)
	}
	f := tagField{number: protoreflect.FieldNumber(n), repeated: parts[2] == "rep"}
	for _, p := range parts[3:] {
		if name, ok := strings.CutPrefix(p, "name="); ok {
			f.name = name
		}
	}
	if f.name == "" {
		return tagField{}, fmt.Errorf("missing name in %q", tag)
	}
	return f, nil
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	file := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(FileName),
		Package:    proto.String(packageName),
		Syntax:     proto.String("proto3"),
		Dependency: []string{timestamppb.File_google_protobuf_timestamp_proto.Path()},
		Options:    &descriptorpb.FileOptions{GoPackage: proto.String(goPackage)},
	}
	for _, m := range messageTypes {
		file.MessageType = append(file.MessageType, messageDescriptorProto(reflect.TypeOf(m)))
	}

	// 每個 rpc X 的輸入 / 輸出固定是 XRequest / XResponse
	service := &descriptorpb.ServiceDescriptorProto{Name: proto.String(serviceShortName)}
	for _, m := range ServiceDesc.Methods {
		service.Method = append(service.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(qualified(m.MethodName + "Request")),
			OutputType: proto.String(qualified(m.MethodName + "Response")),
		})
	}
	file.Service = []*descriptorpb.ServiceDescriptorProto{service}
	return file
}

func messageDescriptorProto(t reflect.Type) *descriptorpb.DescriptorProto {
	msg := &descriptorpb.DescriptorProto{Name: proto.String(t.Name())}
	for _, f := range fieldsOf(t) {
		fd := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.name),
			Number: proto.Int32(int32(f.number)),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}
		goType := t.Field(f.index).Type
		if f.repeated {
			fd.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
			goType = goType.Elem()
		}
		switch {
		case goType == timeType:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
			fd.TypeName = proto.String("." + string((&timestamppb.Timestamp{}).ProtoReflect().Descriptor().FullName()))
		case goType.Kind() == reflect.Struct:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
			fd.TypeName = proto.String(qualified(goType.Name()))
		case goType.Kind() == reflect.String:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
		case goType.Kind() == reflect.Bool:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum()
		case goType.Kind() == reflect.Int, goType.Kind() == reflect.Int64:
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum()
		default:
			panic(fmt.Sprintf("ledgerrpc: %s.%s: unsupported type %s", t.Name(), f.name, goType))
		}
		msg.Field = append(msg.Field, fd)
	}
	return msg
}

func qualified(name string) string {
	return "." + packageName + "." + name
}

// messageDescriptor 找出 Go 訊息型別對應的描述
func messageDescriptor(t reflect.Type) (protoreflect.MessageDescriptor, error) {
	md := File.Messages().ByName(protoreflect.Name(t.Name()))
	if md == nil {
		return nil, fmt.Errorf("ledgerrpc: %s is not a %s message", t, packageName)
	}
	return md, nil
}
