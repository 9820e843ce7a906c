package ledgerrpc

import (
	"fmt"
	"reflect"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// CodecName 與 gRPC 預設 codec 同名，線上格式就是標準 protobuf
const CodecName = "proto"

// Codec 以 protobuf 編碼 gRPC 訊息。
// ledgerrpc 的訊息依 File 的描述轉成 dynamicpb 後編碼；
// 其他 proto.Message (例如 reflection 服務自己的訊息) 直接交給 proto 處理。
var Codec encoding.Codec = codec{}

// ServerOption 讓 gRPC server 的所有服務都使用 Codec
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec)
}

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("ledgerrpc: cannot marshal %T", v)
	}
	msg, err := toDynamic(rv)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

func (codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("ledgerrpc: cannot unmarshal into %T", v)
	}
	md, err := messageDescriptor(rv.Elem().Type())
	if err != nil {
		return err
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		return err
	}
	return fromDynamic(msg, rv.Elem())
}

func (codec) Name() string {
	return CodecName
}

// toDynamic Go struct → dynamicpb；proto3 的零值欄位不寫入
func toDynamic(rv reflect.Value) (*dynamicpb.Message, error) {
	md, err := messageDescriptor(rv.Type())
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	for _, f := range fieldsOf(rv.Type()) {
		fd := md.Fields().ByNumber(f.number)
		fv := rv.Field(f.index)
		if fd.IsList() {
			if fv.Len() == 0 {
				continue
			}
			list := msg.Mutable(fd).List()
			for i := 0; i < fv.Len(); i++ {
				val, err := toValue(fd, fv.Index(i))
				if err != nil {
					return nil, err
				}
				list.Append(val)
			}
			continue
		}
		if fv.IsZero() {
			continue
		}
		val, err := toValue(fd, fv)
		if err != nil {
			return nil, err
		}
		msg.Set(fd, val)
	}
	return msg, nil
}

func toValue(fd protoreflect.FieldDescriptor, fv reflect.Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(fv.String()), nil
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(fv.Bool()), nil
	case protoreflect.Int64Kind:
		return protoreflect.ValueOfInt64(fv.Int()), nil
	case protoreflect.MessageKind:
		if fv.Type() == timeType {
			return protoreflect.ValueOfMessage(timestamppb.New(fv.Interface().(time.Time)).ProtoReflect()), nil
		}
		child, err := toDynamic(fv)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfMessage(child), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("ledgerrpc: field %s: unsupported kind %s", fd.FullName(), fd.Kind())
	}
}

// fromDynamic protobuf 訊息 → Go struct；空的 repeated 欄位保持 nil
func fromDynamic(msg protoreflect.Message, rv reflect.Value) error {
	md := msg.Descriptor()
	for _, f := range fieldsOf(rv.Type()) {
		fd := md.Fields().ByNumber(f.number)
		fv := rv.Field(f.index)
		if fd.IsList() {
			list := msg.Get(fd).List()
			if list.Len() == 0 {
				continue
			}
			slice := reflect.MakeSlice(fv.Type(), list.Len(), list.Len())
			for i := 0; i < list.Len(); i++ {
				if err := setValue(fd, list.Get(i), slice.Index(i)); err != nil {
					return err
				}
			}
			fv.Set(slice)
			continue
		}
		if !msg.Has(fd) {
			continue
		}
		if err := setValue(fd, msg.Get(fd), fv); err != nil {
			return err
		}
	}
	return nil
}

func setValue(fd protoreflect.FieldDescriptor, v protoreflect.Value, fv reflect.Value) error {
	switch fd.Kind() {
	case protoreflect.StringKind:
		fv.SetString(v.String())
	case protoreflect.BoolKind:
		fv.SetBool(v.Bool())
	case protoreflect.Int64Kind:
		fv.SetInt(v.Int())
	case protoreflect.MessageKind:
		m := v.Message()
		if fv.Type() == timeType {
			fields := m.Descriptor().Fields()
			seconds := m.Get(fields.ByName("seconds")).Int()
			nanos := m.Get(fields.ByName("nanos")).Int()
			fv.Set(reflect.ValueOf(time.Unix(seconds, nanos).UTC()))
			return nil
		}
		return fromDynamic(m, fv)
	default:
		return fmt.Errorf("ledgerrpc: field %s: unsupported kind %s", fd.FullName(), fd.Kind())
	}
	return nil
}
