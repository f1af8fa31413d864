package qdrant

import (
	pb "github.com/qdrant/go-client/qdrant"
)

// toPBPayload converts a generic payload map into Qdrant's typed Value
// wire format, covering the scalar and list shapes the memory record uses:
// strings, bools, float64s, ints, and string/any lists.
func toPBPayload(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		out[k] = toPBValue(v)
	}
	return out
}

func toPBValue(v any) *pb.Value {
	switch x := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: x}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}
	case []string:
		vals := make([]*pb.Value, len(x))
		for i, s := range x {
			vals[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case []any:
		vals := make([]*pb.Value, len(x))
		for i, e := range x {
			vals[i] = toPBValue(e)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: vals}}}
	case map[string]any:
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: toPBPayload(x)}}}
	default:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	}
}

// fromPBPayload converts Qdrant's typed Value wire format back to a
// generic payload map.
func fromPBPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromPBValue(v)
	}
	return out
}

func fromPBValue(v *pb.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.Kind.(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_ListValue:
		out := make([]any, len(k.ListValue.GetValues()))
		for i, e := range k.ListValue.GetValues() {
			out[i] = fromPBValue(e)
		}
		return out
	case *pb.Value_StructValue:
		return fromPBPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}
