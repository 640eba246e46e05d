package codec

import (
	"errors"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec/status"
)

// jsonCodec uses the json-iterator streaming API rather than
// encoding/json so object key order survives a decode/encode cycle.
type jsonCodec struct{}

func (jsonCodec) Format() Format { return JSON }

func (jsonCodec) Decode(data []byte) (value.Value, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, data)
	v := readValue(iter)
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return value.Value{}, status.ErrParse.WrapMessage("json: %v", iter.Error)
	}
	if next := iter.WhatIsNext(); next != jsoniter.InvalidValue {
		return value.Value{}, status.ErrParse.WrapMessage("json: trailing data after document")
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) value.Value {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return value.Null()
	case jsoniter.BoolValue:
		return value.Bool(iter.ReadBool())
	case jsoniter.StringValue:
		return value.String(iter.ReadString())
	case jsoniter.NumberValue:
		num := iter.ReadNumber()
		s := num.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := num.Int64(); err == nil {
				return value.Int(i)
			}
		}
		f, err := num.Float64()
		if err != nil {
			iter.ReportError("number", err.Error())
			return value.Null()
		}
		return value.Float(f)
	case jsoniter.ArrayValue:
		items := []value.Value{}
		iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
			items = append(items, readValue(iter))
			return iter.Error == nil
		})
		return value.Array(items...)
	case jsoniter.ObjectValue:
		fields := []value.Field{}
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, key string) bool {
			fields = append(fields, value.F(key, readValue(iter)))
			return iter.Error == nil
		})
		return value.Object(fields...)
	default:
		iter.ReportError("value", "unexpected token")
		return value.Null()
	}
}

func (jsonCodec) Encode(v value.Value) ([]byte, error) {
	cfg := jsoniter.ConfigDefault
	stream := cfg.BorrowStream(nil)
	defer cfg.ReturnStream(stream)

	writeValue(stream, v)
	if stream.Error != nil {
		return nil, status.ErrEncode.WrapMessage("json: %v", stream.Error)
	}
	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}

func writeValue(stream *jsoniter.Stream, v value.Value) {
	switch v.Kind() {
	case value.KindNull:
		stream.WriteNil()
	case value.KindBool:
		stream.WriteBool(v.BoolVal())
	case value.KindInt:
		stream.WriteInt64(v.IntVal())
	case value.KindFloat:
		// keep a decimal point so the kind survives a round trip
		stream.WriteRaw(formatFloat(v.FloatVal()))
	case value.KindString:
		stream.WriteString(v.StringVal())
	case value.KindArray:
		stream.WriteArrayStart()
		for i, item := range v.Items() {
			if i > 0 {
				stream.WriteMore()
			}
			writeValue(stream, item)
		}
		stream.WriteArrayEnd()
	case value.KindObject:
		stream.WriteObjectStart()
		for i, field := range v.Fields() {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(field.Key)
			writeValue(stream, field.Value)
		}
		stream.WriteObjectEnd()
	}
}
