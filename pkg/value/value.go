// Package value defines the canonical in-memory form for configuration
// data, independent of the on-disk format it was parsed from.
//
// Every supported file format decodes to a Value and encodes from a Value,
// so the merge engine never needs to know about formats.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	// KindNull is the null / absent value
	KindNull Kind = iota

	// KindBool is a boolean scalar
	KindBool

	// KindInt is a signed 64 bit integer scalar
	KindInt

	// KindFloat is a 64 bit floating point scalar
	KindFloat

	// KindString is a string scalar
	KindString

	// KindArray is an ordered sequence of values
	KindArray

	// KindObject is an ordered mapping of unique string keys to values
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Field is one key/value pair of an object.
type Field struct {
	Key   string
	Value Value
}

type object struct {
	fields []Field
	index  map[string]int
}

// Value is a tagged union over the canonical configuration data model.
//
// Arrays may hold heterogeneous element kinds: it is up to format encoders
// to reject shapes their format cannot express.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  *object
}

// Null builds the null value
func Null() Value {
	return Value{kind: KindNull}
}

// Bool builds a boolean value
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Int builds an integer value
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// Float builds a floating point value
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// String builds a string value
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// Array builds an array value from its elements
func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: items}
}

// Object builds an object value. Duplicate keys upsert in place, keeping
// the position of the first occurrence.
func Object(fields ...Field) Value {
	obj := &object{index: make(map[string]int, len(fields))}
	for _, field := range fields {
		if at, ok := obj.index[field.Key]; ok {
			obj.fields[at].Value = field.Value
			continue
		}
		obj.index[field.Key] = len(obj.fields)
		obj.fields = append(obj.fields, field)
	}
	return Value{kind: KindObject, obj: obj}
}

// F is shorthand for building an object Field
func F(key string, val Value) Field {
	return Field{Key: key, Value: val}
}

// Kind reports the variant held by this value
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull is true for the null value
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// BoolVal returns the boolean payload (false unless KindBool)
func (v Value) BoolVal() bool {
	return v.b
}

// IntVal returns the integer payload (0 unless KindInt)
func (v Value) IntVal() int64 {
	return v.i
}

// FloatVal returns the float payload (0 unless KindFloat)
func (v Value) FloatVal() float64 {
	return v.f
}

// StringVal returns the string payload ("" unless KindString)
func (v Value) StringVal() string {
	return v.s
}

// Items returns the elements of an array value (nil otherwise)
func (v Value) Items() []Value {
	return v.arr
}

// Len returns the number of array elements or object fields
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj.fields)
	default:
		return 0
	}
}

// Keys returns the object keys in insertion order (nil for non-objects)
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj.fields))
	for _, field := range v.obj.fields {
		keys = append(keys, field.Key)
	}
	return keys
}

// Fields returns the object fields in insertion order (nil for non-objects)
func (v Value) Fields() []Field {
	if v.kind != KindObject {
		return nil
	}
	fields := make([]Field, len(v.obj.fields))
	copy(fields, v.obj.fields)
	return fields
}

// Get looks up an object key
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	at, ok := v.obj.index[key]
	if !ok {
		return Value{}, false
	}
	return v.obj.fields[at].Value, true
}

// Equal performs a deep, kind-sensitive comparison: Int(1) and Float(1)
// are not equal, and object field order matters.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj.fields) != len(b.obj.fields) {
			return false
		}
		for i := range a.obj.fields {
			if a.obj.fields[i].Key != b.obj.fields[i].Key {
				return false
			}
			if !Equal(a.obj.fields[i].Value, b.obj.fields[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a compact JSON-ish debug representation
func (v Value) String() string {
	var sb strings.Builder
	v.debug(&sb)
	return sb.String()
}

func (v Value) debug(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.debug(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, field := range v.obj.fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(field.Key))
			sb.WriteByte(':')
			field.Value.debug(sb)
		}
		sb.WriteByte('}')
	}
}
